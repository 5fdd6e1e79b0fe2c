package mmu_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsim/timing/mmu"
)

var _ = Describe("MMU", func() {
	var (
		m      *mmu.MMU
		config mmu.Config
	)

	BeforeEach(func() {
		config = mmu.DefaultConfig()
		config.HitLatency = 1
		config.MissLatency = 20
	})

	JustBeforeEach(func() {
		var err error
		m, err = mmu.New(config)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Translate", func() {
		It("should miss and then hit on the same page", func() {
			first, err := m.Translate(0x1234)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Hit).To(BeFalse())
			Expect(first.Latency).To(Equal(uint64(20)))

			second, err := m.Translate(0x1ff8)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Hit).To(BeTrue())
			Expect(second.Latency).To(Equal(uint64(1)))

			stats := m.Stats()
			Expect(stats.Hits).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Walks).To(Equal(uint64(1)))
		})

		It("should keep the page offset", func() {
			tr, err := m.Translate(0x7000_0abc)
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.PAddr & 0xfff).To(Equal(uint64(0xabc)))
		})

		It("should give distinct pages distinct frames", func() {
			a, _ := m.Translate(0x0000)
			b, _ := m.Translate(0x1000)
			Expect(a.PAddr).To(Equal(uint64(0)))
			Expect(b.PAddr).To(Equal(uint64(0x1000)))
		})

		It("should give the same frame to a page after TLB eviction", func() {
			first, _ := m.Translate(0x5000)
			m.Flush()

			again, err := m.Translate(0x5000)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Hit).To(BeFalse())
			Expect(again.PAddr).To(Equal(first.PAddr))
		})
	})

	Describe("LRU replacement", func() {
		It("should evict the first page after 129 distinct pages", func() {
			for page := uint64(0); page < 129; page++ {
				_, err := m.Translate(page * mmu.DefaultPageSize)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(m.Len()).To(Equal(128))
			Expect(m.Contains(0)).To(BeFalse())
			Expect(m.Stats().Evictions).To(Equal(uint64(1)))

			tr, err := m.Translate(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.Hit).To(BeFalse())
		})

		It("should keep recently used pages", func() {
			for page := uint64(0); page < 128; page++ {
				_, _ = m.Translate(page * mmu.DefaultPageSize)
			}

			// Touch page 0 so that page 1 becomes the LRU entry.
			_, _ = m.Translate(0)
			_, _ = m.Translate(128 * mmu.DefaultPageSize)

			Expect(m.Contains(0)).To(BeTrue())
			Expect(m.Contains(mmu.DefaultPageSize)).To(BeFalse())
			Expect(m.Entries()[0].VPN).To(Equal(uint64(128)))
		})
	})

	Describe("Policies", func() {
		Context("with no fallback", func() {
			BeforeEach(func() {
				config.Policy = mmu.PolicyNone
			})

			It("should fault on an unmapped page", func() {
				_, err := m.Translate(0x3000)
				Expect(errors.Is(err, mmu.ErrPageFault)).To(BeTrue())

				var pf *mmu.PageFaultError
				Expect(errors.As(err, &pf)).To(BeTrue())
				Expect(pf.VPN).To(Equal(uint64(3)))
				Expect(m.Stats().PageFaults).To(Equal(uint64(1)))
			})

			It("should translate explicit mappings", func() {
				m.Map(0x3000, 0x9000)

				tr, err := m.Translate(0x3010)
				Expect(err).NotTo(HaveOccurred())
				Expect(tr.PAddr).To(Equal(uint64(0x9010)))
			})

			It("should update the TLB when a mapping changes", func() {
				m.Map(0x3000, 0x9000)
				_, _ = m.Translate(0x3000)

				m.Map(0x3000, 0xa000)
				tr, err := m.Translate(0x3000)
				Expect(err).NotTo(HaveOccurred())
				Expect(tr.Hit).To(BeTrue())
				Expect(tr.PAddr).To(Equal(uint64(0xa000)))
			})
		})

		Context("with identity mapping", func() {
			BeforeEach(func() {
				config.Policy = mmu.PolicyIdentity
			})

			It("should return the virtual address", func() {
				tr, err := m.Translate(0x12345678)
				Expect(err).NotTo(HaveOccurred())
				Expect(tr.PAddr).To(Equal(uint64(0x12345678)))
			})
		})

		Context("with first-touch mapping", func() {
			BeforeEach(func() {
				config.MemBase = 0x1000_0000
				config.MemSize = 2 * mmu.DefaultPageSize
			})

			It("should hand out frames from the memory base", func() {
				tr, err := m.Translate(0xffff_0000)
				Expect(err).NotTo(HaveOccurred())
				Expect(tr.PAddr).To(Equal(uint64(0x1000_0000)))
			})

			It("should fault once the frames run out", func() {
				_, _ = m.Translate(0x0000)
				_, _ = m.Translate(0x1000)

				_, err := m.Translate(0x2000)
				Expect(err).To(MatchError(mmu.ErrPageFault))
				Expect(err.Error()).To(ContainSubstring("out of physical frames"))
			})
		})
	})

	Describe("New", func() {
		It("should reject a page size that is not a power of two", func() {
			config.PageSize = 3000
			_, err := mmu.New(config)
			Expect(err).To(HaveOccurred())
		})

		It("should reject an empty TLB", func() {
			config.TLBSize = 0
			_, err := mmu.New(config)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParsePolicy", func() {
		It("should accept every policy name", func() {
			for _, p := range []mmu.Policy{mmu.PolicyFirstTouch, mmu.PolicyIdentity, mmu.PolicyNone} {
				parsed, err := mmu.ParsePolicy(p.String())
				Expect(err).NotTo(HaveOccurred())
				Expect(parsed).To(Equal(p))
			}
		})

		It("should default to first-touch", func() {
			p, err := mmu.ParsePolicy("")
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(Equal(mmu.PolicyFirstTouch))
		})

		It("should reject unknown names", func() {
			_, err := mmu.ParsePolicy("lazy")
			Expect(err).To(HaveOccurred())
		})
	})
})
