package mem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsim/timing/mem"
)

var _ = Describe("Request", func() {
	It("should get a unique ID", func() {
		a := mem.NewRequest(mem.Read, 0x10)
		b := mem.NewRequest(mem.Read, 0x10)
		Expect(a.ID).NotTo(BeEmpty())
		Expect(a.ID).NotTo(Equal(b.ID))
	})

	It("should only treat writes as writes", func() {
		Expect(mem.NewRequest(mem.Write, 0).IsWrite()).To(BeTrue())
		Expect(mem.NewRequest(mem.Read, 0).IsWrite()).To(BeFalse())
		Expect(mem.NewRequest(mem.InstFetch, 0).IsWrite()).To(BeFalse())
	})

	It("should compute its latency", func() {
		r := mem.Request{IssueTick: 10, CompletionTick: 79}
		Expect(r.Latency()).To(Equal(uint64(69)))
	})

	It("should name its kind", func() {
		Expect(mem.InstFetch.String()).To(Equal("ifetch"))
		Expect(mem.Kind(9).String()).To(Equal("Kind(9)"))
	})
})

var _ = Describe("AddressRange", func() {
	r := mem.NewAddressRange(0x1000, 0x2000)

	It("should contain its base and exclude its end", func() {
		Expect(r.Contains(0x1000)).To(BeTrue())
		Expect(r.Contains(0x2fff)).To(BeTrue())
		Expect(r.Contains(0x3000)).To(BeFalse())
		Expect(r.Contains(0xfff)).To(BeFalse())
		Expect(r.End()).To(Equal(uint64(0x3000)))
	})

	It("should handle ranges reaching the top of the address space", func() {
		top := mem.NewAddressRange(^uint64(0)-0xff, 0x100)
		Expect(top.Contains(^uint64(0))).To(BeTrue())
	})

	It("should print as a half-open interval", func() {
		Expect(r.String()).To(Equal("[0x1000, 0x3000)"))
		Expect(mem.AddressRange{}.IsZero()).To(BeTrue())
	})
})
