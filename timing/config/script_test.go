package config_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsim/timing/config"
)

var _ = Describe("Config scripts", func() {
	run := func(src string) (*config.Config, error) {
		return config.ExecScript("test.star", []byte(src), nil)
	}

	It("should build the default system from a script", func() {
		c, err := run(`
system = System(
    clock = "2GHz",
    mem_range = AddrRange("512MB"),
    tlb = TLB(size = 128),
    icache = Cache(size = "32kB", assoc = 2, tag_latency = 2, data_latency = 2),
    dcache = Cache(size = "32kB", assoc = 2, tag_latency = 2, data_latency = 2),
    mem_ctrl = DDR3_1600_8x8(),
    max_ticks = 1000000000,
)
`)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(config.Default()))
	})

	It("should keep defaults for what the script leaves out", func() {
		c, err := run(`system = System(tlb = TLB(size = 64, policy = "identity"))`)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.TLB.Size).To(Equal(64))
		Expect(c.TLB.Policy).To(Equal("identity"))
		Expect(c.ICache.Size).To(Equal(32 * config.KB))
	})

	It("should derive the range from the memory size", func() {
		c, err := run(`system = System(mem_size = "1GB")`)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.AddrRange.Size).To(Equal(config.GB))
		Expect(c.Validate()).To(Succeed())
	})

	It("should accept a base and a size for the range", func() {
		c, err := run(`system = System(mem_range = AddrRange(0x80000000, "256MB"))`)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.AddrRange.Base).To(Equal(config.Size(0x80000000)))
		Expect(c.MemSize).To(Equal(256 * config.MB))
	})

	It("should select controller profiles and latencies", func() {
		c, err := run(`system = System(mem_ctrl = MemCtrl(profile = "DDR4_2400_8x8", latency = 40))`)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.MemCtrl.Profile).To(Equal("DDR4_2400_8x8"))
		Expect(c.MemCtrl.Latency).To(Equal(uint64(40)))
	})

	It("should configure the workload", func() {
		c, err := run(`
system = System(workload = Workload(pattern = "random", count = 10, seed = 3, write_ratio = 0.5))
`)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Workload.Pattern).To(Equal("random"))
		Expect(c.Workload.Count).To(Equal(10))
		Expect(c.Workload.WriteRatio).To(Equal(0.5))
	})

	It("should allow computed values", func() {
		c, err := run(`
kb = 1024
l1 = Cache(size = 64 * kb, assoc = 4, tag_latency = 1, data_latency = 3)
system = System(icache = l1, dcache = l1)
`)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.DCache.Size).To(Equal(64 * config.KB))
		Expect(c.ICache.DataLatency).To(Equal(uint64(3)))
	})

	It("should send print output to the writer", func() {
		var out bytes.Buffer
		_, err := config.ExecScript("print.star", []byte(`
print("Initializing memory...")
system = System()
`), &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(Equal("Initializing memory...\n"))
	})

	DescribeTable("errors",
		func(src, msg string) {
			_, err := run(src)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(msg))
		},
		Entry("missing system", `x = 1`, `does not define "system"`),
		Entry("wrong system type", `system = TLB(size = 1)`, "System(...)"),
		Entry("unknown keyword", `system = System(cpu = 1)`, "unexpected keyword"),
		Entry("wrong nested type", `system = System(tlb = Cache())`, "want TLB(...)"),
		Entry("bad size", `system = System(page_size = "4 pages")`, "System.page_size"),
		Entry("syntax error", `system = System(`, "failed to run config script"),
	)

	It("should load scripts from files", func() {
		path := filepath.Join(GinkgoT().TempDir(), "system.star")
		Expect(os.WriteFile(path, []byte(`system = System(max_ticks = 5000)`), 0644)).To(Succeed())

		c, err := config.LoadScript(path, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.MaxTicks).To(Equal(uint64(5000)))
	})
})
