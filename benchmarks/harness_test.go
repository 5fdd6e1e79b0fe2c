package benchmarks_test

import (
	"bytes"
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsim/benchmarks"
	"github.com/sarchlab/vmsim/timing/driver"
)

var _ = Describe("Harness", func() {
	var (
		out     *bytes.Buffer
		harness *benchmarks.Harness
		results map[string]benchmarks.BenchmarkResult
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		config := benchmarks.DefaultConfig()
		config.Output = out
		harness = benchmarks.NewHarness(config)
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())

		list, err := harness.RunAll()
		Expect(err).NotTo(HaveOccurred())

		results = map[string]benchmarks.BenchmarkResult{}
		for _, r := range list {
			results[r.Name] = r
		}
	})

	It("should run every benchmark to the end of its stream", func() {
		Expect(results).To(HaveLen(len(benchmarks.GetMicrobenchmarks())))
		for _, r := range results {
			Expect(r.Cause).To(Equal(driver.CauseStreamExhausted), r.Name)
			Expect(r.Requests).To(BeNumerically(">", 0), r.Name)
		}
	})

	It("should only miss once on the same line", func() {
		r := results["same_line"]
		Expect(r.DCacheMisses).To(Equal(uint64(1)))
		Expect(r.DCacheHits).To(Equal(uint64(4095)))
		Expect(r.TLBMisses).To(Equal(uint64(1)))
	})

	It("should miss on every access when a set is thrashed", func() {
		r := results["set_thrash"]
		Expect(r.DCacheHits).To(Equal(uint64(0)))
		Expect(r.DCacheMisses).To(Equal(uint64(4096)))
		Expect(r.Writebacks).To(Equal(uint64(0)))
	})

	It("should write back and contend when dirty lines are thrashed", func() {
		r := results["dirty_eviction"]
		Expect(r.Writebacks).To(BeNumerically(">", 4000))
		Expect(r.BusContended).To(Equal(r.Writebacks))
		Expect(r.AverageLatency).To(BeNumerically(">", results["set_thrash"].AverageLatency))
	})

	It("should miss in the TLB on every access when pages are thrashed", func() {
		r := results["tlb_thrash"]
		Expect(r.TLBHits).To(Equal(uint64(0)))
		Expect(r.TLBMisses).To(Equal(uint64(4096)))
	})

	It("should use the instruction cache for the mixed workload", func() {
		r := results["mixed"]
		Expect(r.ICacheHits).To(BeNumerically(">", 0))
		Expect(r.DCacheMisses).To(BeNumerically(">", 0))
	})

	It("should print CSV with one line per benchmark", func() {
		harness.PrintCSV([]benchmarks.BenchmarkResult{results["same_line"]})

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(HavePrefix("name,ticks,requests"))
		Expect(lines[1]).To(HavePrefix("same_line,"))
	})

	It("should print a JSON report", func() {
		Expect(harness.PrintJSON([]benchmarks.BenchmarkResult{results["set_thrash"]})).To(Succeed())

		var report benchmarks.BenchmarkReport
		Expect(json.Unmarshal(out.Bytes(), &report)).To(Succeed())
		Expect(report.Summary.TotalBenchmarks).To(Equal(1))
		Expect(report.Results[0].Name).To(Equal("set_thrash"))
		Expect(report.Metadata.System.TLB.Size).To(Equal(128))
	})

	It("should print readable results", func() {
		harness.PrintResults([]benchmarks.BenchmarkResult{results["dirty_eviction"]})
		Expect(out.String()).To(ContainSubstring("Benchmark: dirty_eviction"))
		Expect(out.String()).To(ContainSubstring("--- Bus ---"))
	})
})
