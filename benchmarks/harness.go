// Package benchmarks provides the memory-system benchmark harness of vmsim.
// Each benchmark is an access pattern that stresses one part of the memory
// hierarchy: the TLB, the cache sets, the writeback path or the bus.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/vmsim/timing/config"
	"github.com/sarchlab/vmsim/timing/driver"
	"github.com/sarchlab/vmsim/timing/stream"
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedTicks is the stopping tick of the run
	SimulatedTicks uint64 `json:"simulated_ticks"`

	// Requests is the number of completed requests
	Requests uint64 `json:"requests"`

	// AverageLatency is the mean request latency in ticks
	AverageLatency float64 `json:"average_latency"`

	TLBHits   uint64 `json:"tlb_hits"`
	TLBMisses uint64 `json:"tlb_misses"`

	// ICacheHits/Misses
	ICacheHits   uint64 `json:"icache_hits,omitempty"`
	ICacheMisses uint64 `json:"icache_misses,omitempty"`

	// DCacheHits/Misses
	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	Writebacks   uint64 `json:"writebacks"`
	BusContended uint64 `json:"bus_contended"`

	// Cause is why the run stopped
	Cause string `json:"cause"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single access pattern.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup adjusts the system configuration before the run, if set.
	Setup func(cfg *config.Config)

	// Requests builds the request stream for the configured system.
	Requests func(cfg *config.Config) stream.Stream
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// System is the configuration every benchmark starts from
	System *config.Config

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		System:  config.Default(),
		Output:  os.Stdout,
		Verbose: false,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.System == nil {
		config.System = DefaultConfig().System
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results. It stops at the first
// benchmark whose system cannot be built.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(bench)
		if err != nil {
			return results, fmt.Errorf("%s: %w", bench.Name, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// runBenchmark executes a single benchmark on a fresh system.
func (h *Harness) runBenchmark(bench Benchmark) (BenchmarkResult, error) {
	cfg := h.config.System.Clone()
	if bench.Setup != nil {
		bench.Setup(cfg)
	}

	sys, err := driver.NewSystem(cfg)
	if err != nil {
		return BenchmarkResult{}, err
	}

	d := driver.New(sys, bench.Requests(cfg), driver.WithTickBudget(cfg.MaxTicks))

	start := time.Now()
	exit, err := d.Run()
	if err != nil {
		return BenchmarkResult{}, err
	}
	wallTime := time.Since(start)

	stats := d.Stats()

	result := BenchmarkResult{
		Name:           bench.Name,
		Description:    bench.Description,
		SimulatedTicks: exit.StoppingTick,
		Requests:       stats.Requests,
		AverageLatency: stats.AverageLatency(),
		TLBHits:        stats.MMU.Hits,
		TLBMisses:      stats.MMU.Misses,
		ICacheHits:     stats.ICache.Hits,
		ICacheMisses:   stats.ICache.Misses,
		DCacheHits:     stats.DCache.Hits,
		DCacheMisses:   stats.DCache.Misses,
		Writebacks:     stats.ICache.Writebacks + stats.DCache.Writebacks,
		BusContended:   stats.Bus.Contended,
		Cause:          exit.Cause,
		WallTime:       wallTime,
	}

	if h.config.Verbose {
		_, _ = fmt.Fprintf(h.config.Output, "%s: exiting at tick %d because %s\n",
			bench.Name, exit.StoppingTick, exit.Cause)
	}

	return result, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	out := h.config.Output

	_, _ = fmt.Fprintln(out, "=== vmsim Memory Benchmark Results ===")
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(out, "  Stopped: %s\n", r.Cause)
		_, _ = fmt.Fprintln(out, "  --- Timing ---")
		_, _ = fmt.Fprintf(out, "  Simulated Ticks:  %d\n", r.SimulatedTicks)
		_, _ = fmt.Fprintf(out, "  Requests:         %d\n", r.Requests)
		_, _ = fmt.Fprintf(out, "  Average Latency:  %.3f\n", r.AverageLatency)
		_, _ = fmt.Fprintln(out, "  --- TLB ---")
		_, _ = fmt.Fprintf(out, "  Hits:   %d\n", r.TLBHits)
		_, _ = fmt.Fprintf(out, "  Misses: %d\n", r.TLBMisses)

		if r.ICacheHits > 0 || r.ICacheMisses > 0 {
			_, _ = fmt.Fprintln(out, "  --- I-Cache ---")
			_, _ = fmt.Fprintf(out, "  Hits:   %d\n", r.ICacheHits)
			_, _ = fmt.Fprintf(out, "  Misses: %d\n", r.ICacheMisses)
		}

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(out, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(out, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(out, "  Misses: %d\n", r.DCacheMisses)
		}

		if r.Writebacks > 0 || r.BusContended > 0 {
			_, _ = fmt.Fprintln(out, "  --- Bus ---")
			_, _ = fmt.Fprintf(out, "  Writebacks: %d\n", r.Writebacks)
			_, _ = fmt.Fprintf(out, "  Contended:  %d\n", r.BusContended)
		}

		_, _ = fmt.Fprintf(out, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,ticks,requests,avg_latency,tlb_hits,tlb_misses,icache_hits,icache_misses,dcache_hits,dcache_misses,writebacks,bus_contended")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.SimulatedTicks,
			r.Requests,
			r.AverageLatency,
			r.TLBHits,
			r.TLBMisses,
			r.ICacheHits,
			r.ICacheMisses,
			r.DCacheHits,
			r.DCacheMisses,
			r.Writebacks,
			r.BusContended,
		)
	}
}

// BenchmarkReport is the JSON document written by PrintJSON.
type BenchmarkReport struct {
	Metadata ReportMetadata    `json:"metadata"`
	Results  []BenchmarkResult `json:"results"`
	Summary  ReportSummary     `json:"summary"`
}

// ReportMetadata records when and on which system the benchmarks ran.
type ReportMetadata struct {
	Timestamp string         `json:"timestamp"`
	System    *config.Config `json:"system"`
}

// ReportSummary aggregates all results.
type ReportSummary struct {
	TotalBenchmarks int           `json:"total_benchmarks"`
	TotalTicks      uint64        `json:"total_ticks"`
	TotalRequests   uint64        `json:"total_requests"`
	AverageLatency  float64       `json:"average_latency"`
	TotalWallTime   time.Duration `json:"total_wall_time_ns"`
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	var totalTicks, totalRequests uint64
	var totalWallTime time.Duration
	for _, r := range results {
		totalTicks += r.SimulatedTicks
		totalRequests += r.Requests
		totalWallTime += r.WallTime
	}

	avgLatency := float64(0)
	if totalRequests > 0 {
		avgLatency = float64(totalTicks) / float64(totalRequests)
	}

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			System:    h.config.System,
		},
		Results: results,
		Summary: ReportSummary{
			TotalBenchmarks: len(results),
			TotalTicks:      totalTicks,
			TotalRequests:   totalRequests,
			AverageLatency:  avgLatency,
			TotalWallTime:   totalWallTime,
		},
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
