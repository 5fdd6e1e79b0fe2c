package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vmsim/benchmarks"
)

func newBenchCmd() *cobra.Command {
	var (
		configPath string
		scriptPath string
		csvOutput  bool
		jsonOutput bool
		core       bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the memory microbenchmarks.",
		Long: "Run access patterns that stress the TLB, the cache sets, the " +
			"writeback path and the bus, and report ticks and hit counts.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := &runOptions{configPath: configPath, scriptPath: scriptPath}

			cfg, err := o.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			config := benchmarks.DefaultConfig()
			config.System = cfg
			config.Output = cmd.OutOrStdout()
			config.Verbose = verbose

			harness := benchmarks.NewHarness(config)
			if core {
				harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
			} else {
				harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
			}

			if !csvOutput && !jsonOutput {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "vmsim Memory Benchmark Harness")
				fmt.Fprintln(out, "==============================")
				fmt.Fprintf(out, "TLB:    %d entries, %s pages\n", cfg.TLB.Size, cfg.PageSize)
				fmt.Fprintf(out, "L1:     %s, %d-way\n", cfg.DCache.Size, cfg.DCache.Assoc)
				fmt.Fprintf(out, "Memory: %s\n", cfg.MemSize)
				fmt.Fprintln(out, "")
			}

			results, err := harness.RunAll()
			if err != nil {
				return err
			}

			switch {
			case jsonOutput:
				return harness.PrintJSON(results)
			case csvOutput:
				harness.PrintCSV(results)
			default:
				harness.PrintResults(results)
			}

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Path to a JSON config file")
	f.StringVarP(&scriptPath, "script", "s", "", "Path to a Starlark config script")
	f.BoolVar(&csvOutput, "csv", false, "Output results in CSV format")
	f.BoolVar(&jsonOutput, "json", false, "Output results in JSON format")
	f.BoolVar(&core, "core", false, "Only run the core benchmarks")
	f.BoolVarP(&verbose, "verbose", "v", false, "Print the exit line of every benchmark")

	return cmd
}
