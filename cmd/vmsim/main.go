// Package main provides the entry point for vmsim, a virtual-memory timing
// simulator.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// Environment variables read from the process or from a .env file.
const (
	envConfig   = "VMSIM_CONFIG"
	envScript   = "VMSIM_SCRIPT"
	envMaxTicks = "VMSIM_MAX_TICKS"
)

var rootCmd = &cobra.Command{
	Use:   "vmsim",
	Short: "vmsim simulates the memory access path of a CPU with virtual memory.",
	Long: "vmsim drives a stream of memory requests through a TLB, L1 caches, " +
		"a memory bus and a memory controller, and reports when and why the " +
		"simulation stopped.",
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return loadEnv(".env")
	},
}

// loadEnv loads a .env file if it exists. Variables already set in the
// environment win.
func loadEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	return nil
}

func main() {
	rootCmd.AddCommand(newRunCmd(), newConfigCmd(), newBenchCmd())

	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
