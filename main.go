// Package main provides the entry point for vmsim.
// vmsim is a virtual-memory timing simulator built on Akita.
//
// For the full CLI, use: go run ./cmd/vmsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("vmsim - virtual memory timing simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: vmsim run [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  --config   Path to a JSON config file")
	fmt.Println("  --script   Path to a Starlark config script")
	fmt.Println("  --trace    Path to a request trace file")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/vmsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/vmsim' instead.")
	}
}
