package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vmsim/timing/config"
	"github.com/sarchlab/vmsim/timing/latency"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and write configurations.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "dump [file]",
			Short: "Write the default configuration as JSON.",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 1 {
					return config.Default().SaveConfig(args[0])
				}

				data, err := json.MarshalIndent(config.Default(), "", "  ")
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))

				return err
			},
		},
		&cobra.Command{
			Use:   "check <file>",
			Short: "Validate a JSON config file or a Starlark config script.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadAny(args[0])
				if err != nil {
					return err
				}

				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])

				return err
			},
		},
		&cobra.Command{
			Use:   "profiles",
			Short: "List the memory controller profiles.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				freq := config.Default().Clock.Freq()
				for _, name := range latency.Names() {
					p, _ := latency.Lookup(name)
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %6.2f ns  %4d ticks @ %s\n",
						name, p.Nanoseconds(), p.Ticks(freq), config.Frequency(freq))
				}

				return nil
			},
		},
	)

	return cmd
}

func loadAny(path string) (*config.Config, error) {
	if filepath.Ext(path) == ".star" {
		return config.LoadScript(path, os.Stdout)
	}

	return config.LoadConfig(path)
}
