package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/vmsim/loader"
	"github.com/sarchlab/vmsim/monitoring"
	"github.com/sarchlab/vmsim/report"
	"github.com/sarchlab/vmsim/timing/config"
	"github.com/sarchlab/vmsim/timing/driver"
	"github.com/sarchlab/vmsim/timing/stream"
	"github.com/sarchlab/vmsim/tracing"
)

type runOptions struct {
	configPath  string
	scriptPath  string
	tracePath   string
	maxTicks    uint64
	requests    int
	pattern     string
	seed        uint64
	record      bool
	recordPath  string
	monitor     bool
	monitorPort int
	openMonitor bool
	cpuProfile  string
	memProfile  string
	verbose     bool
}

func newRunCmd() *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation.",
		Long: "Run a simulation. The system comes from a JSON config file, a " +
			"Starlark config script, or the built-in default. Requests come " +
			"from a trace file or from the synthetic workload of the config.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "Path to a JSON config file")
	f.StringVarP(&o.scriptPath, "script", "s", "", "Path to a Starlark config script")
	f.StringVarP(&o.tracePath, "trace", "t", "", "Path to a request trace file")
	f.Uint64Var(&o.maxTicks, "max-ticks", 0, "Tick budget, overrides the config")
	f.IntVar(&o.requests, "requests", 0, "Number of synthetic requests, overrides the config")
	f.StringVar(&o.pattern, "pattern", "", "Synthetic pattern: sequential, random or mixed")
	f.Uint64Var(&o.seed, "seed", 0, "Seed of the random pattern, overrides the config")
	f.BoolVar(&o.record, "record", false, "Record every request into a SQLite database")
	f.StringVar(&o.recordPath, "record-path", "", "Database file for --record")
	f.BoolVar(&o.monitor, "monitor", false, "Serve the simulation progress over HTTP")
	f.IntVar(&o.monitorPort, "monitor-port", 0, "Port of the monitoring server")
	f.BoolVar(&o.openMonitor, "open-monitor", false, "Open the monitoring page in a browser")
	f.StringVar(&o.cpuProfile, "cpuprofile", "", "Write a CPU profile of the simulator")
	f.StringVar(&o.memProfile, "memprofile", "", "Write a heap profile of the simulator after the run")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Log every request")

	return cmd
}

func (o *runOptions) loadConfig(stdout io.Writer) (*config.Config, error) {
	scriptPath := o.scriptPath
	configPath := o.configPath

	if scriptPath == "" && configPath == "" {
		scriptPath = os.Getenv(envScript)
		configPath = os.Getenv(envConfig)
	}

	switch {
	case scriptPath != "":
		return config.LoadScript(scriptPath, stdout)
	case configPath != "":
		return config.LoadConfig(configPath)
	default:
		return config.Default(), nil
	}
}

func (o *runOptions) applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("max-ticks") {
		cfg.MaxTicks = o.maxTicks
	} else if env := os.Getenv(envMaxTicks); env != "" {
		ticks, err := strconv.ParseUint(env, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envMaxTicks, err)
		}
		cfg.MaxTicks = ticks
	}

	if flags.Changed("requests") {
		cfg.Workload.Count = o.requests
	}
	if flags.Changed("pattern") {
		cfg.Workload.Pattern = o.pattern
	}
	if flags.Changed("seed") {
		cfg.Workload.Seed = o.seed
	}

	return nil
}

func (o *runOptions) requestStream(cfg *config.Config) (stream.Stream, error) {
	if o.tracePath != "" {
		return loader.Load(o.tracePath)
	}

	return cfg.Workload.Stream()
}

func (o *runOptions) run(cmd *cobra.Command, stdout, stderr io.Writer) error {
	logger := log.New(stderr, "", 0)

	cfg, err := o.loadConfig(stdout)
	if err != nil {
		return err
	}

	if err := o.applyOverrides(cmd, cfg); err != nil {
		return err
	}

	logger.Println("Initializing CPU...")
	logger.Println("Initializing memory...")

	sys, err := driver.NewSystem(cfg)
	if err != nil {
		return err
	}

	logger.Println("Initializing virtual memory...")
	logger.Printf("TLB: Configuring TLB with %d entries.", cfg.TLB.Size)
	logger.Printf("MMU: Using default page size of %s.", cfg.PageSize)

	requests, err := o.requestStream(cfg)
	if err != nil {
		return err
	}

	opts := []driver.Option{driver.WithTickBudget(cfg.MaxTicks)}
	if o.verbose {
		opts = append(opts, driver.WithLogger(logger))
	}

	d := driver.New(sys, requests, opts...)

	if o.verbose {
		d.AcceptHook(driver.NewLogHook(logger))
	}

	if o.record {
		recorder := tracing.NewSQLiteRecorder(o.recordPath)
		if err := recorder.Init(); err != nil {
			return err
		}
		defer func() { _ = recorder.Close() }()

		logger.Printf("Recording requests into %s", recorder.Path())
		d.AcceptHook(recorder)
	}

	if o.monitor {
		if err := o.startMonitor(d, cfg); err != nil {
			return err
		}
	}

	if o.cpuProfile != "" {
		stop, err := startCPUProfile(o.cpuProfile)
		if err != nil {
			return err
		}
		defer stop()
	}

	logger.Println("Simulation starting...")

	start := time.Now()

	exit, err := d.Run()
	if err != nil {
		return err
	}

	elapsed := time.Since(start)

	if o.memProfile != "" {
		if err := writeHeapProfile(o.memProfile); err != nil {
			return err
		}
	}

	stats := d.Stats()
	report.NewPrinter().Print(stdout, exit, stats, sys.Clock.Seconds())

	logger.Printf("Elapsed time: %v", elapsed)
	if stats.Requests > 0 && elapsed > 0 {
		logger.Printf("Requests/second: %.0f", float64(stats.Requests)/elapsed.Seconds())
	}

	if exit.Err != nil {
		return fmt.Errorf("simulation failed: %w", exit.Err)
	}

	return nil
}

func (o *runOptions) startMonitor(d *driver.Driver, cfg *config.Config) error {
	m := monitoring.NewMonitor().WithBudget(cfg.MaxTicks)
	if o.monitorPort != 0 {
		m.WithPortNumber(o.monitorPort)
	}

	url, err := m.StartServer()
	if err != nil {
		return err
	}

	d.AcceptHook(m)

	if o.openMonitor {
		if err := browser.OpenURL(url + "/api/now"); err != nil {
			fmt.Fprintf(os.Stderr, "failed to open browser: %v\n", err)
		}
	}

	return nil
}

func startCPUProfile(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start profile: %w", err)
	}

	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}, nil
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create memory profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write memory profile: %w", err)
	}

	return nil
}
