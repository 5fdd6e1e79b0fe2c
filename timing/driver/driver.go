// Package driver runs the simulation. It owns the clock, pulls requests from
// a request stream on behalf of the CPU, and drives each request through
// translation, cache, bus and memory controller.
//
// The driver is the only scheduler. Requests are served one at a time and
// complete in issue order; the clock advances by each request's total
// latency when it completes.
package driver

import (
	"fmt"
	"io"
	"log"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/vmsim/timing/bus"
	"github.com/sarchlab/vmsim/timing/cache"
	"github.com/sarchlab/vmsim/timing/mem"
	"github.com/sarchlab/vmsim/timing/memctrl"
	"github.com/sarchlab/vmsim/timing/mmu"
	"github.com/sarchlab/vmsim/timing/stream"
)

// Stop causes.
const (
	CauseTickBudget      = "tick budget exhausted"
	CauseStreamExhausted = "request stream exhausted"
)

// State is the driver state.
type State int

// Driver states.
const (
	Configuring State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Configuring:
		return "Configuring"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ExitReport tells when and why the simulation stopped.
type ExitReport struct {
	StoppingTick uint64
	Cause        string
	// Err is set when the simulation stopped on a failure. Cause carries
	// its message.
	Err error `json:"-"`
	// Requests is the number of completed requests.
	Requests uint64
}

// Stats holds the statistics of the driver and of every component.
type Stats struct {
	Requests     uint64
	Ticks        uint64
	TotalLatency uint64
	MMU          mmu.Statistics
	ICache       cache.Statistics
	DCache       cache.Statistics
	Bus          bus.Statistics
	MemCtrl      memctrl.Statistics
}

// AverageLatency returns the mean request latency in ticks.
func (s Stats) AverageLatency() float64 {
	if s.Requests == 0 {
		return 0
	}

	return float64(s.TotalLatency) / float64(s.Requests)
}

// Option configures a Driver.
type Option func(*Driver)

// WithTickBudget sets the number of ticks after which the driver stops.
func WithTickBudget(ticks uint64) Option {
	return func(d *Driver) {
		d.budget = ticks
	}
}

// WithLogger sets the logger for state transitions.
func WithLogger(logger *log.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithHistory makes the driver keep every completed request.
func WithHistory() Option {
	return func(d *Driver) {
		d.keepHistory = true
	}
}

// Driver runs a System against a request stream.
type Driver struct {
	*sim.HookableBase

	sys    *System
	stream stream.Stream
	budget uint64
	logger *log.Logger

	state    State
	report   ExitReport
	requests uint64
	latency  uint64

	keepHistory bool
	history     []mem.Request
}

// New creates a driver in the Configuring state.
func New(sys *System, s stream.Stream, opts ...Option) *Driver {
	d := &Driver{
		HookableBase: sim.NewHookableBase(),
		sys:          sys,
		stream:       s,
		logger:       log.New(io.Discard, "", 0),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Name returns the name of the driver.
func (d *Driver) Name() string {
	return "Driver"
}

// State returns the current state.
func (d *Driver) State() State {
	return d.state
}

// System returns the driven system.
func (d *Driver) System() *System {
	return d.sys
}

// Report returns the exit report. It is only meaningful once Stopped.
func (d *Driver) Report() ExitReport {
	return d.report
}

// Completed returns the completed requests. It is empty unless the driver
// was created WithHistory.
func (d *Driver) Completed() []mem.Request {
	return d.history
}

// Configure checks that every link of the system is in place and moves the
// driver to Running.
func (d *Driver) Configure() error {
	if d.state != Configuring {
		return fmt.Errorf("cannot configure in state %s", d.state)
	}

	cerr := &ConfigurationError{}

	if d.sys == nil {
		cerr.add("no system")
	} else {
		d.sys.check(cerr)
	}

	if d.stream == nil {
		cerr.add("no request stream")
	}

	if d.budget == 0 {
		cerr.add("tick budget must be > 0")
	}

	if !cerr.empty() {
		return cerr
	}

	d.state = Running
	d.logger.Printf("driver running with a budget of %d ticks", d.budget)

	return nil
}

// Run configures the driver if needed and steps until it stops. The error is
// only set if configuration fails; failures while running are reported as
// the stop cause.
func (d *Driver) Run() (ExitReport, error) {
	if d.state == Configuring {
		if err := d.Configure(); err != nil {
			return ExitReport{}, err
		}
	}

	for !d.Step() {
	}

	return d.report, nil
}

// Step issues one request and drives it to completion. It returns true once
// the driver has stopped.
func (d *Driver) Step() bool {
	if d.state != Running {
		return d.state == Stopped
	}

	req, ok := d.stream.Next()
	if !ok {
		d.stop(CauseStreamExhausted, nil)
		return true
	}

	if err := d.serve(&req); err != nil {
		d.stop(err.Error(), err)
		return true
	}

	if d.sys.Clock.Now() >= d.budget {
		d.stop(CauseTickBudget, nil)
		return true
	}

	return false
}

// RequestDetail describes how one request moved through the pipeline.
type RequestDetail struct {
	Translation mmu.Translation
	Access      cache.AccessResult
	Grants      []bus.Grant
	// MemLatency is the latency of the slowest bus grant.
	MemLatency uint64
}

func (d *Driver) serve(req *mem.Request) error {
	clk := d.sys.Clock
	req.IssueTick = clk.Now()

	tr, err := d.sys.MMU.Translate(req.VAddr)
	if err != nil {
		return fmt.Errorf("request %s: %w", req, err)
	}
	req.PAddr = tr.PAddr

	c := d.sys.DCache
	if req.Kind == mem.InstFetch {
		c = d.sys.ICache
	}

	access := c.Serve(*req)

	grants, err := d.sys.Bus.Arbitrate()
	if err != nil {
		return fmt.Errorf("request %s: %w", req, err)
	}

	var memLatency uint64
	for _, g := range grants {
		memLatency = max(memLatency, g.Latency)
	}

	total := tr.Latency + access.Latency + memLatency
	req.CompletionTick = req.IssueTick + total
	clk.AdvanceTo(req.CompletionTick)

	d.requests++
	d.latency += total

	if d.keepHistory {
		d.history = append(d.history, *req)
	}

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    HookPosRequestDone,
		Item:   *req,
		Detail: RequestDetail{
			Translation: tr,
			Access:      access,
			Grants:      grants,
			MemLatency:  memLatency,
		},
	})

	return nil
}

func (d *Driver) stop(cause string, err error) {
	d.state = Stopped
	d.report = ExitReport{
		StoppingTick: d.sys.Clock.Now(),
		Cause:        cause,
		Err:          err,
		Requests:     d.requests,
	}

	d.logger.Printf("Exiting at tick %d because %s", d.report.StoppingTick, cause)

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    HookPosStopped,
		Item:   d.report,
	})
}

// Stats collects the statistics of the driver and every component.
func (d *Driver) Stats() Stats {
	return Stats{
		Requests:     d.requests,
		Ticks:        d.sys.Clock.Now(),
		TotalLatency: d.latency,
		MMU:          d.sys.MMU.Stats(),
		ICache:       d.sys.ICache.Stats(),
		DCache:       d.sys.DCache.Stats(),
		Bus:          d.sys.Bus.Stats(),
		MemCtrl:      d.sys.Controller.Stats(),
	}
}
