// Package monitoring serves the progress of a running simulation over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/vmsim/timing/driver"
)

// Snapshot is the state of the simulation as last seen by the monitor.
type Snapshot struct {
	Tick    uint64             `json:"tick"`
	Seconds float64            `json:"seconds"`
	State   string             `json:"state"`
	Budget  uint64             `json:"budget"`
	Stats   driver.Stats       `json:"stats"`
	Report  *driver.ExitReport `json:"report,omitempty"`
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

// Monitor is a driver hook that keeps a snapshot of the simulation and
// serves it over HTTP. The driver runs on its own goroutine while the
// server reads the snapshot, so all access goes through the lock.
type Monitor struct {
	portNumber  int
	budget      uint64
	updateEvery uint64
	profileTime time.Duration

	lock     sync.Mutex
	snapshot Snapshot
	seen     uint64
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		updateEvery: 1000,
		profileTime: time.Second,
		snapshot:    Snapshot{State: driver.Configuring.String()},
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// not allowed and select a random port instead.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBudget records the tick budget so that clients can show progress.
func (m *Monitor) WithBudget(ticks uint64) *Monitor {
	m.budget = ticks
	m.snapshot.Budget = ticks

	return m
}

// WithUpdateInterval sets how many completed requests pass between two
// snapshot updates.
func (m *Monitor) WithUpdateInterval(n uint64) *Monitor {
	if n > 0 {
		m.updateEvery = n
	}

	return m
}

// Func updates the snapshot.
func (m *Monitor) Func(ctx sim.HookCtx) {
	d, ok := ctx.Domain.(*driver.Driver)
	if !ok {
		return
	}

	switch ctx.Pos {
	case driver.HookPosRequestDone:
		m.seen++
		if m.seen%m.updateEvery != 0 {
			return
		}
		m.update(d, nil)
	case driver.HookPosStopped:
		report, _ := ctx.Item.(driver.ExitReport)
		m.update(d, &report)
	}
}

func (m *Monitor) update(d *driver.Driver, report *driver.ExitReport) {
	clk := d.System().Clock

	m.lock.Lock()
	defer m.lock.Unlock()

	m.snapshot = Snapshot{
		Tick:    clk.Now(),
		Seconds: clk.Seconds(),
		State:   d.State().String(),
		Budget:  m.budget,
		Stats:   d.Stats(),
		Report:  report,
	}
}

// Snapshot returns the latest snapshot.
func (m *Monitor) Snapshot() Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.snapshot
}

// Router returns the HTTP handler of the monitor.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/now", m.now).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", m.stats).Methods(http.MethodGet)
	r.HandleFunc("/api/component/{name}", m.component).Methods(http.MethodGet)
	r.HandleFunc("/api/field/{json}", m.listFieldValue).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", m.portNumber))
	if err != nil {
		return "", fmt.Errorf("failed to start monitor: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		if err := http.Serve(listener, m.Router()); err != nil {
			fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		}
	}()

	return url, nil
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	s := m.Snapshot()

	writeJSON(w, struct {
		Tick    uint64  `json:"tick"`
		Seconds float64 `json:"seconds"`
		State   string  `json:"state"`
		Budget  uint64  `json:"budget"`
	}{s.Tick, s.Seconds, s.State, s.Budget})
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.Snapshot())
}

// componentStats returns a pointer to the statistics of the named
// component, or nil.
func componentStats(stats *driver.Stats, name string) any {
	switch name {
	case "mmu":
		return &stats.MMU
	case "icache":
		return &stats.ICache
	case "dcache":
		return &stats.DCache
	case "bus":
		return &stats.Bus
	case "memctrl":
		return &stats.MemCtrl
	default:
		return nil
	}
}

func (m *Monitor) component(w http.ResponseWriter, r *http.Request) {
	stats := m.Snapshot().Stats

	v := componentStats(&stats, mux.Vars(r)["name"])
	if v == nil {
		http.Error(w, "unknown component", http.StatusNotFound)
		return
	}

	writeJSON(w, v)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

// listFieldValue serializes one field of a component's statistics. The
// field name is a dot-separated path.
func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}
	if err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats := m.Snapshot().Stats

	v := componentStats(&stats, req.CompName)
	if v == nil {
		http.Error(w, "unknown component", http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(v)
	serializer.SetMaxDepth(1)

	if req.FieldName != "" {
		if err := serializer.SetEntryPoint(strings.Split(req.FieldName, ".")); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := serializer.Serialize(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memInfo, err := p.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileTime)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
