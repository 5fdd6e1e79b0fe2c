package driver

import (
	"fmt"

	"github.com/sarchlab/vmsim/timing/bus"
	"github.com/sarchlab/vmsim/timing/cache"
	"github.com/sarchlab/vmsim/timing/clock"
	"github.com/sarchlab/vmsim/timing/config"
	"github.com/sarchlab/vmsim/timing/memctrl"
	"github.com/sarchlab/vmsim/timing/mmu"
)

// System holds every component of the simulated memory system. The driver
// checks the links between them before it starts running.
type System struct {
	Clock      *clock.Clock
	MMU        *mmu.MMU
	ICache     *cache.Cache
	DCache     *cache.Cache
	Bus        *bus.Bus
	Controller *memctrl.Controller

	// MemSize is the amount of memory the controller must cover.
	MemSize uint64
}

// NewSystem builds and wires a system from a configuration: both caches sit
// on the memory bus, instruction cache first, and the memory controller sits
// behind the bus.
func NewSystem(cfg *config.Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clk := clock.New(cfg.Clock.Freq())

	mmuConfig, err := cfg.MMUConfig()
	if err != nil {
		return nil, err
	}

	translator, err := mmu.New(mmuConfig)
	if err != nil {
		return nil, err
	}

	ctrlLatency, err := cfg.ControllerLatency()
	if err != nil {
		return nil, err
	}

	sys := &System{
		Clock:      clk,
		MMU:        translator,
		ICache:     cache.New("ICache", cfg.ICache.CacheConfig(), clk),
		DCache:     cache.New("DCache", cfg.DCache.CacheConfig(), clk),
		Bus:        bus.New("MemBus", clk),
		Controller: memctrl.New("MemCtrl", cfg.Range(), ctrlLatency),
		MemSize:    uint64(cfg.MemSize),
	}

	sys.ICache.SetDownstream(sys.Bus.ConnectPort("ICache.MemSide"))
	sys.DCache.SetDownstream(sys.Bus.ConnectPort("DCache.MemSide"))
	sys.Bus.SetDownstream(sys.Controller)

	return sys, nil
}

// check collects every missing or inconsistent link.
func (s *System) check(cerr *ConfigurationError) {
	if s.Clock == nil {
		cerr.add("no clock")
	}
	if s.MMU == nil {
		cerr.add("no MMU")
	}

	s.checkCache("icache", s.ICache, cerr)
	s.checkCache("dcache", s.DCache, cerr)

	if s.Bus == nil {
		cerr.add("no memory bus")
	} else if s.Bus.Downstream() == nil {
		cerr.add(fmt.Sprintf("%s has no downstream port", s.Bus.Name()))
	}

	if s.Controller == nil {
		cerr.add("no memory controller")
		return
	}

	r := s.Controller.Range()
	if r.IsZero() {
		cerr.add(fmt.Sprintf("%s has no address range", s.Controller.Name()))
	} else if r.Size != s.MemSize {
		cerr.add(fmt.Sprintf("%s range %s does not cover memory size %d",
			s.Controller.Name(), r, s.MemSize))
	}

	if s.Bus != nil && s.Bus.Downstream() != nil && s.Bus.Downstream() != bus.Server(s.Controller) {
		cerr.add(fmt.Sprintf("%s is not connected to %s", s.Bus.Name(), s.Controller.Name()))
	}
}

func (s *System) checkCache(name string, c *cache.Cache, cerr *ConfigurationError) {
	if c == nil {
		cerr.add("no " + name)
		return
	}

	if !c.Connected() {
		cerr.add(fmt.Sprintf("%s has no downstream port", c.Name()))
		return
	}

	if port, ok := c.Downstream().(*bus.Port); ok && s.Bus != nil && port.Bus() != s.Bus {
		cerr.add(fmt.Sprintf("%s is connected to a different bus", c.Name()))
	}
}
