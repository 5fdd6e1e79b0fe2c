// Package latency provides DRAM timing profiles for the memory controller.
//
// A profile describes the row-activate, column-access and burst times of a
// DRAM device. The controller turns a profile into a single fixed access
// latency in ticks at the system clock frequency.
package latency

import (
	"fmt"
	"sort"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/vmsim/timing/clock"
)

// DefaultProfile is the DRAM used by the default system.
const DefaultProfile = "DDR3_1600_8x8"

// Profile holds DRAM timing values in nanoseconds.
type Profile struct {
	Name string
	// TRCD is the row-to-column delay.
	TRCD float64
	// TCL is the CAS latency.
	TCL float64
	// TBurst is the time to transfer one burst.
	TBurst float64
}

// Nanoseconds returns the access time of a closed-row read.
func (p Profile) Nanoseconds() float64 {
	return p.TRCD + p.TCL + p.TBurst
}

// Ticks returns the access time in ticks at the given frequency, rounded up.
func (p Profile) Ticks(freq sim.Freq) uint64 {
	ticks := clock.TicksFromNanoseconds(freq, p.Nanoseconds())
	if ticks == 0 {
		return 1
	}

	return ticks
}

// Validate checks that all timing values are positive.
func (p Profile) Validate() error {
	if p.TRCD <= 0 {
		return fmt.Errorf("%s: trcd must be > 0", p.Name)
	}
	if p.TCL <= 0 {
		return fmt.Errorf("%s: tcl must be > 0", p.Name)
	}
	if p.TBurst <= 0 {
		return fmt.Errorf("%s: tburst must be > 0", p.Name)
	}
	return nil
}

var profiles = map[string]Profile{
	"DDR3_1600_8x8": {
		Name:   "DDR3_1600_8x8",
		TRCD:   13.75,
		TCL:    13.75,
		TBurst: 5,
	},
	"DDR3_2133_8x8": {
		Name:   "DDR3_2133_8x8",
		TRCD:   13.09,
		TCL:    13.09,
		TBurst: 3.752,
	},
	"DDR4_2400_8x8": {
		Name:   "DDR4_2400_8x8",
		TRCD:   14.16,
		TCL:    14.16,
		TBurst: 3.332,
	},
	"LPDDR3_1600_1x32": {
		Name:   "LPDDR3_1600_1x32",
		TRCD:   18,
		TCL:    15,
		TBurst: 5,
	},
	"HBM_1000_4H_1x128": {
		Name:   "HBM_1000_4H_1x128",
		TRCD:   12,
		TCL:    18,
		TBurst: 2,
	},
}

// Lookup returns the named profile.
func Lookup(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown memory profile %q", name)
	}

	return p, nil
}

// Names lists the known profiles in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
