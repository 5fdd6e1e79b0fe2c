// Package clock provides the simulated time base shared by every component
// of the memory system.
package clock

import (
	"github.com/sarchlab/akita/v4/sim"
)

// DefaultFreq is the clock frequency of the default system (2 GHz).
const DefaultFreq = 2 * sim.GHz

// Clock is a monotonically increasing tick counter.
//
// Components hold a pointer to the clock to read the current tick. Only the
// simulation driver advances it.
type Clock struct {
	freq sim.Freq
	now  uint64
}

// New creates a clock running at the given frequency, starting at tick 0.
func New(freq sim.Freq) *Clock {
	if freq <= 0 {
		freq = DefaultFreq
	}

	return &Clock{freq: freq}
}

// Now returns the current tick.
func (c *Clock) Now() uint64 {
	return c.now
}

// Freq returns the clock frequency.
func (c *Clock) Freq() sim.Freq {
	return c.freq
}

// Advance moves the clock forward by n ticks and returns the new tick.
func (c *Clock) Advance(n uint64) uint64 {
	c.now += n
	return c.now
}

// AdvanceTo moves the clock to tick t. The clock never moves backwards, so a
// t earlier than the current tick leaves the clock unchanged.
func (c *Clock) AdvanceTo(t uint64) uint64 {
	if t > c.now {
		c.now = t
	}

	return c.now
}

// Seconds returns the simulated time in seconds.
func (c *Clock) Seconds() float64 {
	return float64(c.now) / float64(c.freq)
}

// TicksFromNanoseconds converts a duration in nanoseconds into a whole number
// of ticks at the clock frequency, rounding up.
func (c *Clock) TicksFromNanoseconds(ns float64) uint64 {
	return TicksFromNanoseconds(c.freq, ns)
}

// TicksFromNanoseconds converts a duration in nanoseconds into a whole number
// of ticks at the given frequency, rounding up.
func TicksFromNanoseconds(freq sim.Freq, ns float64) uint64 {
	cycles := ns * float64(freq) / 1e9

	ticks := uint64(cycles)
	if float64(ticks) < cycles-1e-9 {
		ticks++
	}

	return ticks
}
