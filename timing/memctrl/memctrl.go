// Package memctrl models the memory controller at the bottom of the memory
// hierarchy.
package memctrl

import (
	"errors"
	"fmt"

	"github.com/sarchlab/vmsim/timing/mem"
)

// ErrOutOfRange is returned for an address outside the controller's range.
var ErrOutOfRange = errors.New("address out of range")

// OutOfRangeError records the rejected address and the served range.
type OutOfRangeError struct {
	Addr  uint64
	Range mem.AddressRange
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("address 0x%x outside %s", e.Addr, e.Range)
}

// Is reports a match against ErrOutOfRange.
func (e *OutOfRangeError) Is(err error) bool {
	return err == ErrOutOfRange
}

// Statistics holds memory controller statistics.
type Statistics struct {
	Reads    uint64
	Writes   uint64
	Rejected uint64
	Latency  uint64
}

// Controller serves physical addresses with a fixed access latency.
//
// Requests are served one at a time in the order the bus hands them over;
// the controller keeps no queue of its own.
type Controller struct {
	name         string
	addressRange mem.AddressRange
	latency      uint64
	stats        Statistics
}

// New creates a controller serving the given range with a fixed latency in
// ticks.
func New(name string, r mem.AddressRange, latency uint64) *Controller {
	return &Controller{
		name:         name,
		addressRange: r,
		latency:      latency,
	}
}

// Name returns the controller name.
func (c *Controller) Name() string {
	return c.name
}

// Range returns the served address range.
func (c *Controller) Range() mem.AddressRange {
	return c.addressRange
}

// Latency returns the access latency in ticks.
func (c *Controller) Latency() uint64 {
	return c.latency
}

// Stats returns controller statistics.
func (c *Controller) Stats() Statistics {
	return c.stats
}

// ResetStats clears controller statistics.
func (c *Controller) ResetStats() {
	c.stats = Statistics{}
}

// Serve performs one access and returns its latency in ticks.
func (c *Controller) Serve(addr uint64, isWrite bool) (uint64, error) {
	if !c.addressRange.Contains(addr) {
		c.stats.Rejected++
		return 0, &OutOfRangeError{Addr: addr, Range: c.addressRange}
	}

	if isWrite {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}
	c.stats.Latency += c.latency

	return c.latency, nil
}
