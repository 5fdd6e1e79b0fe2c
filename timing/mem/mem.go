// Package mem defines the requests and address ranges that flow through the
// simulated memory system.
package mem

import (
	"fmt"

	"github.com/rs/xid"
)

// Kind tells which path a request takes through the memory system.
type Kind int

// Request kinds.
const (
	// InstFetch is an instruction fetch, served by the instruction cache.
	InstFetch Kind = iota
	// Read is a data load, served by the data cache.
	Read
	// Write is a data store, served by the data cache.
	Write
)

func (k Kind) String() string {
	switch k {
	case InstFetch:
		return "ifetch"
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Request is a single memory access issued by the CPU stand-in.
//
// A request is created by a request stream, filled in by the driver as it
// moves through the pipeline, and dropped once it completes.
type Request struct {
	ID             string
	Kind           Kind
	VAddr          uint64
	PAddr          uint64
	IssueTick      uint64
	CompletionTick uint64
}

// NewRequest creates a request with a fresh ID.
func NewRequest(kind Kind, vAddr uint64) Request {
	return Request{
		ID:    xid.New().String(),
		Kind:  kind,
		VAddr: vAddr,
	}
}

// IsWrite returns true if the request stores data.
func (r Request) IsWrite() bool {
	return r.Kind == Write
}

// Latency returns the number of ticks between issue and completion.
func (r Request) Latency() uint64 {
	if r.CompletionTick < r.IssueTick {
		return 0
	}

	return r.CompletionTick - r.IssueTick
}

func (r Request) String() string {
	return fmt.Sprintf("%s %s 0x%x", r.ID, r.Kind, r.VAddr)
}

// AddressRange is a contiguous range of physical addresses [Base, Base+Size).
type AddressRange struct {
	Base uint64
	Size uint64
}

// NewAddressRange creates an address range starting at base.
func NewAddressRange(base, size uint64) AddressRange {
	return AddressRange{Base: base, Size: size}
}

// End returns the first address after the range.
func (r AddressRange) End() uint64 {
	return r.Base + r.Size
}

// Contains returns true if addr falls inside the range.
func (r AddressRange) Contains(addr uint64) bool {
	return addr >= r.Base && addr-r.Base < r.Size
}

// IsZero returns true if the range has not been configured.
func (r AddressRange) IsZero() bool {
	return r.Size == 0
}

func (r AddressRange) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", r.Base, r.End())
}
