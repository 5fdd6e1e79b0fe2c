// Package mmu models address translation: a TLB in front of a flat page
// table, with an optional policy to create mappings on demand.
package mmu

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/akita/v4/mem/vm"
)

// DefaultPageSize is the 4 KB page size used when none is configured.
const DefaultPageSize uint64 = 4096

// pid is the single address space the CPU stand-in runs in.
const pid vm.PID = 0

// Policy decides what happens when the page table has no mapping for a page.
type Policy int

const (
	// PolicyFirstTouch maps the page to the next free physical frame.
	PolicyFirstTouch Policy = iota
	// PolicyIdentity maps the page to the physical page with the same number.
	PolicyIdentity
	// PolicyNone raises a page fault.
	PolicyNone
)

func (p Policy) String() string {
	switch p {
	case PolicyFirstTouch:
		return "first-touch"
	case PolicyIdentity:
		return "identity"
	case PolicyNone:
		return "none"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a policy name into a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "first-touch", "first_touch":
		return PolicyFirstTouch, nil
	case "identity":
		return PolicyIdentity, nil
	case "none":
		return PolicyNone, nil
	default:
		return PolicyNone, fmt.Errorf("unknown translation policy %q", name)
	}
}

// Config holds MMU configuration parameters.
type Config struct {
	// TLBSize is the number of TLB entries.
	TLBSize int
	// PageSize in bytes. Must be a power of two.
	PageSize uint64
	// HitLatency in ticks for a TLB hit.
	HitLatency uint64
	// MissLatency in ticks for a page table walk.
	MissLatency uint64
	// Policy applied when the page table has no mapping.
	Policy Policy
	// MemBase and MemSize bound the frames handed out by PolicyFirstTouch.
	MemBase uint64
	MemSize uint64
}

// DefaultConfig returns the MMU of the default system: a 128-entry TLB
// with 4 KB pages over 512 MB of memory.
func DefaultConfig() Config {
	return Config{
		TLBSize:  128,
		PageSize: DefaultPageSize,
		Policy:   PolicyFirstTouch,
		MemSize:  512 * 1024 * 1024,
	}
}

// Translation is the result of translating one virtual address.
type Translation struct {
	VAddr   uint64
	PAddr   uint64
	Hit     bool
	Latency uint64
}

// Statistics holds MMU statistics.
type Statistics struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Walks      uint64
	PageFaults uint64
	Latency    uint64
}

// MMU translates virtual addresses into physical addresses.
type MMU struct {
	config    Config
	log2Page  uint64
	tlb       *tlb
	pageTable vm.PageTable
	nextFrame uint64
	numFrames uint64
	stats     Statistics
}

// New creates an MMU with the given configuration.
func New(config Config) (*MMU, error) {
	if config.PageSize == 0 {
		config.PageSize = DefaultPageSize
	}

	if config.PageSize&(config.PageSize-1) != 0 {
		return nil, fmt.Errorf("page size %d is not a power of two", config.PageSize)
	}

	if config.TLBSize <= 0 {
		return nil, fmt.Errorf("tlb size must be > 0, got %d", config.TLBSize)
	}

	log2Page := uint64(bits.TrailingZeros64(config.PageSize))

	return &MMU{
		config:    config,
		log2Page:  log2Page,
		tlb:       newTLB(config.TLBSize),
		pageTable: vm.NewPageTable(log2Page),
		numFrames: config.MemSize >> log2Page,
	}, nil
}

// Config returns the MMU configuration.
func (m *MMU) Config() Config {
	return m.config
}

// Stats returns MMU statistics.
func (m *MMU) Stats() Statistics {
	return m.stats
}

// ResetStats clears MMU statistics.
func (m *MMU) ResetStats() {
	m.stats = Statistics{}
}

// PageSize returns the page size in bytes.
func (m *MMU) PageSize() uint64 {
	return m.config.PageSize
}

// Map adds an explicit mapping from the page holding vAddr to the page
// holding pAddr.
func (m *MMU) Map(vAddr, pAddr uint64) {
	vBase := m.pageBase(vAddr)
	pBase := m.pageBase(pAddr)

	page := vm.Page{
		PID:      pid,
		VAddr:    vBase,
		PAddr:    pBase,
		PageSize: m.config.PageSize,
		Valid:    true,
	}

	if _, found := m.pageTable.Find(pid, vBase); found {
		m.pageTable.Update(page)
	} else {
		m.pageTable.Insert(page)
	}

	// Keep the TLB coherent with the table.
	vpn := vBase >> m.log2Page
	if m.tlb.contains(vpn) {
		m.tlb.insert(Entry{VPN: vpn, PPN: pBase >> m.log2Page, Valid: true})
	}
}

// Translate returns the physical address for vAddr. A TLB miss walks the
// page table and fills the TLB, evicting the least recently used entry when
// the TLB is full.
func (m *MMU) Translate(vAddr uint64) (Translation, error) {
	vpn := vAddr >> m.log2Page
	offset := vAddr & (m.config.PageSize - 1)

	if entry, hit := m.tlb.lookup(vpn); hit {
		m.stats.Hits++
		m.stats.Latency += m.config.HitLatency

		return Translation{
			VAddr:   vAddr,
			PAddr:   entry.PPN<<m.log2Page | offset,
			Hit:     true,
			Latency: m.config.HitLatency,
		}, nil
	}

	m.stats.Misses++

	ppn, err := m.walk(vAddr, vpn)
	if err != nil {
		m.stats.PageFaults++
		return Translation{VAddr: vAddr}, err
	}

	if _, evicted := m.tlb.insert(Entry{VPN: vpn, PPN: ppn, Valid: true}); evicted {
		m.stats.Evictions++
	}

	m.stats.Latency += m.config.MissLatency

	return Translation{
		VAddr:   vAddr,
		PAddr:   ppn<<m.log2Page | offset,
		Hit:     false,
		Latency: m.config.MissLatency,
	}, nil
}

// walk looks up the page table and applies the fallback policy on a miss.
func (m *MMU) walk(vAddr, vpn uint64) (uint64, error) {
	m.stats.Walks++

	vBase := vpn << m.log2Page
	if page, found := m.pageTable.Find(pid, vBase); found && page.Valid {
		return page.PAddr >> m.log2Page, nil
	}

	var ppn uint64

	switch m.config.Policy {
	case PolicyIdentity:
		ppn = vpn
	case PolicyFirstTouch:
		if m.nextFrame >= m.numFrames {
			return 0, &PageFaultError{
				VAddr:  vAddr,
				VPN:    vpn,
				Reason: "out of physical frames",
			}
		}

		ppn = m.config.MemBase>>m.log2Page + m.nextFrame
		m.nextFrame++
	default:
		return 0, &PageFaultError{VAddr: vAddr, VPN: vpn}
	}

	m.pageTable.Insert(vm.Page{
		PID:      pid,
		VAddr:    vBase,
		PAddr:    ppn << m.log2Page,
		PageSize: m.config.PageSize,
		Valid:    true,
	})

	return ppn, nil
}

// Contains returns true if the page holding vAddr is in the TLB. It does not
// change the LRU order.
func (m *MMU) Contains(vAddr uint64) bool {
	return m.tlb.contains(vAddr >> m.log2Page)
}

// Entries lists the TLB entries from most to least recently used.
func (m *MMU) Entries() []Entry {
	return m.tlb.snapshot()
}

// Len returns the number of valid TLB entries.
func (m *MMU) Len() int {
	return m.tlb.len()
}

// Flush invalidates every TLB entry. The page table is left untouched.
func (m *MMU) Flush() {
	m.tlb.flush()
}

func (m *MMU) pageBase(addr uint64) uint64 {
	return addr >> m.log2Page << m.log2Page
}
