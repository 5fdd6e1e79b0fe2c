// Package cache provides set-associative cache modeling using Akita cache
// components.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/vmsim/timing/bus"
	"github.com/sarchlab/vmsim/timing/clock"
	"github.com/sarchlab/vmsim/timing/mem"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
	// TagLatency in ticks, paid on a miss before the line is allocated.
	TagLatency uint64
	// DataLatency in ticks, paid on every access.
	DataLatency uint64
}

// DefaultL1IConfig returns default configuration for the L1 instruction
// cache: 32kB, 2-way, 64B lines, tag and data latency of 2 ticks.
func DefaultL1IConfig() Config {
	return Config{
		Size:          32 * 1024,
		Associativity: 2,
		BlockSize:     64,
		TagLatency:    2,
		DataLatency:   2,
	}
}

// DefaultL1DConfig returns default configuration for the L1 data cache. It
// matches the instruction cache.
func DefaultL1DConfig() Config {
	return DefaultL1IConfig()
}

// NumSets returns the number of sets.
func (c Config) NumSets() int {
	return c.Size / (c.Associativity * c.BlockSize)
}

// NumLines returns the total number of lines the cache can hold.
func (c Config) NumLines() int {
	return c.Size / c.BlockSize
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Latency is the number of ticks this access takes inside the cache.
	Latency uint64
	// SetIndex is the set the address maps to.
	SetIndex int
	// Evicted is true if a valid line was evicted.
	Evicted bool
	// EvictedAddr is the address of the evicted line (if Evicted is true).
	EvictedAddr uint64
	// Writeback is true if the evicted line was dirty and written back.
	Writeback bool
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
	Latency    uint64
}

// Downstream is the next level of the memory hierarchy, in practice a bus
// port. Fills and writebacks are submitted to it and served when the bus
// arbitrates.
type Downstream interface {
	Submit(txn bus.Transaction)
}

// Cache represents one cache level using Akita cache components.
type Cache struct {
	name   string
	config Config
	clock  *clock.Clock

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Tick of the last access, indexed by (setID * associativity + wayID)
	lastAccess []uint64

	stats Statistics

	downstream Downstream
}

// New creates a new cache with the given configuration. The cache reads the
// current tick from clk.
func New(name string, config Config, clk *clock.Clock) *Cache {
	numSets := config.NumSets()
	totalBlocks := numSets * config.Associativity

	return &Cache{
		name:   name,
		config: config,
		clock:  clk,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		lastAccess: make([]uint64, totalBlocks),
	}
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// SetDownstream connects the cache to the next level.
func (c *Cache) SetDownstream(d Downstream) {
	c.downstream = d
}

// Downstream returns the next level, or nil if the cache is not connected.
func (c *Cache) Downstream() Downstream {
	return c.downstream
}

// Connected returns true if the cache has a downstream.
func (c *Cache) Connected() bool {
	return c.downstream != nil
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// SetIndex returns the set an address maps to.
func (c *Cache) SetIndex(addr uint64) int {
	return int((addr / uint64(c.config.BlockSize)) % uint64(c.config.NumSets()))
}

// blockIndex computes the index into lastAccess for a block.
func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return (addr / uint64(c.config.BlockSize)) * uint64(c.config.BlockSize)
}

// Read performs a cache read.
func (c *Cache) Read(addr uint64) AccessResult {
	return c.access("", addr, false)
}

// Write performs a cache write.
func (c *Cache) Write(addr uint64) AccessResult {
	return c.access("", addr, true)
}

// Access performs a read or a write at a physical address.
func (c *Cache) Access(addr uint64, isWrite bool) AccessResult {
	return c.access("", addr, isWrite)
}

// Serve performs the access described by a translated request. Downstream
// transactions carry the request ID.
func (c *Cache) Serve(req mem.Request) AccessResult {
	return c.access(req.ID, req.PAddr, req.IsWrite())
}

func (c *Cache) access(reqID string, addr uint64, isWrite bool) AccessResult {
	if isWrite {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}

	blockAddr := c.blockAddr(addr)

	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.visit(block)

		if isWrite {
			block.IsDirty = true
		}

		c.stats.Latency += c.config.DataLatency

		return AccessResult{
			Hit:      true,
			Latency:  c.config.DataLatency,
			SetIndex: block.SetID,
		}
	}

	c.stats.Misses++

	return c.handleMiss(reqID, blockAddr, isWrite)
}

// handleMiss allocates a line for blockAddr, evicting the least recently
// used line of the set if it is full.
func (c *Cache) handleMiss(reqID string, blockAddr uint64, isWrite bool) AccessResult {
	result := AccessResult{
		Hit:      false,
		Latency:  c.config.TagLatency + c.config.DataLatency,
		SetIndex: c.SetIndex(blockAddr),
	}

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		// This shouldn't happen with proper directory setup
		return result
	}

	c.fill(reqID, blockAddr)

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag // Tag stores block-aligned address

		if victim.IsDirty {
			c.stats.Writebacks++
			result.Writeback = true
			c.writeback(reqID, victim.Tag)
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = isWrite

	c.visit(victim)
	c.stats.Latency += result.Latency

	return result
}

func (c *Cache) fill(reqID string, blockAddr uint64) {
	if c.downstream == nil {
		return
	}

	c.downstream.Submit(bus.NewTransaction(reqID, blockAddr, false, false))
}

func (c *Cache) writeback(reqID string, blockAddr uint64) {
	if c.downstream == nil {
		return
	}

	c.downstream.Submit(bus.NewTransaction(reqID, blockAddr, true, true))
}

func (c *Cache) visit(block *akitacache.Block) {
	c.directory.Visit(block) // Update LRU
	c.lastAccess[c.blockIndex(block)] = c.now()
}

func (c *Cache) now() uint64 {
	if c.clock == nil {
		return 0
	}

	return c.clock.Now()
}

// Contains returns true if the line holding addr is valid in the cache. It
// does not change the LRU order.
func (c *Cache) Contains(addr uint64) bool {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	return block != nil && block.IsValid
}

// IsDirty returns true if the line holding addr is cached and dirty.
func (c *Cache) IsDirty(addr uint64) bool {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	return block != nil && block.IsValid && block.IsDirty
}

// LastAccess returns the tick at which the line holding addr was last
// accessed.
func (c *Cache) LastAccess(addr uint64) (uint64, bool) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block == nil || !block.IsValid {
		return 0, false
	}

	return c.lastAccess[c.blockIndex(block)], true
}

// ValidLines returns the number of valid lines in the cache.
func (c *Cache) ValidLines() int {
	n := 0
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				n++
			}
		}
	}

	return n
}

// Invalidate marks a cache line as invalid without writing it back.
func (c *Cache) Invalidate(addr uint64) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush writes back all dirty lines and invalidates every line.
func (c *Cache) Flush() {
	sets := c.directory.GetSets()
	for _, set := range sets {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				c.writeback("", block.Tag)
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all cache lines without writeback.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
	for i := range c.lastAccess {
		c.lastAccess[i] = 0
	}
}
