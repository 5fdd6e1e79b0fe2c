// Package config describes a complete simulated system: clock, memory, TLB,
// caches, memory controller, tick budget and the synthetic workload.
//
// A Config can be loaded from a JSON file or from a Starlark configuration
// script. The default configuration is a 2GHz CPU with a 128-entry TLB, 32kB
// 2-way L1 instruction and data caches, and 512MB of DDR3-1600 memory.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/vmsim/timing/cache"
	"github.com/sarchlab/vmsim/timing/latency"
	"github.com/sarchlab/vmsim/timing/mem"
	"github.com/sarchlab/vmsim/timing/mmu"
)

// DefaultMaxTicks is the tick budget of the default system.
const DefaultMaxTicks uint64 = 1_000_000_000

// RangeConfig is the physical address range served by the memory controller.
type RangeConfig struct {
	Base Size `json:"base"`
	Size Size `json:"size"`
}

// TLBConfig configures the TLB and the translation fallback policy.
type TLBConfig struct {
	// Size is the number of TLB entries.
	Size int `json:"size"`

	// HitLatency is the translation latency on a TLB hit. Default: 0.
	HitLatency uint64 `json:"hit_latency"`

	// MissLatency is the page table walk latency on a TLB miss. Default: 0.
	MissLatency uint64 `json:"miss_latency"`

	// Policy is the fallback when a page has no mapping: "first-touch",
	// "identity" or "none". Default: "first-touch".
	Policy string `json:"policy"`
}

// CacheConfig configures one cache level.
type CacheConfig struct {
	Size        Size   `json:"size"`
	Assoc       int    `json:"assoc"`
	BlockSize   Size   `json:"block_size"`
	TagLatency  uint64 `json:"tag_latency"`
	DataLatency uint64 `json:"data_latency"`
}

// MemCtrlConfig configures the memory controller.
type MemCtrlConfig struct {
	// Profile names a DRAM timing profile, e.g. "DDR3_1600_8x8".
	Profile string `json:"profile"`

	// Latency, when non-zero, overrides the profile with a fixed latency in
	// ticks.
	Latency uint64 `json:"latency"`
}

// WorkloadConfig describes the synthetic request stream issued by the CPU
// stand-in.
type WorkloadConfig struct {
	// Pattern is "sequential", "random" or "mixed".
	Pattern string `json:"pattern"`
	// Count is the number of requests (instructions for "mixed").
	Count int `json:"count"`
	// Base is the first virtual address.
	Base Size `json:"base"`
	// Stride is the address step of the sequential pattern.
	Stride Size `json:"stride"`
	// Span is the address range of the random pattern.
	Span Size `json:"span"`
	// Seed seeds the random pattern.
	Seed uint64 `json:"seed"`
	// WriteRatio is the fraction of writes of the random pattern.
	WriteRatio float64 `json:"write_ratio"`
	// DataEvery is the number of instructions per data access of the mixed
	// pattern.
	DataEvery int `json:"data_every"`
}

// Config holds the configuration of the whole system.
type Config struct {
	Clock     Frequency      `json:"clock"`
	MemSize   Size           `json:"mem_size"`
	AddrRange RangeConfig    `json:"addr_range"`
	PageSize  Size           `json:"page_size"`
	TLB       TLBConfig      `json:"tlb"`
	ICache    CacheConfig    `json:"icache"`
	DCache    CacheConfig    `json:"dcache"`
	MemCtrl   MemCtrlConfig  `json:"mem_ctrl"`
	MaxTicks  uint64         `json:"max_ticks"`
	Workload  WorkloadConfig `json:"workload"`
}

func defaultL1() CacheConfig {
	return CacheConfig{
		Size:        32 * KB,
		Assoc:       2,
		BlockSize:   64,
		TagLatency:  2,
		DataLatency: 2,
	}
}

// Default returns the configuration of the default system.
func Default() *Config {
	return &Config{
		Clock:     Frequency(2e9),
		MemSize:   512 * MB,
		AddrRange: RangeConfig{Base: 0, Size: 512 * MB},
		PageSize:  4 * KB,
		TLB: TLBConfig{
			Size:   128,
			Policy: mmu.PolicyFirstTouch.String(),
		},
		ICache: defaultL1(),
		DCache: defaultL1(),
		MemCtrl: MemCtrlConfig{
			Profile: latency.DefaultProfile,
		},
		MaxTicks: DefaultMaxTicks,
		Workload: WorkloadConfig{
			Pattern:    "mixed",
			Count:      100000,
			Base:       0x400000,
			Stride:     64,
			Span:       64 * MB,
			Seed:       1,
			WriteRatio: 0.3,
			DataEvery:  3,
		},
	}
}

// LoadConfig loads a Config from a JSON file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that every value is positive, that the caches have a
// whole number of sets, and that the address range covers the memory.
func (c *Config) Validate() error {
	if c.Clock <= 0 {
		return fmt.Errorf("clock must be > 0")
	}
	if c.MemSize == 0 {
		return fmt.Errorf("mem_size must be > 0")
	}
	if c.AddrRange.Size == 0 {
		return fmt.Errorf("addr_range.size must be > 0")
	}
	if c.AddrRange.Size != c.MemSize {
		return fmt.Errorf("addr_range.size (%s) must match mem_size (%s)",
			c.AddrRange.Size, c.MemSize)
	}
	if c.PageSize == 0 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("page_size must be a power of two")
	}
	if c.TLB.Size <= 0 {
		return fmt.Errorf("tlb.size must be > 0")
	}
	if _, err := mmu.ParsePolicy(c.TLB.Policy); err != nil {
		return fmt.Errorf("tlb.policy: %w", err)
	}
	if err := c.ICache.validate("icache"); err != nil {
		return err
	}
	if err := c.DCache.validate("dcache"); err != nil {
		return err
	}
	if c.MemCtrl.Latency == 0 {
		p, err := latency.Lookup(c.MemCtrl.Profile)
		if err != nil {
			return fmt.Errorf("mem_ctrl: %w", err)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("mem_ctrl: %w", err)
		}
	}
	if c.MaxTicks == 0 {
		return fmt.Errorf("max_ticks must be > 0")
	}
	return nil
}

func (c CacheConfig) validate(name string) error {
	if c.Size == 0 {
		return fmt.Errorf("%s.size must be > 0", name)
	}
	if c.Assoc <= 0 {
		return fmt.Errorf("%s.assoc must be > 0", name)
	}
	if c.BlockSize == 0 {
		return fmt.Errorf("%s.block_size must be > 0", name)
	}
	if c.TagLatency == 0 {
		return fmt.Errorf("%s.tag_latency must be > 0", name)
	}
	if c.DataLatency == 0 {
		return fmt.Errorf("%s.data_latency must be > 0", name)
	}
	if uint64(c.Size)%(uint64(c.Assoc)*uint64(c.BlockSize)) != 0 {
		return fmt.Errorf("%s.size must be a multiple of assoc * block_size", name)
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Range returns the controller address range.
func (c *Config) Range() mem.AddressRange {
	return mem.NewAddressRange(uint64(c.AddrRange.Base), uint64(c.AddrRange.Size))
}

// MMUConfig returns the MMU configuration.
func (c *Config) MMUConfig() (mmu.Config, error) {
	policy, err := mmu.ParsePolicy(c.TLB.Policy)
	if err != nil {
		return mmu.Config{}, err
	}

	return mmu.Config{
		TLBSize:     c.TLB.Size,
		PageSize:    uint64(c.PageSize),
		HitLatency:  c.TLB.HitLatency,
		MissLatency: c.TLB.MissLatency,
		Policy:      policy,
		MemBase:     uint64(c.AddrRange.Base),
		MemSize:     uint64(c.MemSize),
	}, nil
}

// CacheConfig converts to the cache package configuration.
func (c CacheConfig) CacheConfig() cache.Config {
	return cache.Config{
		Size:          int(c.Size),
		Associativity: c.Assoc,
		BlockSize:     int(c.BlockSize),
		TagLatency:    c.TagLatency,
		DataLatency:   c.DataLatency,
	}
}

// ControllerLatency returns the memory controller latency in ticks.
func (c *Config) ControllerLatency() (uint64, error) {
	if c.MemCtrl.Latency > 0 {
		return c.MemCtrl.Latency, nil
	}

	p, err := latency.Lookup(c.MemCtrl.Profile)
	if err != nil {
		return 0, err
	}

	return p.Ticks(c.Clock.Freq()), nil
}
