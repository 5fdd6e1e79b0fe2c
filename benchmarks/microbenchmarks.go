package benchmarks

import (
	"github.com/sarchlab/vmsim/timing/config"
	"github.com/sarchlab/vmsim/timing/mem"
	"github.com/sarchlab/vmsim/timing/stream"
)

// GetMicrobenchmarks returns the standard set of memory microbenchmarks.
// Each benchmark targets one characteristic of the memory hierarchy.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		sameLine(),
		sequentialRead(),
		setThrash(),
		dirtyEviction(),
		tlbThrash(),
		randomReadWrite(),
		mixedWorkload(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		sameLine(),
		setThrash(),
		tlbThrash(),
	}
}

// cycle repeats addrs in order until n requests have been issued.
func cycle(kind mem.Kind, addrs []uint64, n int) stream.Stream {
	i := 0

	return stream.Func(func() (mem.Request, bool) {
		if i >= n || len(addrs) == 0 {
			return mem.Request{}, false
		}

		addr := addrs[i%len(addrs)]
		i++

		return mem.NewRequest(kind, addr), true
	})
}

// setStride is the distance between two addresses of the same data cache
// set.
func setStride(cfg *config.Config) uint64 {
	cc := cfg.DCache.CacheConfig()
	return uint64(cc.NumSets() * cc.BlockSize)
}

func identity(cfg *config.Config) {
	cfg.TLB.Policy = "identity"
}

// 1. Same Line - every access hits after the first
func sameLine() Benchmark {
	return Benchmark{
		Name:        "same_line",
		Description: "4096 reads of one address - measures the hit path",
		Requests: func(_ *config.Config) stream.Stream {
			return stream.Sequential(mem.Read, 0x10000, 0, 4096)
		},
	}
}

// 2. Sequential Read - one cold miss per line
func sequentialRead() Benchmark {
	return Benchmark{
		Name:        "sequential_read",
		Description: "4096 reads striding one line - measures the miss path",
		Requests: func(cfg *config.Config) stream.Stream {
			return stream.Sequential(mem.Read, 0x10000, uint64(cfg.DCache.BlockSize), 4096)
		},
	}
}

// 3. Set Thrash - one more line than ways, all in the same set
func setThrash() Benchmark {
	return Benchmark{
		Name:        "set_thrash",
		Description: "assoc+1 lines of one set read round robin - defeats LRU",
		Setup:       identity,
		Requests: func(cfg *config.Config) stream.Stream {
			stride := setStride(cfg)
			addrs := make([]uint64, cfg.DCache.Assoc+1)
			for i := range addrs {
				addrs[i] = uint64(i) * stride
			}
			return cycle(mem.Read, addrs, 4096)
		},
	}
}

// 4. Dirty Eviction - like set thrash, but every victim is dirty
func dirtyEviction() Benchmark {
	return Benchmark{
		Name:        "dirty_eviction",
		Description: "writes thrashing one set - every miss also writes back",
		Setup:       identity,
		Requests: func(cfg *config.Config) stream.Stream {
			stride := setStride(cfg)
			addrs := make([]uint64, cfg.DCache.Assoc+1)
			for i := range addrs {
				addrs[i] = uint64(i) * stride
			}
			return cycle(mem.Write, addrs, 4096)
		},
	}
}

// 5. TLB Thrash - one more page than TLB entries
func tlbThrash() Benchmark {
	return Benchmark{
		Name:        "tlb_thrash",
		Description: "tlb.size+1 pages read round robin - every translation misses",
		Setup:       identity,
		Requests: func(cfg *config.Config) stream.Stream {
			addrs := make([]uint64, cfg.TLB.Size+1)
			for i := range addrs {
				addrs[i] = uint64(i) * uint64(cfg.PageSize)
			}
			return cycle(mem.Read, addrs, 4096)
		},
	}
}

// 6. Random Read/Write - uniformly spread over 64MB
func randomReadWrite() Benchmark {
	return Benchmark{
		Name:        "random_read_write",
		Description: "4096 random accesses over 64MB, 30% writes",
		Requests: func(_ *config.Config) stream.Stream {
			return stream.Random(1, 0x1000_0000, uint64(64*config.MB), 4096, 0.3)
		},
	}
}

// 7. Mixed - the default synthetic workload
func mixedWorkload() Benchmark {
	return Benchmark{
		Name:        "mixed",
		Description: "instruction fetches with a data access every third instruction",
		Requests: func(cfg *config.Config) stream.Stream {
			w := cfg.Workload
			w.Pattern = "mixed"
			w.Count = 4096

			s, err := w.Stream()
			if err != nil {
				return stream.FromSlice(nil)
			}

			return s
		},
	}
}
