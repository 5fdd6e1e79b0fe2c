// Package stream provides the request streams that stand in for the CPU.
//
// A stream is lazy, finite and cannot be restarted: every call to Next
// returns the following request until the stream runs dry.
package stream

import (
	"math/rand/v2"

	"github.com/sarchlab/vmsim/timing/mem"
)

// Stream supplies memory requests one at a time.
type Stream interface {
	// Next returns the next request. The bool is false once the stream is
	// exhausted.
	Next() (mem.Request, bool)
}

// Func adapts a function to a Stream.
type Func func() (mem.Request, bool)

// Next calls f.
func (f Func) Next() (mem.Request, bool) {
	return f()
}

type sliceStream struct {
	reqs []mem.Request
	next int
}

// FromSlice returns a stream over the given requests. Requests without an
// ID get one.
func FromSlice(reqs []mem.Request) Stream {
	return &sliceStream{reqs: reqs}
}

func (s *sliceStream) Next() (mem.Request, bool) {
	if s.next >= len(s.reqs) {
		return mem.Request{}, false
	}

	req := s.reqs[s.next]
	s.next++

	if req.ID == "" {
		req = mem.NewRequest(req.Kind, req.VAddr)
	}

	return req, true
}

// Sequential returns n requests of the given kind starting at base and
// advancing by stride bytes. A stride of 0 repeats the same address.
func Sequential(kind mem.Kind, base, stride uint64, n int) Stream {
	i := 0

	return Func(func() (mem.Request, bool) {
		if i >= n {
			return mem.Request{}, false
		}

		addr := base + uint64(i)*stride
		i++

		return mem.NewRequest(kind, addr), true
	})
}

// Random returns n data requests at uniformly distributed addresses in
// [base, base+span). Each request is a write with probability writeRatio.
// The same seed always produces the same stream.
func Random(seed uint64, base, span uint64, n int, writeRatio float64) Stream {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	i := 0

	return Func(func() (mem.Request, bool) {
		if i >= n || span == 0 {
			return mem.Request{}, false
		}
		i++

		kind := mem.Read
		if rng.Float64() < writeRatio {
			kind = mem.Write
		}

		return mem.NewRequest(kind, base+rng.Uint64N(span)), true
	})
}

// Mixed interleaves instruction fetches with data accesses the way a simple
// in-order CPU does: every instruction is fetched from code, and every
// dataEvery-th instruction also accesses data. The code pointer advances by
// instSize bytes per instruction. The stream ends after n instructions.
func Mixed(code uint64, instSize uint64, data Stream, dataEvery int, n int) Stream {
	pc := code
	inst := 0
	pendingData := false

	return Func(func() (mem.Request, bool) {
		if pendingData {
			pendingData = false

			if req, ok := data.Next(); ok {
				return req, true
			}
		}

		if inst >= n {
			return mem.Request{}, false
		}

		req := mem.NewRequest(mem.InstFetch, pc)
		pc += instSize
		inst++

		if dataEvery > 0 && inst%dataEvery == 0 {
			pendingData = true
		}

		return req, true
	})
}

// Limit stops s after at most n requests.
func Limit(s Stream, n int) Stream {
	i := 0

	return Func(func() (mem.Request, bool) {
		if i >= n {
			return mem.Request{}, false
		}

		req, ok := s.Next()
		if ok {
			i++
		}

		return req, ok
	})
}

// Collect drains s into a slice.
func Collect(s Stream) []mem.Request {
	var reqs []mem.Request
	for {
		req, ok := s.Next()
		if !ok {
			return reqs
		}

		reqs = append(reqs, req)
	}
}
