package config

import (
	"fmt"

	"github.com/sarchlab/vmsim/timing/mem"
	"github.com/sarchlab/vmsim/timing/stream"
)

// instSize is the fetch size of one instruction in the mixed pattern.
const instSize = 4

// Stream builds the request stream the workload describes.
func (w WorkloadConfig) Stream() (stream.Stream, error) {
	if w.Count <= 0 {
		return nil, fmt.Errorf("workload.count must be > 0")
	}

	switch w.Pattern {
	case "sequential":
		return stream.Sequential(mem.Read, uint64(w.Base), uint64(w.Stride), w.Count), nil
	case "random":
		if w.Span == 0 {
			return nil, fmt.Errorf("workload.span must be > 0")
		}
		return stream.Random(w.Seed, uint64(w.Base), uint64(w.Span), w.Count, w.WriteRatio), nil
	case "", "mixed":
		span := w.Span
		if span == 0 {
			span = 64 * MB
		}
		data := stream.Random(w.Seed, uint64(w.Base)+uint64(span), uint64(span), w.Count, w.WriteRatio)
		return stream.Mixed(uint64(w.Base), instSize, data, w.DataEvery, w.Count), nil
	default:
		return nil, fmt.Errorf("unknown workload pattern %q", w.Pattern)
	}
}
