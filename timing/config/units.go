package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sarchlab/akita/v4/sim"
)

// Size is a number of bytes. In JSON and in scripts it can be written as a
// plain number or as a string with a binary unit, like "32kB" or "512MB".
// As in gem5 configuration scripts, kB means 1024 bytes.
type Size uint64

// Common sizes.
const (
	KB Size = 1 << 10
	MB Size = 1 << 20
	GB Size = 1 << 30
)

var sizeUnits = []struct {
	suffix string
	scale  uint64
}{
	{"kib", 1 << 10}, {"mib", 1 << 20}, {"gib", 1 << 30}, {"tib", 1 << 40},
	{"kb", 1 << 10}, {"mb", 1 << 20}, {"gb", 1 << 30}, {"tb", 1 << 40},
	{"k", 1 << 10}, {"m", 1 << 20}, {"g", 1 << 30}, {"t", 1 << 40},
	{"b", 1},
}

// ParseSize parses a size string.
func ParseSize(s string) (Size, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	if str == "" {
		return 0, fmt.Errorf("empty size")
	}

	scale := uint64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(str, u.suffix) {
			scale = u.scale
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(str, 64)
	if err != nil || value < 0 || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	bytes := value * float64(scale)
	if bytes != math.Trunc(bytes) {
		return 0, fmt.Errorf("size %q is not a whole number of bytes", s)
	}

	return Size(bytes), nil
}

// String formats the size with the largest binary unit that divides it.
func (s Size) String() string {
	switch {
	case s == 0:
		return "0B"
	case s%GB == 0:
		return fmt.Sprintf("%dGB", s/GB)
	case s%MB == 0:
		return fmt.Sprintf("%dMB", s/MB)
	case s%KB == 0:
		return fmt.Sprintf("%dkB", s/KB)
	default:
		return fmt.Sprintf("%dB", uint64(s))
	}
}

// MarshalJSON writes the size as a string with a unit.
func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts a number of bytes or a size string.
func (s *Size) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*s = Size(n)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("size must be a number or a string: %w", err)
	}

	parsed, err := ParseSize(str)
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// Frequency is a clock frequency. It can be written as a number of Hz or as
// a string like "2GHz".
type Frequency sim.Freq

var freqUnits = []struct {
	suffix string
	scale  sim.Freq
}{
	{"ghz", sim.GHz}, {"mhz", sim.MHz}, {"khz", sim.KHz}, {"hz", sim.Hz},
}

// ParseFrequency parses a frequency string.
func ParseFrequency(s string) (Frequency, error) {
	str := strings.ToLower(strings.TrimSpace(s))

	scale := sim.Hz
	for _, u := range freqUnits {
		if strings.HasSuffix(str, u.suffix) {
			scale = u.scale
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(str, 64)
	if err != nil || value <= 0 || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid frequency %q", s)
	}

	return Frequency(sim.Freq(value) * scale), nil
}

// Freq returns the frequency as an Akita sim.Freq.
func (f Frequency) Freq() sim.Freq {
	return sim.Freq(f)
}

func (f Frequency) String() string {
	v := float64(f)

	switch {
	case v >= float64(sim.GHz):
		return strconv.FormatFloat(v/float64(sim.GHz), 'f', -1, 64) + "GHz"
	case v >= float64(sim.MHz):
		return strconv.FormatFloat(v/float64(sim.MHz), 'f', -1, 64) + "MHz"
	case v >= float64(sim.KHz):
		return strconv.FormatFloat(v/float64(sim.KHz), 'f', -1, 64) + "kHz"
	default:
		return strconv.FormatFloat(v, 'f', -1, 64) + "Hz"
	}
}

// MarshalJSON writes the frequency as a string with a unit.
func (f Frequency) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON accepts a number of Hz or a frequency string.
func (f *Frequency) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = Frequency(n)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("frequency must be a number or a string: %w", err)
	}

	parsed, err := ParseFrequency(str)
	if err != nil {
		return err
	}

	*f = parsed

	return nil
}
