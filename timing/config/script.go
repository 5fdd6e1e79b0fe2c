package config

import (
	"fmt"
	"io"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/sarchlab/vmsim/timing/latency"
)

// SystemVar is the global a configuration script must assign.
const SystemVar = "system"

// A configuration script is a Starlark file that builds the system the same
// way a gem5 configuration script does:
//
//	system = System(
//	    clock = "2GHz",
//	    mem_range = AddrRange("512MB"),
//	    tlb = TLB(size = 128),
//	    icache = Cache(size = "32kB", assoc = 2, tag_latency = 2, data_latency = 2),
//	    dcache = Cache(size = "32kB", assoc = 2, tag_latency = 2, data_latency = 2),
//	    mem_ctrl = DDR3_1600_8x8(),
//	    max_ticks = 1000000000,
//	)
//
// Anything the script leaves out keeps its default value.

type constructor struct {
	name       string
	fields     []string
	positional func(args starlark.Tuple) ([]starlark.Tuple, error)
}

var constructors = []constructor{
	{name: "System", fields: []string{
		"clock", "mem_size", "mem_range", "page_size", "tlb",
		"icache", "dcache", "mem_ctrl", "max_ticks", "workload",
	}},
	{name: "TLB", fields: []string{"size", "hit_latency", "miss_latency", "policy"}},
	{name: "Cache", fields: []string{"size", "assoc", "tag_latency", "data_latency", "block_size"}},
	{name: "MemCtrl", fields: []string{"profile", "latency"}},
	{name: "AddrRange", fields: []string{"base", "size"}, positional: addrRangeArgs},
	{name: "Workload", fields: []string{
		"pattern", "count", "base", "stride", "span", "seed", "write_ratio", "data_every",
	}},
}

// addrRangeArgs follows gem5: AddrRange(size) or AddrRange(base, size).
func addrRangeArgs(args starlark.Tuple) ([]starlark.Tuple, error) {
	switch len(args) {
	case 0:
		return nil, nil
	case 1:
		return []starlark.Tuple{{starlark.String("size"), args[0]}}, nil
	case 2:
		return []starlark.Tuple{
			{starlark.String("base"), args[0]},
			{starlark.String("size"), args[1]},
		}, nil
	default:
		return nil, fmt.Errorf("AddrRange: got %d positional arguments, want at most 2", len(args))
	}
}

func (c constructor) builtin() *starlark.Builtin {
	allowed := make(map[string]bool, len(c.fields))
	for _, f := range c.fields {
		allowed[f] = true
	}

	return starlark.NewBuiltin(c.name, func(
		_ *starlark.Thread,
		_ *starlark.Builtin,
		args starlark.Tuple,
		kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		var kw []starlark.Tuple

		if c.positional != nil {
			pos, err := c.positional(args)
			if err != nil {
				return nil, err
			}
			kw = append(kw, pos...)
		} else {
			if len(args) > len(c.fields) {
				return nil, fmt.Errorf("%s: got %d positional arguments, want at most %d",
					c.name, len(args), len(c.fields))
			}
			for i, arg := range args {
				kw = append(kw, starlark.Tuple{starlark.String(c.fields[i]), arg})
			}
		}

		for _, pair := range kwargs {
			key := string(pair[0].(starlark.String))
			if !allowed[key] {
				return nil, fmt.Errorf("%s: unexpected keyword argument %q", c.name, key)
			}
			kw = append(kw, pair)
		}

		return starlarkstruct.FromKeywords(starlark.String(c.name), kw), nil
	})
}

// profileBuiltin lets a script write DDR3_1600_8x8() for a controller with
// that profile, as in gem5.
func profileBuiltin(name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(
		_ *starlark.Thread,
		_ *starlark.Builtin,
		args starlark.Tuple,
		kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: unexpected positional arguments", name)
		}

		kw := []starlark.Tuple{{starlark.String("profile"), starlark.String(name)}}
		for _, pair := range kwargs {
			if string(pair[0].(starlark.String)) != "latency" {
				return nil, fmt.Errorf("%s: unexpected keyword argument %s", name, pair[0])
			}
			kw = append(kw, pair)
		}

		return starlarkstruct.FromKeywords(starlark.String("MemCtrl"), kw), nil
	})
}

func predeclared() starlark.StringDict {
	dict := starlark.StringDict{}

	for _, c := range constructors {
		dict[c.name] = c.builtin()
	}

	for _, name := range latency.Names() {
		dict[name] = profileBuiltin(name)
	}

	return dict
}

// LoadScript runs a configuration script file. Output of print statements
// goes to out, which may be nil.
func LoadScript(path string, out io.Writer) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config script: %w", err)
	}

	return ExecScript(path, src, out)
}

// ExecScript runs a configuration script and converts the system it builds
// into a Config.
func ExecScript(filename string, src []byte, out io.Writer) (*Config, error) {
	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			if out != nil {
				fmt.Fprintln(out, msg)
			}
		},
	}

	opts := syntax.FileOptions{}

	globals, err := starlark.ExecFileOptions(&opts, thread, filename, src, predeclared())
	if err != nil {
		return nil, fmt.Errorf("failed to run config script: %w", err)
	}

	value, ok := globals[SystemVar]
	if !ok {
		return nil, fmt.Errorf("%s: script does not define %q", filename, SystemVar)
	}

	system, ok := value.(*starlarkstruct.Struct)
	if !ok || system.Constructor() != starlark.String("System") {
		return nil, fmt.Errorf("%s: %q must be built with System(...)", filename, SystemVar)
	}

	config := Default()
	if err := applySystem(config, system); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	return config, nil
}

func applySystem(c *Config, s *starlarkstruct.Struct) error {
	for _, name := range s.AttrNames() {
		v, err := s.Attr(name)
		if err != nil {
			return err
		}

		switch name {
		case "clock":
			c.Clock, err = freqOf(v)
		case "mem_size":
			c.MemSize, err = sizeOf(v)
			if err == nil && !hasAttr(s, "mem_range") {
				c.AddrRange = RangeConfig{Size: c.MemSize}
			}
		case "mem_range":
			err = applyStruct(v, "AddrRange", func(field string, fv starlark.Value) (err error) {
				switch field {
				case "base":
					c.AddrRange.Base, err = sizeOf(fv)
				case "size":
					c.AddrRange.Size, err = sizeOf(fv)
				}
				return err
			})
			if err == nil && !hasAttr(s, "mem_size") {
				c.MemSize = c.AddrRange.Size
			}
		case "page_size":
			c.PageSize, err = sizeOf(v)
		case "tlb":
			err = applyStruct(v, "TLB", func(field string, fv starlark.Value) (err error) {
				switch field {
				case "size":
					c.TLB.Size, err = intOf(fv)
				case "hit_latency":
					c.TLB.HitLatency, err = uintOf(fv)
				case "miss_latency":
					c.TLB.MissLatency, err = uintOf(fv)
				case "policy":
					c.TLB.Policy, err = stringOf(fv)
				}
				return err
			})
		case "icache":
			err = applyCache(&c.ICache, v)
		case "dcache":
			err = applyCache(&c.DCache, v)
		case "mem_ctrl":
			err = applyStruct(v, "MemCtrl", func(field string, fv starlark.Value) (err error) {
				switch field {
				case "profile":
					c.MemCtrl.Profile, err = stringOf(fv)
				case "latency":
					c.MemCtrl.Latency, err = uintOf(fv)
				}
				return err
			})
		case "max_ticks":
			c.MaxTicks, err = uintOf(v)
		case "workload":
			err = applyWorkload(&c.Workload, v)
		}

		if err != nil {
			return fmt.Errorf("System.%s: %w", name, err)
		}
	}

	return nil
}

func applyCache(c *CacheConfig, v starlark.Value) error {
	return applyStruct(v, "Cache", func(field string, fv starlark.Value) (err error) {
		switch field {
		case "size":
			c.Size, err = sizeOf(fv)
		case "assoc":
			c.Assoc, err = intOf(fv)
		case "block_size":
			c.BlockSize, err = sizeOf(fv)
		case "tag_latency":
			c.TagLatency, err = uintOf(fv)
		case "data_latency":
			c.DataLatency, err = uintOf(fv)
		}
		return err
	})
}

func applyWorkload(w *WorkloadConfig, v starlark.Value) error {
	return applyStruct(v, "Workload", func(field string, fv starlark.Value) (err error) {
		switch field {
		case "pattern":
			w.Pattern, err = stringOf(fv)
		case "count":
			w.Count, err = intOf(fv)
		case "base":
			w.Base, err = sizeOf(fv)
		case "stride":
			w.Stride, err = sizeOf(fv)
		case "span":
			w.Span, err = sizeOf(fv)
		case "seed":
			w.Seed, err = uintOf(fv)
		case "write_ratio":
			w.WriteRatio, err = floatOf(fv)
		case "data_every":
			w.DataEvery, err = intOf(fv)
		}
		return err
	})
}

func applyStruct(
	v starlark.Value,
	want string,
	apply func(field string, fv starlark.Value) error,
) error {
	s, ok := v.(*starlarkstruct.Struct)
	if !ok || s.Constructor() != starlark.String(want) {
		return fmt.Errorf("want %s(...), got %s", want, v.Type())
	}

	for _, name := range s.AttrNames() {
		fv, err := s.Attr(name)
		if err != nil {
			return err
		}

		if err := apply(name, fv); err != nil {
			return fmt.Errorf("%s.%s: %w", want, name, err)
		}
	}

	return nil
}

func hasAttr(s *starlarkstruct.Struct, name string) bool {
	v, err := s.Attr(name)
	return err == nil && v != nil
}

func sizeOf(v starlark.Value) (Size, error) {
	switch v := v.(type) {
	case starlark.Int:
		n, ok := v.Uint64()
		if !ok {
			return 0, fmt.Errorf("size %s out of range", v)
		}
		return Size(n), nil
	case starlark.String:
		return ParseSize(string(v))
	default:
		return 0, fmt.Errorf("want size, got %s", v.Type())
	}
}

func freqOf(v starlark.Value) (Frequency, error) {
	if s, ok := v.(starlark.String); ok {
		return ParseFrequency(string(s))
	}

	f, ok := starlark.AsFloat(v)
	if !ok || f <= 0 {
		return 0, fmt.Errorf("want frequency, got %s", v)
	}

	return Frequency(f), nil
}

func uintOf(v starlark.Value) (uint64, error) {
	i, ok := v.(starlark.Int)
	if !ok {
		return 0, fmt.Errorf("want int, got %s", v.Type())
	}

	n, ok := i.Uint64()
	if !ok {
		return 0, fmt.Errorf("%s is not a non-negative int", i)
	}

	return n, nil
}

func intOf(v starlark.Value) (int, error) {
	i, ok := v.(starlark.Int)
	if !ok {
		return 0, fmt.Errorf("want int, got %s", v.Type())
	}

	n, ok := i.Int64()
	if !ok {
		return 0, fmt.Errorf("%s out of range", i)
	}

	return int(n), nil
}

func floatOf(v starlark.Value) (float64, error) {
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("want number, got %s", v.Type())
	}

	return f, nil
}

func stringOf(v starlark.Value) (string, error) {
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("want string, got %s", v.Type())
	}

	return s, nil
}
