// Package loader reads memory request traces from text files.
//
// A trace has one request per line: a kind letter followed by an address.
//
//	# kind address
//	I 0x400000
//	R 0x7fff0010
//	W 4096
//
// The kind is I (instruction fetch), R (read) or W (write). Addresses are
// decimal or 0x-prefixed hexadecimal. Blank lines and text after # are
// ignored.
package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/vmsim/timing/mem"
)

// Trace is a request stream read from a trace file. It is consumed once.
type Trace struct {
	// Path is the file the trace was read from, if any.
	Path     string
	requests []mem.Request
	next     int
}

// Load reads a trace file.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = f.Close() }()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Path = path

	return t, nil
}

// Parse reads a trace from r.
func Parse(r io.Reader) (*Trace, error) {
	t := &Trace{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want \"<kind> <address>\", got %q", lineNo, scanner.Text())
		}

		kind, err := parseKind(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		addr, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid address %q", lineNo, fields[1])
		}

		t.requests = append(t.requests, mem.NewRequest(kind, addr))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	return t, nil
}

func parseKind(s string) (mem.Kind, error) {
	switch strings.ToUpper(s) {
	case "I", "IFETCH":
		return mem.InstFetch, nil
	case "R", "READ", "LOAD":
		return mem.Read, nil
	case "W", "WRITE", "STORE":
		return mem.Write, nil
	default:
		return 0, fmt.Errorf("unknown request kind %q", s)
	}
}

// Len returns the number of requests in the trace.
func (t *Trace) Len() int {
	return len(t.requests)
}

// Remaining returns the number of requests not yet consumed.
func (t *Trace) Remaining() int {
	return len(t.requests) - t.next
}

// Next returns the next request of the trace.
func (t *Trace) Next() (mem.Request, bool) {
	if t.next >= len(t.requests) {
		return mem.Request{}, false
	}

	req := t.requests[t.next]
	t.next++

	return req, true
}
