// Package bus models the memory bus that connects the caches to the memory
// controller.
//
// The bus is a single shared channel. Transactions that arrive in the same
// tick are served in a fixed priority order, lowest port ID first, and each
// transaction is delayed by one tick for every contender served ahead of it.
// Contention only delays transactions; nothing is ever dropped.
package bus

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/xid"

	"github.com/sarchlab/vmsim/timing/clock"
)

var (
	// ErrNoDownstream is returned when the bus has no memory controller.
	ErrNoDownstream = errors.New("bus has no downstream")
	// ErrUnknownPort is returned for a port ID that was never connected.
	ErrUnknownPort = errors.New("unknown bus port")
)

// Server is the component behind the bus that serves transactions.
type Server interface {
	// Serve returns the latency in ticks to serve one access.
	Serve(addr uint64, isWrite bool) (uint64, error)
}

// Transaction is one downstream access created by a cache, either a line
// fill or a writeback of a dirty line.
type Transaction struct {
	ID         string
	ReqID      string
	Addr       uint64
	IsWrite    bool
	Writeback  bool
	PortID     int
	SubmitTick uint64
}

// NewTransaction creates a transaction with a fresh ID.
func NewTransaction(reqID string, addr uint64, isWrite, writeback bool) Transaction {
	return Transaction{
		ID:        xid.New().String(),
		ReqID:     reqID,
		Addr:      addr,
		IsWrite:   isWrite,
		Writeback: writeback,
	}
}

// Grant records how a transaction was served.
type Grant struct {
	Txn Transaction
	// ArbitrationDelay is the number of contenders served ahead of the
	// transaction in the same tick.
	ArbitrationDelay uint64
	// ServiceLatency is the latency reported by the downstream server.
	ServiceLatency uint64
	// Latency is ArbitrationDelay + ServiceLatency.
	Latency uint64
}

// Statistics holds bus statistics.
type Statistics struct {
	Transactions     uint64
	Writebacks       uint64
	Contended        uint64
	ArbitrationTicks uint64
	Latency          uint64
}

// Port is the connection point of one upstream component.
type Port struct {
	id   int
	name string
	bus  *Bus
}

// ID returns the port ID, which is also its arbitration priority.
func (p *Port) ID() int {
	return p.id
}

// Name returns the port name.
func (p *Port) Name() string {
	return p.name
}

// Bus returns the bus the port belongs to.
func (p *Port) Bus() *Bus {
	return p.bus
}

// Submit queues a transaction on the bus for the current tick.
func (p *Port) Submit(txn Transaction) {
	p.bus.submit(txn, p.id)
}

// Bus arbitrates upstream transactions onto a single downstream server.
type Bus struct {
	name       string
	clock      *clock.Clock
	ports      []*Port
	downstream Server

	queue []Transaction

	// Transactions already granted during windowTick.
	windowTick    uint64
	windowGranted uint64

	stats Statistics
}

// New creates a bus that reads the current tick from clk.
func New(name string, clk *clock.Clock) *Bus {
	return &Bus{
		name:  name,
		clock: clk,
	}
}

// Name returns the bus name.
func (b *Bus) Name() string {
	return b.name
}

// ConnectPort creates a new upstream port. Ports are numbered in connection
// order starting from 0.
func (b *Bus) ConnectPort(name string) *Port {
	p := &Port{
		id:   len(b.ports),
		name: name,
		bus:  b,
	}
	b.ports = append(b.ports, p)

	return p
}

// Ports returns the connected upstream ports.
func (b *Bus) Ports() []*Port {
	return b.ports
}

// SetDownstream connects the server behind the bus.
func (b *Bus) SetDownstream(s Server) {
	b.downstream = s
}

// Downstream returns the server behind the bus, or nil.
func (b *Bus) Downstream() Server {
	return b.downstream
}

// Stats returns bus statistics.
func (b *Bus) Stats() Statistics {
	return b.stats
}

// ResetStats clears bus statistics.
func (b *Bus) ResetStats() {
	b.stats = Statistics{}
}

// Pending returns the number of queued transactions.
func (b *Bus) Pending() int {
	return len(b.queue)
}

func (b *Bus) submit(txn Transaction, portID int) {
	txn.PortID = portID
	txn.SubmitTick = b.clock.Now()
	b.queue = append(b.queue, txn)
}

// Route serves a single transaction from the given port right away. It is
// delayed by one tick for every transaction already granted in this tick.
func (b *Bus) Route(txn Transaction, portID int) (Grant, error) {
	if portID < 0 || portID >= len(b.ports) {
		return Grant{}, fmt.Errorf("%s: port %d: %w", b.name, portID, ErrUnknownPort)
	}

	txn.PortID = portID
	txn.SubmitTick = b.clock.Now()

	return b.grant(txn)
}

// Arbitrate serves every queued transaction in priority order: lowest port
// ID first, then submission order within a port. On a downstream failure the
// grants made so far are returned together with the error and the rest of
// the queue is discarded.
func (b *Bus) Arbitrate() ([]Grant, error) {
	if len(b.queue) == 0 {
		return nil, nil
	}

	queue := b.queue
	b.queue = nil

	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].PortID < queue[j].PortID
	})

	grants := make([]Grant, 0, len(queue))
	for _, txn := range queue {
		g, err := b.grant(txn)
		if err != nil {
			return grants, err
		}

		grants = append(grants, g)
	}

	return grants, nil
}

func (b *Bus) grant(txn Transaction) (Grant, error) {
	if b.downstream == nil {
		return Grant{}, fmt.Errorf("%s: %w", b.name, ErrNoDownstream)
	}

	now := b.clock.Now()
	if now != b.windowTick {
		b.windowTick = now
		b.windowGranted = 0
	}

	service, err := b.downstream.Serve(txn.Addr, txn.IsWrite)
	if err != nil {
		return Grant{}, fmt.Errorf("%s: port %d: %w", b.name, txn.PortID, err)
	}

	delay := b.windowGranted
	b.windowGranted++

	g := Grant{
		Txn:              txn,
		ArbitrationDelay: delay,
		ServiceLatency:   service,
		Latency:          delay + service,
	}

	b.stats.Transactions++
	if txn.Writeback {
		b.stats.Writebacks++
	}
	if delay > 0 {
		b.stats.Contended++
	}
	b.stats.ArbitrationTicks += delay
	b.stats.Latency += g.Latency

	return g, nil
}
