package mmu

import "container/list"

// Entry is a single TLB entry mapping a virtual page to a physical page.
type Entry struct {
	VPN   uint64
	PPN   uint64
	Valid bool
}

// tlb is a fully associative translation cache with LRU replacement. The
// front of the list is the most recently used entry.
type tlb struct {
	capacity int
	order    *list.List
	entries  map[uint64]*list.Element
}

func newTLB(capacity int) *tlb {
	return &tlb{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[uint64]*list.Element, capacity),
	}
}

// lookup finds the entry for vpn and marks it most recently used.
func (t *tlb) lookup(vpn uint64) (Entry, bool) {
	elem, found := t.entries[vpn]
	if !found {
		return Entry{}, false
	}

	t.order.MoveToFront(elem)

	return elem.Value.(Entry), true
}

// insert adds an entry, evicting the least recently used one if the TLB is
// full. It returns the evicted entry, if any.
func (t *tlb) insert(e Entry) (evicted Entry, ok bool) {
	if elem, found := t.entries[e.VPN]; found {
		elem.Value = e
		t.order.MoveToFront(elem)
		return Entry{}, false
	}

	if t.order.Len() >= t.capacity {
		back := t.order.Back()
		evicted = back.Value.(Entry)
		t.order.Remove(back)
		delete(t.entries, evicted.VPN)
		ok = true
	}

	t.entries[e.VPN] = t.order.PushFront(e)

	return evicted, ok
}

func (t *tlb) contains(vpn uint64) bool {
	_, found := t.entries[vpn]
	return found
}

func (t *tlb) len() int {
	return t.order.Len()
}

func (t *tlb) flush() {
	t.order.Init()
	t.entries = make(map[uint64]*list.Element, t.capacity)
}

// snapshot lists the entries from most to least recently used.
func (t *tlb) snapshot() []Entry {
	entries := make([]Entry, 0, t.order.Len())
	for e := t.order.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(Entry))
	}

	return entries
}
