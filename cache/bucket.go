package cache

import (
	"sync"

	"github.com/IvanBrykalov/kvtier/internal/util"
)

// bucket is an independent LRU partition of the cache with its own lock,
// map, and intrusive doubly linked list (head=MRU, tail=LRU).
type bucket struct {
	// ---- guarded by mu ----
	mu   sync.Mutex
	m    map[string]*node
	head *node // MRU
	tail *node // LRU
	len  int
	cap  int

	opt Options

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newBucket(capacity int, opt Options) *bucket {
	return &bucket{
		m:   make(map[string]*node, capacity),
		cap: capacity,
		opt: opt,
	}
}

// Get returns the value and promotes the entry to MRU.
func (b *bucket) Get(k string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.m[k]
	if !ok {
		b.misses.Add(1)
		b.opt.Metrics.Miss()
		return "", false
	}
	b.moveToFront(n)
	b.hits.Add(1)
	b.opt.Metrics.Hit()
	return n.val, true
}

// Set inserts or updates an entry and promotes it to MRU. A new key in a
// full bucket first evicts the LRU entry.
func (b *bucket) Set(k, v string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n, ok := b.m[k]; ok {
		n.val = v
		b.moveToFront(n)
		return
	}

	if b.len >= b.cap {
		if tail := b.tail; tail != nil {
			b.evictNode(tail)
		}
	}
	n := &node{key: k, val: v}
	b.m[k] = n
	b.insertFront(n)
	b.opt.Metrics.Resident(1)
}

// Remove deletes an entry by key. Returns true if the entry existed.
func (b *bucket) Remove(k string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.m[k]
	if !ok {
		return false
	}
	b.removeNode(n)
	delete(b.m, k)
	b.opt.Metrics.Resident(-1)
	return true
}

// Len returns the number of resident entries in this bucket.
func (b *bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.len
}

// keys returns resident keys from MRU to LRU. Used by tests to check order.
func (b *bucket) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, b.len)
	for n := b.head; n != nil; n = n.next {
		out = append(out, n.key)
	}
	return out
}

// -------------------- internals (mu held) --------------------

// insertFront inserts n at MRU in O(1).
func (b *bucket) insertFront(n *node) {
	n.prev = nil
	n.next = b.head
	if b.head != nil {
		b.head.prev = n
	}
	b.head = n
	if b.tail == nil {
		b.tail = n
	}
	b.len++
}

// moveToFront promotes n to MRU in O(1).
func (b *bucket) moveToFront(n *node) {
	if n == b.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if b.tail == n {
		b.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = b.head
	if b.head != nil {
		b.head.prev = n
	}
	b.head = n
	if b.tail == nil {
		b.tail = n
	}
}

// removeNode unlinks n and updates the length in O(1).
func (b *bucket) removeNode(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if b.head == n {
		b.head = n.next
	}
	if b.tail == n {
		b.tail = n.prev
	}
	n.prev, n.next = nil, nil
	b.len--
}

// evictNode drops n from list and map, then notifies metrics and OnEvict.
func (b *bucket) evictNode(n *node) {
	b.removeNode(n)
	delete(b.m, n.key)
	b.evicts.Add(1)
	b.opt.Metrics.Evict()
	b.opt.Metrics.Resident(-1)
	if cb := b.opt.OnEvict; cb != nil {
		cb(n.key, n.val)
	}
}
