// Package cache provides the in-memory tier of kvtier: a fixed-capacity,
// sharded LRU store for string keys and values.
//
// Design
//
//   - Concurrency: the key space is split into buckets (10 by default), each
//     protected by its own mutex. A key is routed by DJB2 over at most its
//     first 64 bytes, modulo the bucket count, so it always lands in the same
//     bucket for the lifetime of the cache. No operation locks more than one
//     bucket.
//
//   - Storage: each bucket keeps a map[string]*node for lookups and an
//     intrusive MRU↔LRU doubly linked list for ordering. Get, Set and Delete
//     are O(1) expected.
//
//   - Capacity: Options.Capacity is divided across buckets with truncating
//     division; every bucket holds at least one entry. A full bucket evicts
//     its own least recently used entry before admitting a new key. Buckets
//     never borrow capacity from each other.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Resident signals.
//     NoopMetrics is the default; metrics/prom exports them to Prometheus.
//
// Basic usage
//
//	c := cache.New(cache.Options{Capacity: 1000})
//	c.Set("a", "1")
//	if v, ok := c.Get("a"); ok {
//	    _ = v
//	}
//	c.Delete("a")
//
// Operations never fail. The cache is a read accelerator only; the service
// layer decides when entries are written or invalidated.
package cache
