// Package service combines the sharded LRU cache with the pooled backing
// store.
//
// Reads are cache-aside: a hit is served from memory and a miss goes to the
// store and populates the cache. Writes and deletes go through to the store
// first and touch the cache only after the store succeeded, so the cache can
// lag the store but never holds a value that failed to persist.
//
// Concurrent misses on the same key can share one store read (see
// WithCoalescing).
package service
