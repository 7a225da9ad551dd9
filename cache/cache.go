package cache

import (
	"github.com/IvanBrykalov/kvtier/internal/util"
)

// Cache is a sharded in-memory string store with per-bucket LRU eviction.
// All methods are safe for concurrent use by multiple goroutines; an
// operation touches exactly one bucket and never takes a global lock.
type Cache struct {
	buckets []*bucket
	hash    func(string) uint64
	bcap    int
}

// New constructs a cache with the provided Options.
// Defaults:
//   - Buckets <= 0 -> DefaultBuckets
//   - nil Metrics  -> NoopMetrics
func New(opt Options) *Cache {
	if opt.Capacity <= 0 {
		panic("Capacity must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	n := opt.Buckets
	if n <= 0 {
		n = DefaultBuckets
	}

	bcap := util.BucketCapacity(opt.Capacity, n)
	bs := make([]*bucket, n)
	for i := range bs {
		bs[i] = newBucket(bcap, opt)
	}
	return &Cache{
		buckets: bs,
		hash:    util.DJB2,
		bcap:    bcap,
	}
}

// Get returns the value for k and a presence flag.
// On hit, the entry becomes the most recently used in its bucket.
func (c *Cache) Get(k string) (string, bool) {
	return c.bucketFor(k).Get(k)
}

// Set inserts or updates k→v, evicting the bucket's LRU entry when a new key
// does not fit. It always succeeds.
func (c *Cache) Set(k, v string) bool {
	c.bucketFor(k).Set(k, v)
	return true
}

// Delete removes k and reports whether it was resident.
func (c *Cache) Delete(k string) bool {
	return c.bucketFor(k).Remove(k)
}

// Len returns the total number of resident entries across all buckets.
func (c *Cache) Len() int {
	total := 0
	for _, b := range c.buckets {
		total += b.Len()
	}
	return total
}

// Buckets returns the number of buckets.
func (c *Cache) Buckets() int { return len(c.buckets) }

// BucketOf returns the index of the bucket that owns k.
func (c *Cache) BucketOf(k string) int {
	return util.ShardIndex(c.hash(k), len(c.buckets))
}

// Stats returns counters summed over all buckets. Buckets are read one at a
// time, so the snapshot is not atomic across buckets.
func (c *Cache) Stats() Stats {
	s := Stats{Buckets: len(c.buckets), BucketCapacity: c.bcap}
	for _, b := range c.buckets {
		s.Entries += b.Len()
		s.Hits += b.hits.Load()
		s.Misses += b.misses.Load()
		s.Evictions += b.evicts.Load()
	}
	return s
}

func (c *Cache) bucketFor(k string) *bucket {
	return c.buckets[c.BucketOf(k)]
}
