package cache

// DefaultBuckets is the fixed bucket count used by the service.
const DefaultBuckets = 10

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict()
	// Resident reports a change in the number of resident entries.
	Resident(delta int)
}

// Options configures the cache. Zero values are safe except Capacity;
// defaults are applied in New():
//   - Buckets <= 0 => DefaultBuckets
//   - nil Metrics  => NoopMetrics
type Options struct {
	// Capacity is the total entry limit, split evenly across buckets
	// (truncating division, at least one entry per bucket).
	Capacity int

	// Buckets is the number of independently locked partitions.
	Buckets int

	// OnEvict is called for every LRU eviction under the bucket lock;
	// keep it lightweight. Explicit deletes do not trigger it.
	OnEvict func(key, value string)

	Metrics Metrics
}
