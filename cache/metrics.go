package cache

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()         {}
func (NoopMetrics) Miss()        {}
func (NoopMetrics) Evict()       {}
func (NoopMetrics) Resident(int) {}

var _ Metrics = NoopMetrics{}

// Stats is a point-in-time snapshot of cache counters summed over buckets.
type Stats struct {
	Buckets        int    `json:"buckets"`
	BucketCapacity int    `json:"bucket_capacity"`
	Entries        int    `json:"entries"`
	Hits           int64  `json:"hits"`
	Misses         int64  `json:"misses"`
	Evictions      uint64 `json:"evictions"`
}

// HitRate returns hits as a percentage of lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
