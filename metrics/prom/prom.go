// Package prom exports cache, pool and HTTP signals as Prometheus metrics.
package prom

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/kvtier/cache"
	"github.com/IvanBrykalov/kvtier/pool"
)

// Adapter implements cache.Metrics and pool.Metrics and observes HTTP
// requests. Safe for concurrent use; all Prometheus metric types are
// goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evicts    prometheus.Counter
	entries   prometheus.Gauge
	acquire   prometheus.Histogram
	inUse     prometheus.Gauge
	backend   *prometheus.CounterVec
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// New constructs the adapter and registers its collectors.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns:           Prometheus namespace; subsystems are cache, pool and http
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "evictions_total",
			Help:        "Entries evicted to make room",
			ConstLabels: constLabels,
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		acquire: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "pool",
			Name:        "acquire_wait_seconds",
			Help:        "Time spent waiting for a backend connection",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
			ConstLabels: constLabels,
		}),
		inUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "pool",
			Name:        "in_use",
			Help:        "Connections currently checked out",
			ConstLabels: constLabels,
		}),
		backend: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "pool",
				Name:        "backend_errors_total",
				Help:        "Failed backend operations by op",
				ConstLabels: constLabels,
			},
			[]string{"op"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "http",
				Name:        "requests_total",
				Help:        "API requests by method and status",
				ConstLabels: constLabels,
			},
			[]string{"method", "status"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "http",
				Name:        "request_duration_seconds",
				Help:        "API request latency by method",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"method"},
		),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.entries,
		a.acquire, a.inUse, a.backend, a.requests, a.durations)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter.
func (a *Adapter) Evict() { a.evicts.Inc() }

// Resident moves the entry gauge by delta.
func (a *Adapter) Resident(delta int) { a.entries.Add(float64(delta)) }

// ObserveAcquire records a connection wait.
func (a *Adapter) ObserveAcquire(wait time.Duration) { a.acquire.Observe(wait.Seconds()) }

// InUse sets the checked-out connection gauge.
func (a *Adapter) InUse(n int) { a.inUse.Set(float64(n)) }

// BackendError counts a failed backend operation.
func (a *Adapter) BackendError(op string) { a.backend.WithLabelValues(op).Inc() }

// ObserveRequest records one API request.
func (a *Adapter) ObserveRequest(method string, status int, d time.Duration) {
	a.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	a.durations.WithLabelValues(method).Observe(d.Seconds())
}

// Compile-time checks.
var (
	_ cache.Metrics = (*Adapter)(nil)
	_ pool.Metrics  = (*Adapter)(nil)
)
