package prom

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/IvanBrykalov/kvtier/cache"
)

func TestAdapter_CacheSignals(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "kvtier", nil)

	c := cache.New(cache.Options{Capacity: 1, Buckets: 1, Metrics: a})
	c.Set("a", "1")
	c.Get("a") // hit
	c.Get("b") // miss
	c.Set("b", "2")

	if got := testutil.ToFloat64(a.hits); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(a.misses); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(a.evicts); got != 1 {
		t.Errorf("evictions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(a.entries); got != 1 {
		t.Errorf("entries = %v, want 1", got)
	}
}

func TestAdapter_PoolAndHTTPSignals(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "kvtier", prometheus.Labels{"instance": "test"})

	a.InUse(3)
	a.ObserveAcquire(2 * time.Millisecond)
	a.BackendError("get")
	a.BackendError("get")
	a.ObserveRequest("GET", 200, time.Millisecond)
	a.ObserveRequest("PUT", 500, time.Millisecond)

	if got := testutil.ToFloat64(a.inUse); got != 3 {
		t.Errorf("in_use = %v, want 3", got)
	}
	if got := testutil.ToFloat64(a.backend.WithLabelValues("get")); got != 2 {
		t.Errorf("backend errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(a.requests.WithLabelValues("PUT", "500")); got != 1 {
		t.Errorf("PUT 500 = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	want := map[string]bool{
		"kvtier_cache_hits_total":             false,
		"kvtier_pool_acquire_wait_seconds":    false,
		"kvtier_http_request_duration_seconds": false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, "kvtier", nil)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	New(reg, "kvtier", nil)
}
