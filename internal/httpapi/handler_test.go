package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/IvanBrykalov/kvtier/backend/memory"
	"github.com/IvanBrykalov/kvtier/cache"
	"github.com/IvanBrykalov/kvtier/pool"
	"github.com/IvanBrykalov/kvtier/service"
)

// stubService fails every call with err when set.
type stubService struct {
	mu   sync.Mutex
	data map[string]string
	err  error

	active, peak atomic.Int64
	hold         chan struct{}
}

func newStub() *stubService { return &stubService{data: map[string]string{}} }

func (s *stubService) enter() func() {
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.hold != nil {
		<-s.hold
	}
	return func() { s.active.Add(-1) }
}

func (s *stubService) Get(_ context.Context, key string) (service.Result, error) {
	defer s.enter()()
	if s.err != nil {
		return service.Result{}, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return service.Result{Source: service.SourceNone}, nil
	}
	return service.Result{Value: v, Found: true, Source: service.SourceCache}, nil
}

func (s *stubService) Put(_ context.Context, key, value string) error {
	defer s.enter()()
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

func (s *stubService) Delete(_ context.Context, key string) error {
	defer s.enter()()
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveRequest(method string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, method+" "+http.StatusText(status))
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func TestHandler_PutGetDelete(t *testing.T) {
	h := New(newStub())

	code, body := do(t, h, http.MethodPut, "/api/alpha", "1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, BodyOK, body)

	code, body = do(t, h, http.MethodGet, "/api/alpha", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1", body)

	code, body = do(t, h, http.MethodDelete, "/api/alpha", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, BodyOK, body)

	code, body = do(t, h, http.MethodGet, "/api/alpha", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, BodyNotFound, body)
}

func TestHandler_KeyMayContainSlashes(t *testing.T) {
	stub := newStub()
	h := New(stub)

	code, _ := do(t, h, http.MethodPut, "/api/users/42/name", "ada")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ada", stub.data["users/42/name"])
}

func TestHandler_EmptyPutBody(t *testing.T) {
	stub := newStub()
	h := New(stub)

	code, _ := do(t, h, http.MethodPut, "/api/empty", "")
	require.Equal(t, http.StatusOK, code)
	v, ok := stub.data["empty"]
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestHandler_ServiceErrorIs500(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	stub := newStub()
	stub.err = errors.WithContext(
		errors.New(errors.CodeDatabase, "backend get failed"), "op", "get")
	h := New(stub, WithLogger(zap.New(core)))

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		code, body := do(t, h, m, "/api/k", "v")
		assert.Equal(t, http.StatusInternalServerError, code, m)
		assert.Equal(t, BodyServerError, body, m)
	}

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 3)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "k", fields["key"])
	assert.Equal(t, string(errors.CodeDatabase), fields["code"])
}

func TestHandler_EmptyKeyIs404(t *testing.T) {
	h := New(newStub())
	code, _ := do(t, h, http.MethodGet, "/api/", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandler_UnsupportedMethodIs405(t *testing.T) {
	h := New(newStub())
	code, _ := do(t, h, http.MethodPost, "/api/k", "v")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestHandler_PayloadTooLarge(t *testing.T) {
	stub := newStub()
	h := New(stub, WithMaxValueBytes(4))

	code, body := do(t, h, http.MethodPut, "/api/k", "12345")
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, BodyTooLarge, body)
	assert.Empty(t, stub.data)

	code, _ = do(t, h, http.MethodPut, "/api/k", "1234")
	assert.Equal(t, http.StatusOK, code)
}

func TestHandler_Hi(t *testing.T) {
	code, body := do(t, New(newStub()), http.MethodGet, "/hi", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, BodyHello, body)
}

func TestHandler_WorkerLimit(t *testing.T) {
	stub := newStub()
	stub.hold = make(chan struct{})
	h := New(stub, WithWorkers(2))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			do(t, h, http.MethodGet, "/api/k", "")
		}()
	}

	require.Eventually(t, func() bool { return stub.active.Load() == 2 },
		time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(2), stub.active.Load())

	close(stub.hold)
	wg.Wait()
	assert.Equal(t, int64(2), stub.peak.Load())
}

func TestHandler_ObserverAndMetrics(t *testing.T) {
	obs := &recordingObserver{}
	reg := prometheus.NewRegistry()
	h := New(newStub(),
		WithObserver(obs),
		WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	do(t, h, http.MethodPut, "/api/k", "v")
	do(t, h, http.MethodGet, "/api/k", "")
	do(t, h, http.MethodGet, "/api/", "")
	assert.Equal(t, []string{"PUT OK", "GET OK", "GET Not Found"}, obs.calls)

	code, _ := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestHandler_DebugStats(t *testing.T) {
	h := New(newStub(), WithStats(func() any {
		return map[string]int{"entries": 3}
	}))

	code, body := do(t, h, http.MethodGet, "/debug/stats", "")
	require.Equal(t, http.StatusOK, code)

	var got map[string]int
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, 3, got["entries"])

	code, _ = do(t, New(newStub()), http.MethodGet, "/debug/stats", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandler_EndToEndOverMemoryStore(t *testing.T) {
	ctx := context.Background()
	p := pool.New(memory.New(), pool.WithSize(2))
	require.NoError(t, p.Create(ctx))
	t.Cleanup(func() { _ = p.Close(ctx) })

	svc := service.New(cache.New(cache.Options{Capacity: 20}), p)
	srv := httptest.NewServer(New(svc, WithWorkers(2)))
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/greeting", strings.NewReader("hello"))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/api/greeting")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "hello", string(b))
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestHandler_ClientGoneMidDelete(t *testing.T) {
	bg := context.Background()
	store := memory.New(memory.WithLatency(40 * time.Millisecond))
	p := pool.New(store, pool.WithSize(1))
	require.NoError(t, p.Create(bg))
	t.Cleanup(func() { _ = p.Close(bg) })

	c := cache.New(cache.Options{Capacity: 10})
	h := New(service.New(c, p), WithWorkers(1))

	code, _ := do(t, h, http.MethodPut, "/api/k", "v1")
	require.Equal(t, http.StatusOK, code)

	ctx, cancel := context.WithCancel(bg)
	time.AfterFunc(10*time.Millisecond, cancel)
	req := httptest.NewRequest(http.MethodDelete, "/api/k", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)

	_, inCache := c.Get("k")
	assert.False(t, inCache)

	code, body := do(t, h, http.MethodGet, "/api/k", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, BodyNotFound, body)

	code, _ = do(t, h, http.MethodPut, "/api/other", "1")
	assert.Equal(t, http.StatusOK, code)
}
