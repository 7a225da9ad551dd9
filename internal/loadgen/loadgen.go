// Package loadgen drives a kvtier server with a closed-loop HTTP workload and
// reports throughput and latency.
package loadgen

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Mode selects the request mix.
type Mode int

const (
	// ModeGet issues only GETs.
	ModeGet Mode = iota
	// ModePut issues only PUTs.
	ModePut
	// ModeMixed issues 70% GET, 20% PUT and 10% DELETE.
	ModeMixed
)

// ratios returns the GET and PUT shares; the remainder is DELETE.
func (m Mode) ratios() (get, put float64) {
	switch m {
	case ModeGet:
		return 1, 0
	case ModePut:
		return 0, 1
	default:
		return 0.7, 0.2
	}
}

func (m Mode) String() string {
	switch m {
	case ModeGet:
		return "get"
	case ModePut:
		return "put"
	default:
		return "mixed"
	}
}

// Workload defaults.
const (
	DefaultPoolSize = 10_000
	KeyLength       = 14
	ValueLength     = 44
	RequestTimeout  = 5 * time.Second
)

// Config describes one load run.
type Config struct {
	Host     string
	Port     int
	Clients  int
	Duration time.Duration

	// ThinkTime is slept by each client between requests.
	ThinkTime time.Duration

	Mode Mode

	// Rate caps the aggregate request rate in requests per second. Zero
	// means unlimited.
	Rate float64

	// PoolSize is the number of distinct key/value pairs.
	PoolSize int

	// Seed makes the key/value pool reproducible. Zero picks a random seed.
	Seed uint64
}

// Validate checks c for values that cannot produce a run.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New(errors.CodeInvalidConfig, "host is required")
	case c.Port <= 0 || c.Port > 65535:
		return errors.Newf(errors.CodeInvalidConfig, "invalid port %d", c.Port)
	case c.Clients <= 0:
		return errors.Newf(errors.CodeInvalidConfig, "clients must be positive, got %d", c.Clients)
	case c.Duration <= 0:
		return errors.Newf(errors.CodeInvalidConfig, "duration must be positive, got %s", c.Duration)
	case c.Mode < ModeGet || c.Mode > ModeMixed:
		return errors.Newf(errors.CodeInvalidConfig, "mode must be 0, 1 or 2, got %d", c.Mode)
	case c.Rate < 0:
		return errors.Newf(errors.CodeInvalidConfig, "rate must not be negative, got %v", c.Rate)
	}
	return nil
}

func (c Config) baseURL() string {
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Report aggregates the results of a run.
type Report struct {
	Success      int64
	Failures     int64
	Elapsed      time.Duration
	TotalLatency time.Duration
	MinLatency   time.Duration
	MaxLatency   time.Duration
}

// Total is the number of completed requests.
func (r Report) Total() int64 { return r.Success + r.Failures }

// Throughput is completed requests per second of wall time.
func (r Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Total()) / r.Elapsed.Seconds()
}

// AvgLatency is the mean request latency.
func (r Report) AvgLatency() time.Duration {
	if r.Total() == 0 {
		return 0
	}
	return r.TotalLatency / time.Duration(r.Total())
}

func (r *Report) merge(o Report) {
	if o.Total() == 0 {
		return
	}
	if r.Total() == 0 || o.MinLatency < r.MinLatency {
		r.MinLatency = o.MinLatency
	}
	r.MaxLatency = max(r.MaxLatency, o.MaxLatency)
	r.Success += o.Success
	r.Failures += o.Failures
	r.TotalLatency += o.TotalLatency
}

func (r *Report) record(latency time.Duration, ok bool) {
	if r.Total() == 0 || latency < r.MinLatency {
		r.MinLatency = latency
	}
	r.MaxLatency = max(r.MaxLatency, latency)
	r.TotalLatency += latency
	if ok {
		r.Success++
	} else {
		r.Failures++
	}
}

// WriteTo prints r in a human-readable form.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintln(&b, "---- RESULTS ----")
	fmt.Fprintf(&b, "Total requests: %d\n", r.Total())
	fmt.Fprintf(&b, "Success:        %d\n", r.Success)
	fmt.Fprintf(&b, "Failures:       %d\n", r.Failures)
	fmt.Fprintf(&b, "Duration:       %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "Throughput:     %.1f req/s\n", r.Throughput())
	if r.Total() > 0 {
		fmt.Fprintf(&b, "Avg latency:    %.3f ms\n", ms(r.AvgLatency()))
		fmt.Fprintf(&b, "Min latency:    %.3f ms\n", ms(r.MinLatency))
		fmt.Fprintf(&b, "Max latency:    %.3f ms\n", ms(r.MaxLatency))
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Runner executes load runs.
type Runner struct {
	client *http.Client
	logger *zap.Logger
}

// NewRunner returns a Runner using client, or a pooled client with a
// per-request timeout when client is nil.
func NewRunner(client *http.Client, logger *zap.Logger) *Runner {
	if client == nil {
		client = &http.Client{
			Timeout: RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 1024,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{client: client, logger: logger}
}

// Run drives the server described by cfg until cfg.Duration elapses or ctx
// ends. A response with status below 500 counts as a success; transport
// errors and 5xx count as failures.
func (r *Runner) Run(ctx context.Context, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	keys, values := BuildPool(cfg.PoolSize, seed)
	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(1, cfg.Clients))
	}

	r.logger.Info("starting load",
		zap.String("target", cfg.baseURL()),
		zap.Int("clients", cfg.Clients),
		zap.Duration("duration", cfg.Duration),
		zap.Duration("think_time", cfg.ThinkTime),
		zap.Stringer("mode", cfg.Mode),
		zap.Float64("rate", cfg.Rate))

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	reports := make([]Report, cfg.Clients)
	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < cfg.Clients; i++ {
		w := &worker{
			runner:  r,
			base:    cfg.baseURL(),
			keys:    keys,
			values:  values,
			mode:    cfg.Mode,
			think:   cfg.ThinkTime,
			limiter: limiter,
			rng:     rand.New(rand.NewPCG(seed, uint64(i)+1)),
		}
		g.Go(func() error {
			reports[i] = w.run(gctx)
			return nil
		})
	}
	_ = g.Wait()

	var total Report
	for _, rep := range reports {
		total.merge(rep)
	}
	total.Elapsed = time.Since(start)
	return total, nil
}

type worker struct {
	runner  *Runner
	base    string
	keys    []string
	values  []string
	mode    Mode
	think   time.Duration
	limiter *rate.Limiter
	rng     *rand.Rand
}

func (w *worker) run(ctx context.Context) Report {
	var rep Report
	getRatio, putRatio := w.mode.ratios()

	for ctx.Err() == nil {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				break
			}
		}

		idx := w.rng.IntN(len(w.keys))
		roll := w.rng.Float64()

		var method, body string
		switch {
		case roll < getRatio:
			method = http.MethodGet
		case roll < getRatio+putRatio:
			method, body = http.MethodPut, w.values[idx]
		default:
			method = http.MethodDelete
		}

		start := time.Now()
		ok, err := w.do(ctx, method, w.base+"/api/"+w.keys[idx], body)
		latency := time.Since(start)
		if ctx.Err() != nil {
			// Requests cut short by the end of the run are not counted.
			break
		}
		if err != nil {
			w.runner.logger.Debug("request failed", zap.String("method", method), zap.Error(err))
		}
		rep.record(latency, ok)

		if w.think > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(w.think):
			}
		}
	}
	return rep
}

func (w *worker) do(ctx context.Context, method, url, body string) (bool, error) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return false, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "text/plain")
	}
	resp, err := w.runner.client.Do(req)
	if err != nil {
		return false, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError, nil
}

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// BuildPool returns n random keys and values. Entry i ends in "_i", so keys
// are unique even if the random parts collide.
func BuildPool(n int, seed uint64) (keys, values []string) {
	rng := rand.New(rand.NewPCG(seed, 0))
	keys = make([]string, n)
	values = make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = randomString(rng, KeyLength, i)
		values[i] = randomString(rng, ValueLength, i)
	}
	return keys, values
}

func randomString(rng *rand.Rand, length, index int) string {
	var b strings.Builder
	b.Grow(length + 8)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[rng.IntN(len(alphabet))])
	}
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(index))
	return b.String()
}
