package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Observer receives one call per API request.
type Observer interface {
	ObserveRequest(method string, status int, d time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, int, time.Duration) {}

// Option configures a Handler.
type Option interface {
	apply(*options)
}

type options struct {
	logger        *zap.Logger
	observer      Observer
	workers       int
	maxValueBytes int64
	metrics       http.Handler
	stats         func() any
}

func defaultOptions() options {
	return options{
		logger:        zap.NewNop(),
		observer:      noopObserver{},
		workers:       8,
		maxValueBytes: 1 << 20,
	}
}

type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithObserver sets the request observer. A nil observer is ignored.
func WithObserver(obs Observer) Option {
	return optionFunc(func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	})
}

// WithWorkers bounds how many API requests run at once. Values below 1 are
// raised to 1.
func WithWorkers(n int) Option {
	return optionFunc(func(o *options) { o.workers = max(1, n) })
}

// WithMaxValueBytes bounds PUT bodies. Non-positive values keep the default.
func WithMaxValueBytes(n int64) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.maxValueBytes = n
		}
	})
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return optionFunc(func(o *options) { o.metrics = h })
}

// WithStats mounts a JSON snapshot produced by fn on /debug/stats.
func WithStats(fn func() any) Option {
	return optionFunc(func(o *options) { o.stats = fn })
}
