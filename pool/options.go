package pool

import (
	"time"

	"go.uber.org/zap"
)

// DefaultSize matches the service's default worker count.
const DefaultSize = 8

// Metrics exposes pool-level observability hooks.
type Metrics interface {
	// ObserveAcquire records how long a caller waited for a connection.
	ObserveAcquire(wait time.Duration)
	// InUse reports the number of checked-out connections.
	InUse(n int)
	// BackendError counts a failed backend operation ("get", "set", "remove").
	BackendError(op string)
}

// NoopMetrics discards all pool signals.
type NoopMetrics struct{}

func (NoopMetrics) ObserveAcquire(time.Duration) {}
func (NoopMetrics) InUse(int)                    {}
func (NoopMetrics) BackendError(string)          {}

var _ Metrics = NoopMetrics{}

// Option configures a Pool.
type Option interface {
	apply(*options)
}

type options struct {
	size           int
	acquireTimeout time.Duration
	logger         *zap.Logger
	metrics        Metrics
}

func defaultOptions() options {
	return options{
		size:    DefaultSize,
		logger:  zap.NewNop(),
		metrics: NoopMetrics{},
	}
}

type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithSize sets the number of connections. Values below 1 are raised to 1.
func WithSize(n int) Option {
	return optionFunc(func(o *options) {
		if n < 1 {
			n = 1
		}
		o.size = n
	})
}

// WithAcquireTimeout bounds how long an operation waits for a free
// connection. Zero, the default, waits until one is released or the
// operation's context ends.
func WithAcquireTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.acquireTimeout = d
	})
}

// WithLogger sets the logger. If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithMetrics sets the metrics sink. If not set, NoopMetrics is used.
func WithMetrics(m Metrics) Option {
	return optionFunc(func(o *options) {
		if m != nil {
			o.metrics = m
		}
	})
}
