package service

import "go.uber.org/zap"

// Option configures a Service.
type Option interface {
	apply(*options)
}

type options struct {
	logger   *zap.Logger
	coalesce bool
}

func defaultOptions() options {
	return options{
		logger:   zap.NewNop(),
		coalesce: true,
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

// WithCoalescing toggles sharing of one store read among concurrent misses
// for the same key. Enabled by default.
func WithCoalescing(on bool) Option {
	return optionFunc(func(o *options) { o.coalesce = on })
}
