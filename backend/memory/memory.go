// Package memory provides a process-local backing store. It is meant for
// development and tests: data lives as long as the Store value.
package memory

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/kvtier/pool"
)

// Compile-time check that Store implements pool.Dialer.
var _ pool.Dialer = (*Store)(nil)

// Store is an in-memory key/value map shared by every connection dialed
// from it.
type Store struct {
	mu   sync.RWMutex
	data map[string]string

	// latency is added to every operation to mimic a remote store.
	latency time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLatency delays every operation by d.
func WithLatency(d time.Duration) Option {
	return func(s *Store) { s.latency = d }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{data: make(map[string]string)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Parse builds a store from a memory:// URL. The only recognised query
// parameter is latency, a time.ParseDuration string.
func Parse(u *url.URL) (*Store, error) {
	var opts []Option
	if v := u.Query().Get("latency"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "memory: bad latency %q", v)
		}
		opts = append(opts, WithLatency(d))
	}
	return New(opts...), nil
}

// Bootstrap is a no-op; the map always exists.
func (s *Store) Bootstrap(context.Context) error { return nil }

// Dial returns a new session over the shared map.
func (s *Store) Dial(context.Context) (pool.Conn, error) {
	return &conn{s: s}, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Lookup reads key directly, bypassing connections (for test assertions).
func (s *Store) Lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

type conn struct {
	s      *Store
	closed bool
}

var errConnClosed = errors.New(errors.CodeUnavailable, "memory: connection closed")

func (c *conn) wait(ctx context.Context) error {
	if c.closed {
		return errConnClosed
	}
	if c.s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.s.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) Get(ctx context.Context, key string) (string, bool, error) {
	if err := c.wait(ctx); err != nil {
		return "", false, err
	}
	v, ok := c.s.Lookup(key)
	return v, ok, nil
}

func (c *conn) Set(ctx context.Context, key, value string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.data[key] = value
	return nil
}

func (c *conn) Remove(ctx context.Context, key string) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	_, ok := c.s.data[key]
	delete(c.s.data, key)
	return ok, nil
}

func (c *conn) Close(context.Context) error {
	c.closed = true
	return nil
}
