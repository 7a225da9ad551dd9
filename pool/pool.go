package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrNotCreated is returned by operations issued before Create succeeded.
	ErrNotCreated = errors.New(errors.CodeUnavailable, "pool: not created")

	// ErrClosed is returned by operations issued after Close.
	ErrClosed = errors.New(errors.CodeUnavailable, "pool: closed")
)

type state int

const (
	stateNew state = iota
	stateCreating
	stateReady
	stateClosed
)

// Pool owns a fixed set of backend connections and hands one out per
// operation. When every connection is checked out, callers block until one
// is released; the pool never dials extra connections and never fails a
// caller because it is exhausted.
//
// Admission is a weighted semaphore sized to the pool, so the number of
// checked-out connections can never exceed Size and a release can never be
// lost against a concurrent acquire. The mutex guards only the free list
// and is never held across backend I/O.
type Pool struct {
	dialer Dialer
	opt    options
	sem    *semaphore.Weighted

	mu    sync.Mutex
	free  []Conn
	inUse int
	state state

	waits     atomic.Int64
	waitNanos atomic.Int64
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Size      int           `json:"size"`
	Idle      int           `json:"idle"`
	InUse     int           `json:"in_use"`
	Waits     int64         `json:"waits"`
	WaitTotal time.Duration `json:"wait_total_ns"`
}

// New returns a pool for dialer. No connections are opened until Create.
func New(dialer Dialer, opts ...Option) *Pool {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &Pool{
		dialer: dialer,
		opt:    o,
		sem:    semaphore.NewWeighted(int64(o.size)),
	}
}

// Size returns the configured number of connections.
func (p *Pool) Size() int { return p.opt.size }

// Create bootstraps the backend (connectivity check and create-if-absent
// namespace) and opens Size connections. If any step fails, every connection
// opened so far is closed before the error is returned, and Create may be
// called again.
func (p *Pool) Create(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case stateClosed:
		p.mu.Unlock()
		return ErrClosed
	case stateCreating, stateReady:
		p.mu.Unlock()
		return errors.New(errors.CodeConflict, "pool: already created")
	}
	p.state = stateCreating
	p.mu.Unlock()

	conns, err := p.open(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.state = stateNew
		return err
	}
	if p.state == stateClosed {
		p.closeAll(ctx, conns)
		return ErrClosed
	}
	p.free = conns
	p.state = stateReady
	p.opt.logger.Info("connection pool ready", zap.Int("size", p.opt.size))
	return nil
}

func (p *Pool) open(ctx context.Context) ([]Conn, error) {
	if err := p.dialer.Bootstrap(ctx); err != nil {
		return nil, errors.Wrap(err, codeOr(err, errors.CodeUnavailable), "pool: backend bootstrap failed")
	}

	conns := make([]Conn, 0, p.opt.size)
	for i := 0; i < p.opt.size; i++ {
		c, err := p.dialer.Dial(ctx)
		if err != nil {
			p.closeAll(ctx, conns)
			return nil, errors.WithContext(
				errors.Wrapf(err, errors.CodeUnavailable, "pool: opening connection %d of %d", i+1, p.opt.size),
				"opened", i)
		}
		conns = append(conns, c)
	}
	return conns, nil
}

// Get looks key up on a pooled connection.
func (p *Pool) Get(ctx context.Context, key string) (value string, found bool, err error) {
	err = p.withConn(ctx, "get", key, func(ctx context.Context, c Conn) error {
		var e error
		value, found, e = c.Get(ctx, key)
		return e
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Set upserts key→value on a pooled connection.
func (p *Pool) Set(ctx context.Context, key, value string) error {
	return p.withConn(ctx, "set", key, func(ctx context.Context, c Conn) error {
		return c.Set(ctx, key, value)
	})
}

// Remove deletes key on a pooled connection and reports whether a row was
// actually removed.
func (p *Pool) Remove(ctx context.Context, key string) (existed bool, err error) {
	err = p.withConn(ctx, "remove", key, func(ctx context.Context, c Conn) error {
		var e error
		existed, e = c.Remove(ctx, key)
		return e
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// withConn runs fn on a checked-out connection and returns it to the pool on
// every path, including a panic in fn. A failing connection stays in
// circulation. Cancelling ctx aborts acquisition but not fn.
func (p *Pool) withConn(ctx context.Context, op, key string, fn func(context.Context, Conn) error) error {
	c, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release(c)

	// A started command always runs to completion; pgx closes the session
	// when a query is interrupted.
	if err := fn(context.WithoutCancel(ctx), c); err != nil {
		p.opt.metrics.BackendError(op)
		return errors.WithContextMap(
			errors.Wrapf(err, errors.CodeDatabase, "backend %s failed", op),
			map[string]interface{}{"op": op, "key": key})
	}
	return nil
}

func (p *Pool) acquire(ctx context.Context) (Conn, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	if !p.sem.TryAcquire(1) {
		if p.opt.acquireTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.opt.acquireTimeout)
			defer cancel()
		}
		p.waits.Add(1)
		start := time.Now()
		err := p.sem.Acquire(ctx, 1)
		wait := time.Since(start)
		p.waitNanos.Add(int64(wait))
		p.opt.metrics.ObserveAcquire(wait)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeTimeout, "pool: gave up waiting for a connection")
		}
	} else {
		p.opt.metrics.ObserveAcquire(0)
	}

	p.mu.Lock()
	if p.state != stateReady {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrClosed
	}
	last := len(p.free) - 1
	c := p.free[last]
	p.free[last] = nil
	p.free = p.free[:last]
	p.inUse++
	n := p.inUse
	p.mu.Unlock()

	p.opt.metrics.InUse(n)
	return c, nil
}

func (p *Pool) release(c Conn) {
	p.mu.Lock()
	p.free = append(p.free, c)
	p.inUse--
	n := p.inUse
	p.mu.Unlock()

	p.opt.metrics.InUse(n)
	p.sem.Release(1)
}

func (p *Pool) ready() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateReady:
		return nil
	case stateClosed:
		return ErrClosed
	default:
		return ErrNotCreated
	}
}

// Stats returns the current pool occupancy and wait counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	idle, inUse := len(p.free), p.inUse
	p.mu.Unlock()
	return Stats{
		Size:      p.opt.size,
		Idle:      idle,
		InUse:     inUse,
		Waits:     p.waits.Load(),
		WaitTotal: time.Duration(p.waitNanos.Load()),
	}
}

// Close stops handing out connections, waits for checked-out ones to come
// back, and closes them all. Operations blocked in acquisition fail with
// ErrClosed. If ctx ends first, connections still checked out are left open.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	prev := p.state
	p.state = stateClosed
	p.mu.Unlock()
	if prev != stateReady {
		return nil
	}

	size := int64(p.opt.size)
	if err := p.sem.Acquire(ctx, size); err != nil {
		return errors.Wrap(err, errors.CodeTimeout, "pool: waiting for connections to be returned")
	}
	defer p.sem.Release(size)

	p.mu.Lock()
	conns := p.free
	p.free = nil
	p.mu.Unlock()

	p.closeAll(ctx, conns)
	p.opt.logger.Info("connection pool closed", zap.Int("closed", len(conns)))
	return nil
}

func (p *Pool) closeAll(ctx context.Context, conns []Conn) {
	for _, c := range conns {
		if err := c.Close(ctx); err != nil {
			p.opt.logger.Warn("closing backend connection", zap.Error(err))
		}
	}
}

// codeOr returns err's code, or fallback when err carries none.
func codeOr(err error, fallback errors.ErrorCode) errors.ErrorCode {
	if code := errors.GetCode(err); code != errors.CodeUnknown {
		return code
	}
	return fallback
}
