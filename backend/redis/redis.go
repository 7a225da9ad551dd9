// Package redis stores key/value pairs as Redis strings through
// github.com/redis/go-redis/v9. Each pooled connection is a client pinned to
// a single network connection, so package pool stays the only admission
// point.
package redis

import (
	"context"
	stderrors "errors"
	"net/url"

	"github.com/jmgilman/go/errors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/kvtier/pool"
)

// DefaultPrefix namespaces every key written by the service.
const DefaultPrefix = "kvstore:"

// Compile-time check that Dialer implements pool.Dialer.
var _ pool.Dialer = (*Dialer)(nil)

// Dialer opens single-connection Redis clients.
type Dialer struct {
	opt    *goredis.Options
	prefix string
	logger *zap.Logger
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithPrefix overrides the key prefix.
func WithPrefix(p string) Option {
	return func(d *Dialer) { d.prefix = p }
}

// WithLogger sets the logger. If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dialer) { d.logger = l }
}

// New parses a redis:// or rediss:// URL without connecting. A prefix query
// parameter overrides DefaultPrefix; other parameters are go-redis options.
func New(rawURL string, opts ...Option) (*Dialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "redis: invalid connection string")
	}
	prefix := DefaultPrefix
	q := u.Query()
	if q.Has("prefix") {
		prefix = q.Get("prefix")
		q.Del("prefix")
		u.RawQuery = q.Encode()
	}

	o, err := goredis.ParseURL(u.String())
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "redis: invalid connection string")
	}
	o.PoolSize = 1
	o.MinIdleConns = 0

	d := &Dialer{opt: o, prefix: prefix, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Dialer) client() *goredis.Client {
	o := *d.opt
	return goredis.NewClient(&o)
}

// Bootstrap checks connectivity with PING. Redis needs no schema.
func (d *Dialer) Bootstrap(ctx context.Context) error {
	c := d.client()
	defer func() { _ = c.Close() }()
	if err := c.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.CodeUnavailable, "redis: failed to connect")
	}
	d.logger.Debug("redis reachable", zap.String("addr", d.opt.Addr), zap.String("prefix", d.prefix))
	return nil
}

// Dial opens one client and verifies it with PING.
func (d *Dialer) Dial(ctx context.Context) (pool.Conn, error) {
	c := d.client()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &conn{c: c, prefix: d.prefix}, nil
}

type conn struct {
	c      *goredis.Client
	prefix string
}

func (c *conn) key(k string) string { return c.prefix + k }

func (c *conn) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.c.Get(ctx, c.key(key)).Result()
	if stderrors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *conn) Set(ctx context.Context, key, value string) error {
	return c.c.Set(ctx, c.key(key), value, 0).Err()
}

func (c *conn) Remove(ctx context.Context, key string) (bool, error) {
	n, err := c.c.Del(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *conn) Close(context.Context) error {
	return c.c.Close()
}
