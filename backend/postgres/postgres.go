// Package postgres stores key/value pairs in a PostgreSQL table through
// github.com/jackc/pgx/v5. Every pooled connection is a separate pgx.Conn;
// pooling itself is left to package pool.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/kvtier/pool"
)

// DefaultTable is the table created by Bootstrap.
const DefaultTable = "kvstore"

// Compile-time check that Dialer implements pool.Dialer.
var _ pool.Dialer = (*Dialer)(nil)

// Dialer opens pgx connections for one connection string.
type Dialer struct {
	cfg    *pgx.ConnConfig
	table  string
	q      queries
	logger *zap.Logger
}

type queries struct {
	create string
	get    string
	set    string
	remove string
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithTable overrides the table name.
func WithTable(name string) Option {
	return func(d *Dialer) { d.table = name }
}

// WithLogger sets the logger. If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dialer) { d.logger = l }
}

// New parses connString without connecting. A URL connection string may
// carry a table query parameter; options passed to New take precedence.
func New(connString string, opts ...Option) (*Dialer, error) {
	connString, table, err := splitTable(connString)
	if err != nil {
		return nil, err
	}
	if table != "" {
		opts = append([]Option{WithTable(table)}, opts...)
	}

	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "postgres: invalid connection string")
	}
	d := &Dialer{cfg: cfg, table: DefaultTable, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	d.q = buildQueries(d.table)
	return d, nil
}

// splitTable removes the table parameter, which pgx would otherwise send to
// the server as a runtime setting. Keyword/value strings pass through.
func splitTable(connString string) (string, string, error) {
	if !strings.HasPrefix(connString, "postgres://") && !strings.HasPrefix(connString, "postgresql://") {
		return connString, "", nil
	}
	u, err := url.Parse(connString)
	if err != nil {
		return "", "", errors.Wrap(err, errors.CodeInvalidConfig, "postgres: invalid connection string")
	}
	q := u.Query()
	if !q.Has("table") {
		return connString, "", nil
	}
	table := q.Get("table")
	q.Del("table")
	u.RawQuery = q.Encode()
	return u.String(), table, nil
}

func buildQueries(table string) queries {
	t := pgx.Identifier{table}.Sanitize()
	return queries{
		create: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT)", t),
		get:    fmt.Sprintf("SELECT value FROM %s WHERE key = $1", t),
		set: fmt.Sprintf("INSERT INTO %s (key, value) VALUES ($1, $2) "+
			"ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value", t),
		remove: fmt.Sprintf("DELETE FROM %s WHERE key = $1", t),
	}
}

// Bootstrap connects once and creates the table if it is missing.
func (d *Dialer) Bootstrap(ctx context.Context) error {
	c, err := pgx.ConnectConfig(ctx, d.cfg.Copy())
	if err != nil {
		return errors.Wrap(err, errors.CodeUnavailable, "postgres: failed to connect")
	}
	defer func() { _ = c.Close(ctx) }()

	if _, err := c.Exec(ctx, d.q.create); err != nil {
		return errors.Wrapf(err, errors.CodeDatabase, "postgres: failed to create table %s", d.table)
	}
	d.logger.Debug("table ready", zap.String("table", d.table))
	return nil
}

// Dial opens one session.
func (d *Dialer) Dial(ctx context.Context) (pool.Conn, error) {
	c, err := pgx.ConnectConfig(ctx, d.cfg.Copy())
	if err != nil {
		return nil, err
	}
	return &conn{c: c, q: &d.q}, nil
}

type conn struct {
	c *pgx.Conn
	q *queries
}

func (c *conn) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := c.c.QueryRow(ctx, c.q.get, key).Scan(&v)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *conn) Set(ctx context.Context, key, value string) error {
	_, err := c.c.Exec(ctx, c.q.set, key, value)
	return err
}

func (c *conn) Remove(ctx context.Context, key string) (bool, error) {
	tag, err := c.c.Exec(ctx, c.q.remove, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (c *conn) Close(ctx context.Context) error {
	return c.c.Close(ctx)
}
