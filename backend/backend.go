// Package backend opens the durable key/value store behind the cache tier.
// Open picks a driver from the DSN scheme and returns a pool.Dialer; the
// pool owns every connection the driver produces.
package backend

import (
	"net/url"

	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/kvtier/backend/memory"
	"github.com/IvanBrykalov/kvtier/backend/postgres"
	"github.com/IvanBrykalov/kvtier/backend/redis"
	"github.com/IvanBrykalov/kvtier/pool"
)

// Open returns a Dialer for dsn.
//
// Supported schemes:
//   - postgres://, postgresql://  PostgreSQL table kvstore(key, value)
//   - redis://, rediss://         Redis strings under a key prefix
//   - memory://                   process-local map (development, tests)
func Open(dsn string, logger *zap.Logger) (pool.Dialer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "backend: malformed connection string")
	}

	// A failed constructor must yield an untyped nil Dialer.
	switch u.Scheme {
	case "postgres", "postgresql":
		d, err := postgres.New(dsn, postgres.WithLogger(logger.Named("postgres")))
		if err != nil {
			return nil, err
		}
		return d, nil
	case "redis", "rediss":
		d, err := redis.New(dsn, redis.WithLogger(logger.Named("redis")))
		if err != nil {
			return nil, err
		}
		return d, nil
	case "memory":
		s, err := memory.Parse(u)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "":
		return nil, errors.New(errors.CodeInvalidConfig, "backend: connection string has no scheme")
	default:
		return nil, errors.Newf(errors.CodeInvalidConfig, "backend: unsupported scheme %q", u.Scheme)
	}
}
