// Package config holds the server configuration and its command-line and
// environment bindings.
package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/spf13/pflag"

	"github.com/IvanBrykalov/kvtier/internal/logging"
)

// EnvDSN names the environment variable holding the backing-store DSN.
const EnvDSN = "DB_CONN"

// Defaults and bounds.
const (
	DefaultHost          = "localhost"
	DefaultPort          = 8000
	MinPort              = 1023
	MaxPort              = 65535
	DefaultThreads       = 8
	MinThreads           = 1
	MaxThreads           = 64
	DefaultCacheSize     = 1000
	MinCacheSize         = 1
	MaxCacheSize         = 1_000_000_000
	DefaultMaxValueBytes = 1 << 20
)

// Config is the complete server configuration.
type Config struct {
	Host string
	Port int

	// Threads bounds concurrent API requests and sizes the connection pool.
	Threads int

	// CacheSize is the total entry capacity across all buckets.
	CacheSize int

	// AcquireTimeout bounds waits for a pooled connection. Zero waits forever.
	AcquireTimeout time.Duration

	// CoalesceLoads shares one store read among concurrent misses on a key.
	CoalesceLoads bool

	// MaxValueBytes bounds PUT bodies.
	MaxValueBytes int64

	LogLevel  string
	LogFormat string

	// DSN selects and locates the backing store.
	DSN string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		Threads:       DefaultThreads,
		CacheSize:     DefaultCacheSize,
		CoalesceLoads: true,
		MaxValueBytes: DefaultMaxValueBytes,
		LogLevel:      "info",
		LogFormat:     logging.FormatJSON,
	}
}

// BindFlags registers c's fields on fs. Current values become the defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "listen host")
	fs.IntVar(&c.Port, "port", c.Port, "listen port (1023-65535)")
	fs.IntVar(&c.Threads, "threads", c.Threads, "concurrent request limit and pool size (clamped to 1-64)")
	fs.IntVar(&c.CacheSize, "cache-size", c.CacheSize, "total cache entries (clamped to 1-1e9)")
	fs.DurationVar(&c.AcquireTimeout, "pool-acquire-timeout", c.AcquireTimeout, "max wait for a backend connection, 0 waits forever")
	fs.BoolVar(&c.CoalesceLoads, "coalesce-loads", c.CoalesceLoads, "share one backend read among concurrent misses")
	fs.Int64Var(&c.MaxValueBytes, "max-value-bytes", c.MaxValueBytes, "largest accepted PUT body")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (json or console)")
}

// ApplyArgs reads the positional form [port] [threads] [cachesize].
// Missing trailing arguments leave the current values alone.
func (c *Config) ApplyArgs(args []string) error {
	targets := []struct {
		name string
		dst  *int
	}{
		{"port", &c.Port},
		{"threads", &c.Threads},
		{"cachesize", &c.CacheSize},
	}
	if len(args) > len(targets) {
		return errors.Newf(errors.CodeInvalidConfig, "format: kvtier [port] [threads] [cachesize], got %d arguments", len(args))
	}
	for i, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return errors.WithContext(
				errors.Wrapf(err, errors.CodeInvalidConfig, "invalid %s %q", targets[i].name, arg),
				"usage", "kvtier [port] [threads] [cachesize]")
		}
		*targets[i].dst = n
	}
	return nil
}

// FromEnv fills DSN from the environment when it is not already set.
func (c *Config) FromEnv() {
	if c.DSN == "" {
		c.DSN = os.Getenv(EnvDSN)
	}
}

// Normalize clamps the tunables to their supported ranges.
func (c *Config) Normalize() {
	c.Threads = clamp(c.Threads, MinThreads, MaxThreads)
	c.CacheSize = clamp(c.CacheSize, MinCacheSize, MaxCacheSize)
	if c.MaxValueBytes <= 0 {
		c.MaxValueBytes = DefaultMaxValueBytes
	}
	if c.AcquireTimeout < 0 {
		c.AcquireTimeout = 0
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
}

// Validate reports settings that cannot be clamped into shape.
func (c *Config) Validate() error {
	if c.Port < MinPort || c.Port > MaxPort {
		return errors.WithContextMap(
			errors.Newf(errors.CodeInvalidConfig, "port %d out of range", c.Port),
			map[string]interface{}{"min": MinPort, "max": MaxPort})
	}
	if c.DSN == "" {
		return errors.New(errors.CodeInvalidConfig, "database connection string is not provided")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
