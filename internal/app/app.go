// Package app wires the server together with fx.
package app

import (
	"context"
	"net"
	"net/http"

	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/kvtier/backend"
	"github.com/IvanBrykalov/kvtier/cache"
	"github.com/IvanBrykalov/kvtier/internal/config"
	"github.com/IvanBrykalov/kvtier/internal/httpapi"
	"github.com/IvanBrykalov/kvtier/metrics/prom"
	"github.com/IvanBrykalov/kvtier/pool"
	"github.com/IvanBrykalov/kvtier/service"
)

// Namespace prefixes every exported metric.
const Namespace = "kvtier"

// Module provides the caching tier and its HTTP server.
// Requires a config.Config and a *zap.Logger to be provided.
var Module = fx.Module("kvtier",
	fx.Provide(
		newRegistry,
		newMetrics,
		newCache,
		newDialer,
		newPool,
		newService,
		newHandler,
		newServer,
	),
	fx.Invoke(func(*Server) {}),
)

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) *prom.Adapter {
	return prom.New(reg, Namespace, nil)
}

func newCache(cfg config.Config, m *prom.Adapter) *cache.Cache {
	return cache.New(cache.Options{
		Capacity: cfg.CacheSize,
		Buckets:  cache.DefaultBuckets,
		Metrics:  m,
	})
}

func newDialer(cfg config.Config, log *zap.Logger) (pool.Dialer, error) {
	return backend.Open(cfg.DSN, log.Named("backend"))
}

// PoolParams holds dependencies for creating the pool.
type PoolParams struct {
	fx.In

	Config    config.Config
	Dialer    pool.Dialer
	Metrics   *prom.Adapter
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
}

func newPool(p PoolParams) *pool.Pool {
	pl := pool.New(p.Dialer,
		pool.WithSize(p.Config.Threads),
		pool.WithAcquireTimeout(p.Config.AcquireTimeout),
		pool.WithMetrics(p.Metrics),
		pool.WithLogger(p.Logger.Named("pool")),
	)
	p.Lifecycle.Append(fx.Hook{
		OnStart: pl.Create,
		OnStop:  pl.Close,
	})
	return pl
}

func newService(cfg config.Config, c *cache.Cache, pl *pool.Pool, log *zap.Logger) *service.Service {
	return service.New(c, pl,
		service.WithCoalescing(cfg.CoalesceLoads),
		service.WithLogger(log.Named("service")),
	)
}

// Stats is the /debug/stats payload.
type Stats struct {
	Cache cache.Stats `json:"cache"`
	Pool  pool.Stats  `json:"pool"`
}

// HandlerParams holds dependencies for creating the HTTP handler.
type HandlerParams struct {
	fx.In

	Config   config.Config
	Service  *service.Service
	Cache    *cache.Cache
	Pool     *pool.Pool
	Metrics  *prom.Adapter
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

func newHandler(p HandlerParams) *httpapi.Handler {
	return httpapi.New(p.Service,
		httpapi.WithWorkers(p.Config.Threads),
		httpapi.WithMaxValueBytes(p.Config.MaxValueBytes),
		httpapi.WithObserver(p.Metrics),
		httpapi.WithLogger(p.Logger.Named("http")),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})),
		httpapi.WithStats(func() any {
			return Stats{Cache: p.Cache.Stats(), Pool: p.Pool.Stats()}
		}),
	)
}

// Server is the running HTTP listener.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
}

// Addr returns the bound address once the server has started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func newServer(lc fx.Lifecycle, cfg config.Config, h *httpapi.Handler, log *zap.Logger) *Server {
	s := &Server{
		srv:    httpapi.NewServer(cfg.Addr(), h),
		logger: log.Named("server"),
	}
	lc.Append(fx.Hook{
		OnStart: s.start,
		OnStop:  s.srv.Shutdown,
	})
	return s
}

func (s *Server) start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeUnavailable, "listen"),
			"addr", s.srv.Addr)
	}
	s.ln = ln
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve", zap.Error(err))
		}
	}()
	return nil
}
