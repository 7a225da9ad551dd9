package service

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/kvtier/cache"
	"github.com/IvanBrykalov/kvtier/internal/singleflight"
	"github.com/IvanBrykalov/kvtier/pool"
)

// Cache is the in-memory tier.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string) bool
	Delete(key string) bool
}

// Store is the durable tier.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) (existed bool, err error)
}

var (
	_ Cache = (*cache.Cache)(nil)
	_ Store = (*pool.Pool)(nil)
)

// Source tells where a Get result came from.
type Source int

const (
	// SourceNone means the key exists in neither tier.
	SourceNone Source = iota
	// SourceCache means the value was served from memory.
	SourceCache
	// SourceStore means the value was loaded from the backing store.
	SourceStore
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceStore:
		return "store"
	default:
		return "none"
	}
}

// Result is the outcome of a Get. Found is false when the key is absent;
// absence is not an error.
type Result struct {
	Value  string
	Found  bool
	Source Source
}

type load struct {
	value string
	found bool
}

// Service orchestrates reads and writes across the cache and the store.
type Service struct {
	cache  Cache
	store  Store
	opt    options
	loads  singleflight.Group[string, load]
	logger *zap.Logger
}

// New returns a Service over c and s.
func New(c Cache, s Store, opts ...Option) *Service {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &Service{
		cache:  c,
		store:  s,
		opt:    o,
		logger: o.logger,
	}
}

// Get returns the value for key. A cache miss reads the store and, when the
// store has the key, populates the cache before returning. A store failure
// is returned as is and leaves the cache untouched.
func (s *Service) Get(ctx context.Context, key string) (Result, error) {
	if v, ok := s.cache.Get(key); ok {
		return Result{Value: v, Found: true, Source: SourceCache}, nil
	}

	var (
		l   load
		err error
	)
	if s.opt.coalesce {
		var shared bool
		// The shared load outlives any single caller: one client leaving
		// must not fail the others waiting on the same key.
		l, shared, err = s.loads.Do(ctx, key, func() (load, error) {
			return s.load(context.WithoutCancel(ctx), key)
		})
		if shared {
			s.logger.Debug("coalesced store read", zap.String("key", key))
		}
	} else {
		l, err = s.load(ctx, key)
	}
	if err != nil {
		return Result{}, err
	}
	if !l.found {
		return Result{Source: SourceNone}, nil
	}
	return Result{Value: l.value, Found: true, Source: SourceStore}, nil
}

func (s *Service) load(ctx context.Context, key string) (load, error) {
	v, found, err := s.store.Get(ctx, key)
	if err != nil {
		return load{}, err
	}
	if found {
		s.cache.Set(key, v)
	}
	return load{value: v, found: found}, nil
}

// Put writes value to the store and, only once that succeeded, to the cache.
func (s *Service) Put(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		return err
	}
	s.cache.Set(key, value)
	return nil
}

// Delete removes key from the store and then from the cache. Deleting an
// absent key succeeds. If the store fails, the cached entry is kept.
func (s *Service) Delete(ctx context.Context, key string) error {
	existed, err := s.store.Remove(ctx, key)
	if err != nil {
		return err
	}
	s.cache.Delete(key)
	if !existed {
		s.logger.Debug("delete of absent key", zap.String("key", key))
	}
	return nil
}

// StatusCode maps an orchestration error to an HTTP status. Every failure
// kind, including pool exhaustion timeouts and closed pools, is reported as
// an internal error.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}
