// Package httpapi exposes the key/value service over HTTP.
//
//	GET    /api/{key}  value, or NOT_FOUND
//	PUT    /api/{key}  body is the value; replies OK
//	DELETE /api/{key}  replies OK
//
// Every internal failure replies 500 "Server Error". All API bodies are
// text/plain.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/kvtier/service"
)

// Response bodies.
const (
	BodyOK          = "OK"
	BodyNotFound    = "NOT_FOUND"
	BodyServerError = "Server Error"
	BodyTooLarge    = "Payload Too Large"
	BodyHello       = "Hello World!"
)

// Service is the key/value core served by Handler.
type Service interface {
	Get(ctx context.Context, key string) (service.Result, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

var _ Service = (*service.Service)(nil)

// Handler routes HTTP requests to a Service.
type Handler struct {
	svc    Service
	opt    options
	logger *zap.Logger
	sem    *semaphore.Weighted
	mux    *http.ServeMux
}

// New returns a Handler for svc.
func New(svc Service, opts ...Option) *Handler {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	h := &Handler{
		svc:    svc,
		opt:    o,
		logger: o.logger,
		sem:    semaphore.NewWeighted(int64(o.workers)),
		mux:    http.NewServeMux(),
	}

	h.mux.Handle("GET /api/{key...}", h.api(h.get))
	h.mux.Handle("PUT /api/{key...}", h.api(h.put))
	h.mux.Handle("DELETE /api/{key...}", h.api(h.delete))
	h.mux.HandleFunc("GET /hi", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, BodyHello)
	})
	if o.metrics != nil {
		h.mux.Handle("GET /metrics", o.metrics)
	}
	if o.stats != nil {
		h.mux.HandleFunc("GET /debug/stats", h.debugStats)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type apiFunc func(w http.ResponseWriter, r *http.Request, key string) (status int, err error)

// api wraps an endpoint with admission control, key extraction, error
// reporting and request observation.
func (h *Handler) api(fn apiFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		key := r.PathValue("key")
		if key == "" {
			http.NotFound(w, r)
			h.opt.observer.ObserveRequest(r.Method, http.StatusNotFound, time.Since(start))
			return
		}

		if err := h.sem.Acquire(r.Context(), 1); err != nil {
			// Client went away while queued.
			writeText(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
			h.opt.observer.ObserveRequest(r.Method, http.StatusServiceUnavailable, time.Since(start))
			return
		}
		defer h.sem.Release(1)

		status, err := fn(w, r, key)
		if err != nil {
			h.logger.Error("request failed",
				zap.String("method", r.Method),
				zap.String("key", key),
				zap.String("code", string(errors.GetCode(err))),
				zap.Error(err))
		}
		h.opt.observer.ObserveRequest(r.Method, status, time.Since(start))
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, key string) (int, error) {
	res, err := h.svc.Get(r.Context(), key)
	if err != nil {
		return writeError(w, err), err
	}
	if !res.Found {
		writeText(w, http.StatusOK, BodyNotFound)
		return http.StatusOK, nil
	}
	writeText(w, http.StatusOK, res.Value)
	return http.StatusOK, nil
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request, key string) (int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opt.maxValueBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, BodyTooLarge)
			return http.StatusRequestEntityTooLarge, nil
		}
		writeText(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
		return http.StatusBadRequest, nil
	}

	if err := h.svc.Put(r.Context(), key, string(body)); err != nil {
		return writeError(w, err), err
	}
	writeText(w, http.StatusOK, BodyOK)
	return http.StatusOK, nil
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, key string) (int, error) {
	if err := h.svc.Delete(r.Context(), key); err != nil {
		return writeError(w, err), err
	}
	writeText(w, http.StatusOK, BodyOK)
	return http.StatusOK, nil
}

func (h *Handler) debugStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h.opt.stats()); err != nil {
		h.logger.Warn("encode stats", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) int {
	status := service.StatusCode(err)
	writeText(w, status, BodyServerError)
	return status
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
