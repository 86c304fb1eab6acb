// Package server implements the HTTP transport layer for the aside gateway.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	aside "github.com/eugener/aside/internal"
	"github.com/eugener/aside/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Engine is the cache-aside engine the handlers drive.
type Engine interface {
	Fetch(ctx context.Context, req aside.FetchRequest) (*aside.FetchResult, error)
	Invalidate(ctx context.Context, key string) (aside.InvalidateResult, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Engine         Engine
	DefaultTTL     aside.TTL          // used when a request omits ?ttl
	MaxBodyBytes   int64              // 0 = 1 MiB
	CORSOrigins    []string           // empty = allow any origin
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(instrument(deps.Metrics))
	r.Use(corsHandler(deps.CORSOrigins))

	// System endpoints
	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Cache API. The wildcard lets keys contain "/".
	r.Route("/v1/cache", func(r chi.Router) {
		r.Get("/*", s.handleFetch)
		r.Post("/*", s.handleStore)
		r.Delete("/*", s.handleInvalidate)
	})

	return r
}

type server struct {
	deps Deps
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, cacheWarningHeader},
		MaxAge:         300,
	})
}
