// Package engine implements the cache-aside decision flow: look a key up in the
// store, and on a miss obtain a fresh value, write it back with a TTL and
// return it.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	aside "github.com/eugener/aside/internal"
	"github.com/eugener/aside/internal/codec"
	"github.com/eugener/aside/internal/telemetry"
)

const tracerName = "github.com/eugener/aside/internal/engine"

// Engine runs fetch-or-populate and invalidate against a store.
//
// The engine keeps no state between calls and takes no locks. Concurrent
// misses on the same key are not coalesced: each caller resolves
// independently and writes its own value, and the last write wins.
type Engine struct {
	store    aside.Store
	resolver aside.Resolver
	codec    codec.Codec
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithCodec sets the value codec. The default stores JSON verbatim.
func WithCodec(c codec.Codec) Option {
	return func(e *Engine) { e.codec = c }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New returns an Engine over store. resolver serves auto-resolve misses and
// may be nil when only caller-supplied values are used.
func New(store aside.Store, resolver aside.Resolver, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		resolver: resolver,
		codec:    codec.JSON{},
		tracer:   telemetry.Tracer(tracerName),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Fetch returns the cached value for req.Key, or on a miss obtains a fresh
// value according to req.Mode, stores it for req.TTL and returns it.
//
// A hit does not refresh the entry's TTL. A fresh value is returned in its
// stored form, so a later hit yields identical bytes. If the fresh value
// cannot be written the value is still returned, with Warning set.
func (e *Engine) Fetch(ctx context.Context, req aside.FetchRequest) (*aside.FetchResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Fetch", trace.WithAttributes(
		attribute.String("cache.key", req.Key),
		attribute.String("cache.mode", req.Mode.String()),
		attribute.Int("cache.ttl_s", int(req.TTL)),
	))
	defer span.End()

	if err := validateFetch(req); err != nil {
		return nil, fail(span, err)
	}

	raw, hit, err := e.store.Get(ctx, req.Key)
	if err != nil {
		e.storeError("get")
		return nil, fail(span, fmt.Errorf("get %q: %w", req.Key, storeErr(err)))
	}
	if hit {
		data, err := e.codec.Decode(raw)
		if err == nil {
			e.lookup("hit")
			span.SetAttributes(attribute.String("cache.source", string(aside.SourceCache)))
			return &aside.FetchResult{Source: aside.SourceCache, Data: data}, nil
		}
		// Written under a different codec or corrupted; overwrite it.
		slog.LogAttrs(ctx, slog.LevelWarn, "undecodable cache entry, repopulating",
			slog.String("key", req.Key),
			slog.String("codec", e.codec.Name()),
			slog.String("error", err.Error()),
		)
	}
	e.lookup("miss")

	var data json.RawMessage
	switch req.Mode {
	case aside.ModeCallerSupplied:
		data = req.Payload
	default:
		data, err = e.resolve(ctx, req.Key)
		if err != nil {
			return nil, fail(span, err)
		}
	}

	enc, err := e.codec.Encode(data)
	if err == nil {
		// Return what a later hit will return.
		data, err = e.codec.Decode(enc)
	}
	if err != nil {
		if req.Mode == aside.ModeAutoResolve {
			return nil, fail(span, fmt.Errorf("%w: resolve %q: %w", aside.ErrUpstreamFailure, req.Key, err))
		}
		return nil, fail(span, fmt.Errorf("%w: payload for %q: %w", aside.ErrInvalidRequest, req.Key, err))
	}

	res := &aside.FetchResult{Source: aside.SourceFresh, Data: data}
	span.SetAttributes(attribute.String("cache.source", string(aside.SourceFresh)))

	if err := e.store.Set(ctx, req.Key, enc, req.TTL.Duration()); err != nil {
		e.storeError("set")
		e.population(req.Mode, "failed")
		res.Warning = fmt.Errorf("%w: set %q: %w", aside.ErrCachePopulationFailed, req.Key, err)
		span.AddEvent("cache population failed")
		slog.LogAttrs(ctx, slog.LevelWarn, "cache population failed",
			slog.String("key", req.Key),
			slog.String("request_id", aside.RequestIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return res, nil
	}
	e.population(req.Mode, "ok")
	return res, nil
}

// Invalidate removes key from the store. Removing an absent key is not an
// error; it reports NotFound.
func (e *Engine) Invalidate(ctx context.Context, key string) (aside.InvalidateResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Invalidate", trace.WithAttributes(
		attribute.String("cache.key", key),
	))
	defer span.End()

	if err := validateKey(key); err != nil {
		return aside.NotFound, fail(span, err)
	}

	removed, err := e.store.Delete(ctx, key)
	if err != nil {
		e.storeError("delete")
		return aside.NotFound, fail(span, fmt.Errorf("delete %q: %w", key, storeErr(err)))
	}
	res := aside.NotFound
	if removed {
		res = aside.Removed
	}
	if e.metrics != nil {
		e.metrics.Invalidations.WithLabelValues(res.String()).Inc()
	}
	span.SetAttributes(attribute.String("cache.result", res.String()))
	return res, nil
}

// Ping checks that the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (e *Engine) resolve(ctx context.Context, key string) (json.RawMessage, error) {
	if e.resolver == nil {
		return nil, fmt.Errorf("%w: no resolver configured", aside.ErrUpstreamFailure)
	}

	start := time.Now()
	data, err := e.resolver.Resolve(ctx, key)
	if e.metrics != nil {
		e.metrics.ResolverDuration.Observe(time.Since(start).Seconds())
	}
	if err == nil && len(data) == 0 {
		err = errors.New("empty response")
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.ResolverErrors.Inc()
		}
		if errors.Is(err, aside.ErrUpstreamFailure) {
			return nil, fmt.Errorf("resolve %q: %w", key, err)
		}
		return nil, fmt.Errorf("%w: resolve %q: %w", aside.ErrUpstreamFailure, key, err)
	}
	return data, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key must not be empty", aside.ErrInvalidRequest)
	}
	return nil
}

func validateFetch(req aside.FetchRequest) error {
	if err := validateKey(req.Key); err != nil {
		return err
	}
	if !req.TTL.Valid() {
		return fmt.Errorf("%w: ttl must be positive, got %d", aside.ErrInvalidRequest, req.TTL)
	}
	switch req.Mode {
	case aside.ModeAutoResolve:
	case aside.ModeCallerSupplied:
		if len(req.Payload) == 0 {
			return fmt.Errorf("%w: payload is required", aside.ErrInvalidRequest)
		}
		if !json.Valid(req.Payload) {
			return fmt.Errorf("%w: payload is not valid JSON", aside.ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", aside.ErrInvalidRequest, req.Mode)
	}
	return nil
}

// storeErr makes sure err carries ErrStoreUnavailable.
func storeErr(err error) error {
	if errors.Is(err, aside.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", aside.ErrStoreUnavailable, err)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, aside.Kind(err))
	return err
}

func (e *Engine) lookup(result string) {
	if e.metrics != nil {
		e.metrics.Lookups.WithLabelValues(result).Inc()
	}
}

func (e *Engine) population(mode aside.Mode, result string) {
	if e.metrics != nil {
		e.metrics.Populations.WithLabelValues(mode.String(), result).Inc()
	}
}

func (e *Engine) storeError(op string) {
	if e.metrics != nil {
		e.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}
