package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/dnscache"

	aside "github.com/eugener/aside/internal"
	"github.com/eugener/aside/internal/cache"
	"github.com/eugener/aside/internal/circuitbreaker"
	"github.com/eugener/aside/internal/codec"
	"github.com/eugener/aside/internal/config"
	"github.com/eugener/aside/internal/engine"
	"github.com/eugener/aside/internal/server"
	"github.com/eugener/aside/internal/source"
	"github.com/eugener/aside/internal/telemetry"
	"github.com/eugener/aside/internal/worker"
)

// components holds everything the commands need, built from config.
type components struct {
	store    aside.Store
	breakers *circuitbreaker.Registry // nil when breakers are disabled
	dns      *dnscache.Resolver
	engine   *engine.Engine
}

// build opens the store and assembles sources and the engine. The caller
// must Close the result. ctx bounds OAuth2 token refreshes, so it should
// live as long as the components.
func build(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*components, error) {
	c, err := codec.New(cfg.Cache.Codec)
	if err != nil {
		return nil, err
	}

	store, err := cache.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	var breakers *circuitbreaker.Registry
	if cfg.Breaker.Enabled {
		breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
			ErrorThreshold: cfg.Breaker.ErrorThreshold,
			MinSamples:     cfg.Breaker.MinSamples,
			WindowSeconds:  cfg.Breaker.WindowSeconds,
			OpenTimeout:    cfg.Breaker.OpenTimeout,
		})
	}

	dns := &dnscache.Resolver{}
	_, router, err := source.FromConfig(ctx, cfg.Sources, cfg.Routes, dns, breakers)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	opts := []engine.Option{engine.WithCodec(c)}
	if metrics != nil {
		router.OnOpen(func(name string) { metrics.BreakerOpens.WithLabelValues(name).Inc() })
		opts = append(opts, engine.WithMetrics(metrics))
	}

	return &components{
		store:    store,
		breakers: breakers,
		dns:      dns,
		engine:   engine.New(store, router, opts...),
	}, nil
}

// Close releases the store.
func (c *components) Close() error {
	return c.store.Close()
}

// handler returns the HTTP API over the engine. Readiness follows the store,
// so an unreachable store at startup is reported by /readyz, not fatal.
func (c *components) handler(cfg *config.Config, metrics *telemetry.Metrics, metricsHandler http.Handler) http.Handler {
	return server.New(server.Deps{
		Engine:         c.engine,
		DefaultTTL:     aside.TTL(cfg.Cache.DefaultTTLs),
		CORSOrigins:    cfg.Server.CORSOrigins,
		ReadyCheck:     c.engine.Ping,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})
}

// workers returns the background tasks the server runs alongside HTTP.
func (c *components) workers(cfg *config.Config, metrics *telemetry.Metrics) []worker.Worker {
	ws := []worker.Worker{worker.NewDNSRefresher(c.dns, 0)}

	if len(cfg.Warm) > 0 {
		keys := make([]worker.WarmKey, 0, len(cfg.Warm))
		for _, w := range cfg.Warm {
			ttl := aside.TTL(w.TTLs)
			if ttl == 0 {
				ttl = aside.TTL(cfg.Cache.DefaultTTLs)
			}
			keys = append(keys, worker.WarmKey{Key: w.Key, TTL: ttl, Interval: w.Interval})
		}
		ws = append(ws, worker.NewWarmer(c.engine, keys, metrics))
	}

	if exp, ok := cache.Unwrap(c.store).(worker.Expirer); ok {
		ws = append(ws, worker.NewExpirySweeper(exp, cfg.Store.SQLite.SweepInterval, metrics))
	}

	if c.breakers != nil && cfg.Breaker.IdleEviction > 0 {
		ws = append(ws, worker.NewBreakerSweeper(c.breakers, cfg.Breaker.IdleEviction))
	}
	return ws
}
