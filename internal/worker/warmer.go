package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	aside "github.com/eugener/aside/internal"
	"github.com/eugener/aside/internal/telemetry"
)

// Fetcher is the engine operation the warmer drives.
type Fetcher interface {
	Fetch(ctx context.Context, req aside.FetchRequest) (*aside.FetchResult, error)
}

// WarmKey is a key the warmer keeps populated.
type WarmKey struct {
	Key      string
	TTL      aside.TTL
	Interval time.Duration // 0 = once at startup
}

// Warmer fetches configured keys through the engine so they are cached before
// clients ask for them. A live entry is left alone; an expired one is
// re-resolved. Failures are logged and retried on the next tick.
type Warmer struct {
	engine  Fetcher
	keys    []WarmKey
	metrics *telemetry.Metrics
}

// NewWarmer creates a Warmer. metrics may be nil.
func NewWarmer(engine Fetcher, keys []WarmKey, metrics *telemetry.Metrics) *Warmer {
	return &Warmer{engine: engine, keys: keys, metrics: metrics}
}

// Name returns the worker identifier.
func (w *Warmer) Name() string { return "warmer" }

// Run warms every key on its own schedule until ctx is cancelled.
func (w *Warmer) Run(ctx context.Context) error {
	if len(w.keys) == 0 {
		<-ctx.Done()
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, k := range w.keys {
		g.Go(func() error {
			return every(ctx, w.Name(), k.Interval, func(ctx context.Context) error {
				return w.warm(ctx, k)
			})
		})
	}
	return g.Wait()
}

func (w *Warmer) warm(ctx context.Context, k WarmKey) error {
	res, err := w.engine.Fetch(ctx, aside.FetchRequest{Key: k.Key, TTL: k.TTL, Mode: aside.ModeAutoResolve})
	if err != nil {
		w.count("failed")
		return err
	}
	if res.Warning != nil {
		w.count("failed")
		return res.Warning
	}
	w.count("ok")
	slog.LogAttrs(ctx, slog.LevelDebug, "warmed key",
		slog.String("key", k.Key),
		slog.String("source", string(res.Source)),
	)
	return nil
}

func (w *Warmer) count(result string) {
	if w.metrics != nil {
		w.metrics.WarmRuns.WithLabelValues(result).Inc()
	}
}
