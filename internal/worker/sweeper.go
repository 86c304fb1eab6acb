package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/eugener/aside/internal/circuitbreaker"
	"github.com/eugener/aside/internal/telemetry"
)

// Expirer is a store that keeps expired rows until they are swept.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// ExpirySweeper periodically deletes expired rows from a persistent store.
type ExpirySweeper struct {
	store    Expirer
	interval time.Duration
	metrics  *telemetry.Metrics
}

// NewExpirySweeper creates an ExpirySweeper. metrics may be nil.
func NewExpirySweeper(store Expirer, interval time.Duration, metrics *telemetry.Metrics) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{store: store, interval: interval, metrics: metrics}
}

// Name returns the worker identifier.
func (w *ExpirySweeper) Name() string { return "expiry_sweeper" }

// Run sweeps once at startup and then every interval until ctx is cancelled.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	return every(ctx, w.Name(), w.interval, w.sweep)
}

func (w *ExpirySweeper) sweep(ctx context.Context) error {
	n, err := w.store.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		if w.metrics != nil {
			w.metrics.SweptEntries.Add(float64(n))
		}
		slog.LogAttrs(ctx, slog.LevelDebug, "expired entries swept", slog.Int64("count", n))
	}
	return nil
}

// BreakerSweeper drops circuit breakers for sources that have been idle
// longer than idle.
type BreakerSweeper struct {
	breakers *circuitbreaker.Registry
	idle     time.Duration
	now      func() time.Time
}

// NewBreakerSweeper creates a BreakerSweeper.
func NewBreakerSweeper(breakers *circuitbreaker.Registry, idle time.Duration) *BreakerSweeper {
	return &BreakerSweeper{breakers: breakers, idle: idle, now: time.Now}
}

// Name returns the worker identifier.
func (w *BreakerSweeper) Name() string { return "breaker_sweeper" }

// Run evicts idle breakers every idle/2 until ctx is cancelled.
func (w *BreakerSweeper) Run(ctx context.Context) error {
	interval := w.idle / 2
	if interval <= 0 {
		interval = time.Minute
	}
	return every(ctx, w.Name(), interval, func(ctx context.Context) error {
		if n := w.breakers.EvictStale(w.now().Add(-w.idle)); n > 0 {
			slog.LogAttrs(ctx, slog.LevelDebug, "idle breakers evicted",
				slog.Int("count", n),
				slog.Any("remaining", w.breakers.Names()),
			)
		}
		return nil
	})
}
