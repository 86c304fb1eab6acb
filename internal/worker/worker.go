// Package worker provides the gateway's background tasks and the runner that
// supervises them.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Worker is a long-running background task.
type Worker interface {
	// Name identifies the worker in logs.
	Name() string
	// Run blocks until ctx is cancelled or an unrecoverable error occurs.
	Run(ctx context.Context) error
}

// every calls fn immediately and then once per interval until ctx is done.
// A non-positive interval runs fn once and then waits for cancellation.
// Errors from fn are logged and never stop the loop.
func every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	run := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "worker pass failed",
				slog.String("worker", name),
				slog.String("error", err.Error()),
			)
		}
	}

	run()
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			run()
		case <-ctx.Done():
			return nil
		}
	}
}
