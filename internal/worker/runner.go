package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner manages a set of workers, cancelling all on first error.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner with the given workers.
func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Len returns the number of supervised workers.
func (r *Runner) Len() int { return len(r.workers) }

// Run starts all workers and blocks until they have all returned. The first
// non-nil error cancels the rest and is returned.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		slog.LogAttrs(ctx, slog.LevelInfo, "worker started", slog.String("worker", w.Name()))
		g.Go(func() error {
			defer slog.LogAttrs(context.Background(), slog.LevelInfo, "worker stopped", slog.String("worker", w.Name()))
			return w.Run(ctx)
		})
	}
	return g.Wait()
}
