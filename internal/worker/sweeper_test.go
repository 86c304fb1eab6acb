package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/eugener/aside/internal/circuitbreaker"
	"github.com/eugener/aside/internal/telemetry"
)

type fakeExpirer struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (f *fakeExpirer) DeleteExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func TestExpirySweeper(t *testing.T) {
	t.Parallel()

	store := &fakeExpirer{n: 3}
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	w := NewExpirySweeper(store, 10*time.Millisecond, m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for store.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if v := promtest.ToFloat64(m.SweptEntries); v < 6 {
		t.Errorf("swept = %v, want at least 6", v)
	}
}

func TestExpirySweeper_ErrorsAreNotFatal(t *testing.T) {
	t.Parallel()

	store := &fakeExpirer{err: errors.New("database is locked")}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := NewExpirySweeper(store, 10*time.Millisecond, nil).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.calls.Load() < 2 {
		t.Errorf("calls = %d, want retries after failure", store.calls.Load())
	}
}

func TestBreakerSweeper(t *testing.T) {
	t.Parallel()

	reg := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	reg.GetOrCreate("idle")

	w := NewBreakerSweeper(reg, time.Minute)
	w.now = func() time.Time { return time.Now().Add(time.Hour) }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if reg.Get("idle") != nil {
		t.Error("idle breaker should be evicted")
	}
}
