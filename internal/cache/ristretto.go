package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/eugener/aside/internal/config"
)

// Ristretto is an in-process store backed by dgraph-io/ristretto with
// per-entry TTL. Writes are cost-weighted by value size and may be dropped
// by admission under pressure; a dropped write surfaces as ErrRejected.
type Ristretto struct {
	c *ristretto.Cache
}

// NewRistretto creates a ristretto-backed store.
func NewRistretto(cfg config.RistrettoConfig) (*Ristretto, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: num_counters, max_cost and buffer_items must be positive")
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{c: c}, nil
}

func (r *Ristretto) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := r.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		r.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set stores val and waits for the write buffer to drain so the entry is
// visible to the next Get. The admission policy can still refuse a buffered
// write, so the entry is read back before Set reports success.
func (r *Ristretto) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	data := make([]byte, len(val))
	copy(data, val)
	if !r.c.SetWithTTL(key, data, int64(len(data)), ttl) {
		return fmt.Errorf("%w: ristretto set %q: dropped", ErrRejected, key)
	}
	r.c.Wait()
	if _, ok := r.c.Get(key); !ok {
		return fmt.Errorf("%w: ristretto set %q: not admitted", ErrRejected, key)
	}
	return nil
}

// Delete removes key. Ristretto has no delete-and-report primitive, so the
// presence check and the delete are two steps.
func (r *Ristretto) Delete(_ context.Context, key string) (bool, error) {
	_, ok := r.c.Get(key)
	r.c.Del(key)
	return ok, nil
}

func (r *Ristretto) Ping(context.Context) error { return nil }

func (r *Ristretto) Close() error {
	r.c.Close()
	return nil
}
