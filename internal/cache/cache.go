// Package cache implements the key-value store adapters behind the gateway.
//
// Every adapter satisfies aside.Store: misses are (nil, false, nil), deletes
// report whether an entry was removed, and backend failures wrap
// aside.ErrStoreUnavailable. Adapters never cache locally on top of their backend.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	aside "github.com/eugener/aside/internal"
	"github.com/eugener/aside/internal/config"
)

// ErrRejected is returned when a backend drops a write under memory pressure.
var ErrRejected = errors.New("write rejected")

// Open builds the store selected by cfg.Driver, namespaced under cfg.KeyPrefix.
// Network backends are not dialed here; use Ping to check reachability.
func Open(cfg config.StoreConfig) (aside.Store, error) {
	var (
		s   aside.Store
		err error
	)
	switch cfg.Driver {
	case config.DriverRedis:
		s, err = NewRedis(cfg.Redis)
	case config.DriverMemory:
		s, err = NewMemory(cfg.Memory.MaxSize)
	case config.DriverRistretto:
		s, err = NewRistretto(cfg.Ristretto)
	case config.DriverBolt:
		s, err = OpenBolt(cfg.Bolt)
	case config.DriverSQLite:
		s, err = OpenSQLite(cfg.SQLite.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return WithPrefix(s, cfg.KeyPrefix), nil
}

// unavailable wraps a backend error so callers can classify it.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", aside.ErrStoreUnavailable, op, err)
}

// Prefixed namespaces every key of the wrapped store.
type Prefixed struct {
	aside.Store
	prefix string
}

// WithPrefix returns s with keys namespaced under prefix. An empty prefix
// returns s unchanged.
func WithPrefix(s aside.Store, prefix string) aside.Store {
	if prefix == "" {
		return s
	}
	return &Prefixed{Store: s, prefix: prefix}
}

// Unwrap returns the underlying store.
func (p *Prefixed) Unwrap() aside.Store { return p.Store }

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.Store.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return p.Store.Set(ctx, p.prefix+key, val, ttl)
}

func (p *Prefixed) Delete(ctx context.Context, key string) (bool, error) {
	return p.Store.Delete(ctx, p.prefix+key)
}

// Unwrap peels prefix wrappers off s.
func Unwrap(s aside.Store) aside.Store {
	for {
		p, ok := s.(*Prefixed)
		if !ok {
			return s
		}
		s = p.Store
	}
}
