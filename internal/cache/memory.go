package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// entry wraps a cached value with its expiration time.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process W-TinyLFU store backed by otter. Entries expire
// individually at now+ttl from their last write.
type Memory struct {
	cache *otter.Cache[string, entry]
}

// NewMemory creates an in-memory store holding at most maxSize entries.
func NewMemory(maxSize int) (*Memory, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize: maxSize,
		ExpiryCalculator: otter.ExpiryWritingFunc(func(e otter.Entry[string, entry]) time.Duration {
			return time.Until(e.Value.expiresAt)
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory{cache: c}, nil
}

// Get retrieves a value if present and not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok || !time.Now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.data, true, nil
}

// Set stores a value with per-entry TTL.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	data := make([]byte, len(val))
	copy(data, val)
	m.cache.Set(key, entry{
		data:      data,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// Delete removes a value and reports whether a live entry was removed.
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	e, ok := m.cache.Invalidate(key)
	return ok && time.Now().Before(e.expiresAt), nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close drops all entries.
func (m *Memory) Close() error {
	m.cache.InvalidateAll()
	return nil
}
