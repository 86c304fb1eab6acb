package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	aside "github.com/eugener/aside/internal"
)

// FakeResolver is a configurable aside.Resolver that counts invocations.
type FakeResolver struct {
	// ResolveFn, when set, produces the result. Otherwise Data and Err are returned.
	ResolveFn func(ctx context.Context, key string) (json.RawMessage, error)
	Data      json.RawMessage
	Err       error

	calls atomic.Int32
	mu    sync.Mutex
	keys  []string
}

var _ aside.Resolver = (*FakeResolver)(nil)

// Resolve records the call and returns the configured result.
func (f *FakeResolver) Resolve(ctx context.Context, key string) (json.RawMessage, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	if f.ResolveFn != nil {
		return f.ResolveFn(ctx, key)
	}
	return f.Data, f.Err
}

// Calls returns how many times Resolve was invoked.
func (f *FakeResolver) Calls() int { return int(f.calls.Load()) }

// Keys returns the keys Resolve was invoked with, in order.
func (f *FakeResolver) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}
