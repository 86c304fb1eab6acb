// Package testutil provides configurable test fakes for aside interfaces.
package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	aside "github.com/eugener/aside/internal"
)

// Call records one store operation.
type Call struct {
	Op  string // "get", "set", "delete"
	Key string
	TTL time.Duration // set only
}

// FakeStore is an in-memory aside.Store that records every call and returns
// injected errors when configured. Entries never expire on their own; use
// Expire to simulate TTL expiry.
type FakeStore struct {
	GetErr    error
	SetErr    error
	DeleteErr error
	PingErr   error

	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	calls   []Call
	closed  bool
}

var _ aside.Store = (*FakeStore)(nil)

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

// Get returns the stored value or GetErr.
func (s *FakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "get", Key: key})
	if s.GetErr != nil {
		return nil, false, s.GetErr
	}
	v, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Set stores val and its TTL, or returns SetErr without storing.
func (s *FakeStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "set", Key: key, TTL: ttl})
	if s.SetErr != nil {
		return s.SetErr
	}
	s.entries[key] = slices.Clone(val)
	s.ttls[key] = ttl
	return nil
}

// Delete removes key, or returns DeleteErr.
func (s *FakeStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "delete", Key: key})
	if s.DeleteErr != nil {
		return false, s.DeleteErr
	}
	_, ok := s.entries[key]
	delete(s.entries, key)
	delete(s.ttls, key)
	return ok, nil
}

// Ping returns PingErr.
func (s *FakeStore) Ping(context.Context) error { return s.PingErr }

// Close marks the store closed.
func (s *FakeStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Put seeds an entry without recording a call.
func (s *FakeStore) Put(key string, val []byte, ttl time.Duration) {
	s.mu.Lock()
	s.entries[key] = slices.Clone(val)
	s.ttls[key] = ttl
	s.mu.Unlock()
}

// Expire drops key as if its TTL had elapsed.
func (s *FakeStore) Expire(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	delete(s.ttls, key)
	s.mu.Unlock()
}

// Value returns the raw stored bytes for key.
func (s *FakeStore) Value(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok
}

// TTL returns the TTL key was last stored with.
func (s *FakeStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

// Len returns the number of stored entries.
func (s *FakeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Calls returns a copy of the recorded calls.
func (s *FakeStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Mutations returns the recorded set and delete calls.
func (s *FakeStore) Mutations() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Op != "get" {
			out = append(out, c)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (s *FakeStore) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
