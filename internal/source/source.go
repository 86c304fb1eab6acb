// Package source implements backing sources: the resolvers the engine calls on
// a cache miss, a registry of named sources, and a key router that guards each
// source with a circuit breaker.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	aside "github.com/eugener/aside/internal"
)

var (
	// ErrNoSource is returned when no route matches a key.
	ErrNoSource = errors.New("no source for key")
	// ErrCircuitOpen is returned when the source's breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrRateLimited is returned when the source's request budget is spent.
	ErrRateLimited = errors.New("rate limited")
)

// Source is a named backing source.
type Source interface {
	aside.Resolver
	Name() string
}

// StatusError is a non-2xx response from an HTTP source.
type StatusError struct {
	Source     string
	StatusCode int
	Body       string
}

// Error returns a formatted error string including source, status, and body.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Source, e.StatusCode, e.Body)
}

// HTTPStatus returns the status code for breaker classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Registry maps source names to Source instances.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source under its own name, replacing any previous one.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	r.sources[s.Name()] = s
	r.mu.Unlock()
}

// Get returns the source registered under name, or an error if not found.
func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	s, ok := r.sources[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source %q not registered", name)
	}
	return s, nil
}

// List returns the sorted names of all registered sources.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.sources))
}

// Static is a source that always returns the same JSON document.
type Static struct {
	name string
	data json.RawMessage
}

// NewStatic returns a Static source. data must be valid JSON.
func NewStatic(name string, data []byte) (*Static, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("source %q: static data is not valid JSON", name)
	}
	return &Static{name: name, data: slices.Clone(data)}, nil
}

// Name returns the source name.
func (s *Static) Name() string { return s.name }

// Resolve returns a copy of the configured document.
func (s *Static) Resolve(ctx context.Context, _ string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(s.data), nil
}
