package circuitbreaker

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// Registry hands out one Breaker per source name.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	now      func() time.Time
}

// NewRegistry creates an empty registry whose breakers use cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Get returns the breaker for source, or nil if none exists.
func (r *Registry) Get(source string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[source]
}

// GetOrCreate returns the breaker for source, creating it on first use.
func (r *Registry) GetOrCreate(source string) *Breaker {
	if b := r.Get(source); b != nil {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[source]; ok {
		return b
	}
	b := newBreaker(r.cfg, r.now)
	r.breakers[source] = b
	return b
}

// States returns a snapshot of every breaker's state keyed by source name.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}

// Names returns the sorted source names that currently have a breaker.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.breakers))
}

// EvictStale drops breakers idle since before cutoff and returns how many.
// Evicted sources start over closed on their next resolution.
func (r *Registry) EvictStale(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for name, b := range r.breakers {
		if b.LastUsed().Before(cutoff) {
			delete(r.breakers, name)
			n++
		}
	}
	return n
}
