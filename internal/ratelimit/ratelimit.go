// Package ratelimit throttles outbound requests per backing source with
// lazy-refill token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int64 // requests per minute; 0 = unlimited
	Remaining  int64
	RetryAfter time.Duration
}

// bucket is a token bucket with lazy refill (no background goroutine).
type bucket struct {
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastFill time.Time
}

func newBucket(rpm int64, now time.Time) bucket {
	return bucket{
		tokens:   float64(rpm),
		max:      float64(rpm),
		rate:     float64(rpm) / 60.0,
		lastFill: now,
	}
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.max, b.tokens+elapsed*b.rate)
	b.lastFill = now
}

// take consumes one token if available.
func (b *bucket) take(now time.Time) bool {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// wait returns the time until one token is available.
func (b *bucket) wait() time.Duration {
	if b.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

// Limiter is a requests-per-minute limit for one source.
type Limiter struct {
	mu  sync.Mutex
	rpm int64
	b   bucket
	now func() time.Time
}

// Allow consumes one request from the bucket.
func (l *Limiter) Allow() Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.b.take(l.now()) {
		return Result{Allowed: true, Limit: l.rpm, Remaining: int64(l.b.tokens)}
	}
	return Result{Limit: l.rpm, RetryAfter: l.b.wait()}
}

// Registry holds the limiter for each throttled source. Sources without a
// limiter are never throttled.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter), now: time.Now}
}

// Set limits name to rpm requests per minute, starting with a full bucket.
// A non-positive rpm removes the limit.
func (r *Registry) Set(name string, rpm int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rpm <= 0 {
		delete(r.limiters, name)
		return
	}
	r.limiters[name] = &Limiter{rpm: rpm, b: newBucket(rpm, r.now()), now: r.now}
}

// Allow consumes one request for name.
func (r *Registry) Allow(name string) Result {
	r.mu.RLock()
	l, ok := r.limiters[name]
	r.mu.RUnlock()
	if !ok {
		return Result{Allowed: true}
	}
	return l.Allow()
}

// Limits returns the configured requests-per-minute limit per source.
func (r *Registry) Limits() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.limiters))
	for name, l := range r.limiters {
		out[name] = l.rpm
	}
	return out
}
