// Package circuitbreaker guards backing sources with a per-source circuit
// breaker driven by a weighted error rate over a sliding window. An open
// breaker fails resolutions immediately instead of waiting on a source that is
// known to be down.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets every resolution through.
	StateClosed State = iota
	// StateOpen rejects every resolution until OpenTimeout elapses.
	StateOpen
	// StateHalfOpen lets exactly one probe through.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	ErrorThreshold float64       // weighted error rate to trip (e.g. 0.30)
	MinSamples     int           // minimum outcomes before the breaker can open
	WindowSeconds  int           // sliding window length, capped at maxWindow
	OpenTimeout    time.Duration // time in OPEN before a probe is allowed
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.30,
		MinSamples:     10,
		WindowSeconds:  60,
		OpenTimeout:    30 * time.Second,
	}
}

const maxWindow = 60

// slot accumulates outcomes for one second.
type slot struct {
	sec    int64   // unix second this slot describes
	weight float64 // weighted error sum
	total  int
}

// window is a ring of one-second slots. A slot is stale when its sec falls
// outside [now-size+1, now] and is then ignored or overwritten.
type window struct {
	slots [maxWindow]slot
	size  int64
}

func newWindow(seconds int) window {
	if seconds <= 0 || seconds > maxWindow {
		seconds = maxWindow
	}
	return window{size: int64(seconds)}
}

func (w *window) add(weight float64, now time.Time) {
	sec := now.Unix()
	s := &w.slots[sec%w.size]
	if s.sec != sec {
		*s = slot{sec: sec}
	}
	s.total++
	s.weight += weight
}

// rate returns the weighted error rate and the sample count inside the window.
func (w *window) rate(now time.Time) (float64, int) {
	sec := now.Unix()
	var weight float64
	var total int
	for i := range w.size {
		s := &w.slots[i]
		if s.total == 0 || sec-s.sec >= w.size || s.sec > sec {
			continue
		}
		weight += s.weight
		total += s.total
	}
	if total == 0 {
		return 0, 0
	}
	return weight / float64(total), total
}

func (w *window) reset() {
	w.slots = [maxWindow]slot{}
}

// Breaker is a circuit breaker for a single source. It is safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	now      func() time.Time
	state    State
	win      window
	openedAt time.Time
	lastUsed time.Time
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg Config) *Breaker {
	return newBreaker(cfg, time.Now)
}

func newBreaker(cfg Config, now func() time.Time) *Breaker {
	return &Breaker{
		cfg:      cfg,
		now:      now,
		win:      newWindow(cfg.WindowSeconds),
		lastUsed: now(),
	}
}

// State returns the current state without transitioning it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a resolution may proceed. An open breaker whose
// timeout has elapsed moves to half-open and admits the caller as the probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.lastUsed = now

	switch b.state {
	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// RecordSuccess records a healthy outcome. A successful probe closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.lastUsed = now
	b.win.add(0, now)

	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.probing = false
		b.win.reset()
	}
}

// Release ends an attempt that proved nothing about the source, such as one
// the caller cancelled. Nothing is recorded; a half-open breaker stays
// half-open and admits the next caller as its probe.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = b.now()
	if b.state == StateHalfOpen {
		b.probing = false
	}
}

// RecordError records a failed outcome with the given weight. A failed probe
// reopens the breaker; in the closed state the breaker trips once the window
// holds MinSamples outcomes and the weighted rate reaches ErrorThreshold.
func (b *Breaker) RecordError(weight float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.lastUsed = now
	b.win.add(weight, now)

	switch b.state {
	case StateHalfOpen:
		b.trip(now)
	case StateClosed:
		rate, n := b.win.rate(now)
		if n >= b.cfg.MinSamples && rate >= b.cfg.ErrorThreshold {
			b.trip(now)
		}
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.probing = false
}

// LastUsed returns the time of last activity.
func (b *Breaker) LastUsed() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUsed
}
