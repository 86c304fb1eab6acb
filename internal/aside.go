// Package aside defines domain types and interfaces for the aside cache gateway.
// This package has no project imports -- it is the dependency root.
package aside

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --- Store ---

// Store is a byte-oriented key-value cache with per-entry TTL.
// Implementations must be safe for concurrent use and must not cache locally
// on top of the backend they wrap.
type Store interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss or
	// expiry. A non-nil error means the backend could not be reached.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores val under key, replacing any existing entry, expiring after ttl.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Delete removes key and reports whether an entry was removed.
	// Deleting an absent key returns false, nil.
	Delete(ctx context.Context, key string) (bool, error)
	// Ping verifies connectivity to the backend.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// --- Resolver ---

// Resolver produces fresh data for a key from a backing source. It may be a
// remote call, so callers must not assume it is idempotent or side-effect free.
type Resolver interface {
	Resolve(ctx context.Context, key string) (json.RawMessage, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context, key string) (json.RawMessage, error)

// Resolve calls f(ctx, key).
func (f ResolverFunc) Resolve(ctx context.Context, key string) (json.RawMessage, error) {
	return f(ctx, key)
}

// --- Engine requests and results ---

// TTL is a positive number of seconds.
type TTL int

// Duration converts the TTL to a time.Duration.
func (t TTL) Duration() time.Duration { return time.Duration(t) * time.Second }

// Valid reports whether the TTL is a positive number of seconds.
func (t TTL) Valid() bool { return t > 0 }

// ParseTTL parses a TTL given as decimal seconds. Empty, zero, negative and
// non-numeric input is rejected with ErrInvalidRequest.
func ParseTTL(s string) (TTL, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: ttl %q is not an integer", ErrInvalidRequest, s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: ttl must be positive, got %d", ErrInvalidRequest, n)
	}
	return TTL(n), nil
}

// Mode selects where a miss gets its value from.
type Mode int

const (
	// ModeAutoResolve invokes the backing source resolver on a miss.
	ModeAutoResolve Mode = iota
	// ModeCallerSupplied stores the request payload verbatim on a miss.
	ModeCallerSupplied
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeAutoResolve:
		return "auto"
	case ModeCallerSupplied:
		return "caller"
	default:
		return "unknown"
	}
}

// FetchRequest is the input to a fetch-or-populate operation.
type FetchRequest struct {
	Key     string
	TTL     TTL
	Mode    Mode
	Payload json.RawMessage // used only with ModeCallerSupplied
}

// Source tells the caller where a fetched value came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceFresh Source = "fresh"
)

// FetchResult is the outcome of a successful fetch-or-populate.
type FetchResult struct {
	Source Source          `json:"source"`
	Data   json.RawMessage `json:"data"`
	// Warning is non-nil when a fresh value could not be written to the store.
	// It always wraps ErrCachePopulationFailed.
	Warning error `json:"-"`
}

// InvalidateResult is the outcome of an invalidation.
type InvalidateResult int

const (
	// NotFound means there was no entry to remove.
	NotFound InvalidateResult = iota
	// Removed means an entry was deleted.
	Removed
)

// String returns the result name.
func (r InvalidateResult) String() string {
	if r == Removed {
		return "removed"
	}
	return "not_found"
}

// --- Context ---

type ctxKey int

const ctxKeyRequestID ctxKey = iota

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
