package aside

import "errors"

// Sentinel errors for the cache-aside domain.
var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrUpstreamFailure       = errors.New("upstream failure")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrCachePopulationFailed = errors.New("cache population failed")
)

// Error kinds reported to clients alongside the message.
const (
	KindInvalidRequest   = "invalid_request"
	KindUpstreamFailure  = "upstream_failure"
	KindStoreUnavailable = "store_unavailable"
	KindInternal         = "internal"
)

// Kind returns the client-facing kind for err.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrUpstreamFailure):
		return KindUpstreamFailure
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}
