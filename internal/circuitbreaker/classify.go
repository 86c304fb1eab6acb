package circuitbreaker

import (
	"context"
	"errors"
	"os"
)

// statusError is implemented by source errors that carry an HTTP status.
type statusError interface {
	HTTPStatus() int
}

// ClassifyError returns the breaker weight of a resolution error.
//
//   - nil, caller cancellation, 4xx other than 429 -> 0 (not the source's fault)
//   - 429 -> 0.5
//   - 5xx -> 1.0
//   - timeout -> 1.5
//   - anything else (connection refused, malformed body) -> 1.0
func ClassifyError(err error) float64 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return 1.5
	case errors.Is(err, context.Canceled):
		return 0
	}

	var se statusError
	if errors.As(err, &se) {
		code := se.HTTPStatus()
		switch {
		case code == 429:
			return 0.5
		case code >= 500:
			return 1.0
		default:
			return 0
		}
	}
	return 1.0
}
