package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	aside "github.com/eugener/aside/internal"
	"github.com/eugener/aside/internal/telemetry"
)

// statusWriterPool keeps statusWriter off the heap on the request path.
// ResponseWriter is cleared on Put so the pool holds no request references.
var statusWriterPool = sync.Pool{
	New: func() any { return &statusWriter{} },
}

// statusText holds the decimal form of every status code for metric labels.
var statusText [600]string

func init() {
	for i := range statusText {
		statusText[i] = strconv.Itoa(i)
	}
}

// recovery turns a panic into a 500 with the standard error body.
func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.LogAttrs(r.Context(), slog.LevelError, "panic recovered",
					slog.Any("error", rec),
					slog.String("path", r.URL.Path),
					slog.String("request_id", aside.RequestIDFromContext(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, aside.KindInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader is already in canonical MIME form, so the header map can be
// indexed directly.
const requestIDHeader = "X-Request-Id"

// maxRequestIDLen bounds caller-provided request IDs.
const maxRequestIDLen = 128

// requestID propagates the caller's X-Request-Id or assigns a UUID v7.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if vals := r.Header[requestIDHeader]; len(vals) > 0 && vals[0] != "" && len(vals[0]) <= maxRequestIDLen {
			id = vals[0]
		} else {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header()[requestIDHeader] = []string{id}
		next.ServeHTTP(w, r.WithContext(aside.ContextWithRequestID(r.Context(), id)))
	})
}

// instrument logs every request and, when m is non-nil, records request
// metrics labelled by route pattern.
func instrument(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m != nil {
				m.ActiveRequests.Inc()
				defer m.ActiveRequests.Dec()
			}
			start := time.Now()

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			sw.wroteHeader = false
			sw.bytes = 0

			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			status, written := sw.status, sw.bytes
			sw.ResponseWriter = nil
			statusWriterPool.Put(sw)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			slog.LogAttrs(r.Context(), level, "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("host", r.Host),
				slog.Int("status", status),
				slog.Int("bytes", written),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				slog.String("request_id", aside.RequestIDFromContext(r.Context())),
			)

			if m != nil {
				pattern := routePattern(r)
				m.RequestsTotal.WithLabelValues(r.Method, pattern, statusText[status%len(statusText)]).Inc()
				m.RequestDuration.WithLabelValues(r.Method, pattern).Observe(elapsed.Seconds())
			}
		})
	}
}

// routePattern returns the chi route pattern for bounded label cardinality,
// falling back to the raw path for unmatched requests.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusWriter records the first status code and the body size.
type statusWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
