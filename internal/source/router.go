package source

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/eugener/aside/internal/circuitbreaker"
	"github.com/eugener/aside/internal/ratelimit"
)

// Route maps keys starting with Prefix to a source. An empty prefix matches
// every key.
type Route struct {
	Prefix string
	Source Source
}

// Router resolves a key through the source of the longest matching route.
// When breakers is non-nil each source is guarded by its own breaker.
type Router struct {
	routes   []Route
	breakers *circuitbreaker.Registry
	limits   *ratelimit.Registry
	onOpen   func(source string)
}

// NewRouter returns a Router. Routes are matched longest prefix first; ties
// keep their configured order.
func NewRouter(routes []Route, breakers *circuitbreaker.Registry) *Router {
	sorted := slices.Clone(routes)
	slices.SortStableFunc(sorted, func(a, b Route) int {
		return cmp.Compare(len(b.Prefix), len(a.Prefix))
	})
	return &Router{routes: sorted, breakers: breakers}
}

// OnOpen registers fn to be called whenever a source's breaker opens.
func (r *Router) OnOpen(fn func(source string)) *Router {
	r.onOpen = fn
	return r
}

// Throttle caps outbound requests per source. Throttled calls fail before
// reaching the source and are not counted by its breaker.
func (r *Router) Throttle(limits *ratelimit.Registry) *Router {
	r.limits = limits
	return r
}

// Match returns the source responsible for key.
func (r *Router) Match(key string) (Source, bool) {
	for _, rt := range r.routes {
		if strings.HasPrefix(key, rt.Prefix) {
			return rt.Source, true
		}
	}
	return nil, false
}

// Resolve routes key to its source. Errors are annotated with the source name.
func (r *Router) Resolve(ctx context.Context, key string) (json.RawMessage, error) {
	src, ok := r.Match(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSource, key)
	}
	if r.limits != nil {
		if res := r.limits.Allow(src.Name()); !res.Allowed {
			return nil, fmt.Errorf("%s: %w, retry in %s", src.Name(), ErrRateLimited,
				res.RetryAfter.Round(time.Millisecond))
		}
	}
	if r.breakers == nil {
		return src.Resolve(ctx, key)
	}

	cb := r.breakers.GetOrCreate(src.Name())
	if !cb.Allow() {
		return nil, fmt.Errorf("%s: %w", src.Name(), ErrCircuitOpen)
	}
	data, err := src.Resolve(ctx, key)
	if errors.Is(err, context.Canceled) {
		cb.Release()
		return data, err
	}
	if w := circuitbreaker.ClassifyError(err); w > 0 {
		before := cb.State()
		cb.RecordError(w)
		if before != circuitbreaker.StateOpen && cb.State() == circuitbreaker.StateOpen {
			slog.LogAttrs(ctx, slog.LevelWarn, "source circuit open",
				slog.String("source", src.Name()),
				slog.String("error", err.Error()),
			)
			if r.onOpen != nil {
				r.onOpen(src.Name())
			}
		}
	} else {
		cb.RecordSuccess()
	}
	return data, err
}
