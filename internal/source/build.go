package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/dnscache"

	"github.com/eugener/aside/internal/circuitbreaker"
	"github.com/eugener/aside/internal/config"
	"github.com/eugener/aside/internal/ratelimit"
)

// FromConfig builds every configured source into a Registry and returns a
// Router over the configured routes. ctx bounds OAuth2 token fetches and
// should live as long as the process. breakers may be nil.
func FromConfig(ctx context.Context, entries []config.SourceEntry, routes []config.RouteEntry,
	dns *dnscache.Resolver, breakers *circuitbreaker.Registry) (*Registry, *Router, error) {

	reg := NewRegistry()
	base := NewTransport(dns)

	for _, e := range entries {
		switch e.ResolvedType() {
		case "static":
			s, err := NewStatic(e.Name, []byte(e.Data))
			if err != nil {
				return nil, nil, err
			}
			reg.Register(s)
		case "http":
			rt, err := withAuth(ctx, base, e.Auth)
			if err != nil {
				return nil, nil, fmt.Errorf("source %q: %w", e.Name, err)
			}
			reg.Register(NewHTTP(e.Name, e.BaseURL, &http.Client{Transport: rt}, HTTPOptions{
				Path:         e.Path,
				Extract:      e.Extract,
				Headers:      e.Headers,
				MaxBodyBytes: e.MaxBodyBytes,
				Timeout:      time.Duration(e.TimeoutMs) * time.Millisecond,
			}))
		default:
			return nil, nil, fmt.Errorf("source %q: unknown type %q", e.Name, e.Type)
		}
	}

	rs := make([]Route, 0, len(routes))
	for _, r := range routes {
		s, err := reg.Get(r.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("route %q: %w", r.Prefix, err)
		}
		rs = append(rs, Route{Prefix: r.Prefix, Source: s})
	}
	router := NewRouter(rs, breakers)

	limits := ratelimit.NewRegistry()
	for _, e := range entries {
		limits.Set(e.Name, e.RPM)
	}
	if len(limits.Limits()) > 0 {
		router.Throttle(limits)
	}
	return reg, router, nil
}
