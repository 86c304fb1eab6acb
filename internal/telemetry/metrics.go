// Package telemetry provides observability primitives for the aside gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	Lookups          *prometheus.CounterVec // result: hit, miss
	Populations      *prometheus.CounterVec // mode, result: ok, failed
	ResolverDuration prometheus.Histogram
	ResolverErrors   prometheus.Counter
	StoreErrors      *prometheus.CounterVec // op
	Invalidations    *prometheus.CounterVec // result: removed, not_found
	WarmRuns         *prometheus.CounterVec // result: ok, failed
	SweptEntries     prometheus.Counter
	BreakerOpens     *prometheus.CounterVec // source
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aside",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "aside",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aside",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aside",
			Name:      "cache_lookups_total",
			Help:      "Total cache lookups by result.",
		}, []string{"result"}),

		Populations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aside",
			Name:      "cache_populations_total",
			Help:      "Total cache writes after a miss, by mode and result.",
		}, []string{"mode", "result"}),

		ResolverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:                       "aside",
			Name:                            "resolver_duration_seconds",
			Help:                            "Backing source resolution duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}),

		ResolverErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aside",
			Name:      "resolver_errors_total",
			Help:      "Total backing source resolution failures.",
		}),

		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aside",
			Name:      "store_errors_total",
			Help:      "Total key-value store failures by operation.",
		}, []string{"op"}),

		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aside",
			Name:      "invalidations_total",
			Help:      "Total invalidations by result.",
		}, []string{"result"}),

		WarmRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aside",
			Name:      "warm_runs_total",
			Help:      "Total warmer fetches by result.",
		}, []string{"result"}),

		SweptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aside",
			Name:      "swept_entries_total",
			Help:      "Total expired entries removed by the sweeper.",
		}),

		BreakerOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aside",
			Name:      "breaker_open_total",
			Help:      "Total times a source circuit breaker opened.",
		}, []string{"source"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.Lookups,
		m.Populations,
		m.ResolverDuration,
		m.ResolverErrors,
		m.StoreErrors,
		m.Invalidations,
		m.WarmRuns,
		m.SweptEntries,
		m.BreakerOpens,
	)

	return m
}
