package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	inflight  prometheus.Gauge
	throttles *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics
)

// API returns the lazily registered HTTP metrics of the lendingd API.
func API() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "API requests by route pattern, method and status code.",
			}, []string{"route", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftlend",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "API handler latency by route pattern.",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			}, []string{"route", "method"}),
			inflight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftlend",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "API requests currently being served.",
			}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "API requests rejected before reaching a handler.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.latency,
			apiRegistry.inflight,
			apiRegistry.throttles,
		)
	})
	return apiRegistry
}

// Begin marks a request as in flight and returns the func that ends it.
func (m *apiMetrics) Begin() func() {
	if m == nil {
		return func() {}
	}
	m.inflight.Inc()
	return m.inflight.Dec
}

// Observe records a served request. Unmatched requests share the "unmatched"
// route label so path parameters never become label values.
func (m *apiMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Throttled counts a request rejected for reason, e.g. "rate_limit".
func (m *apiMetrics) Throttled(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}
