// Package metrics provides Prometheus metrics for the bridge.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the bridge.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	BackendDuration  *prometheus.HistogramVec
	BackendResponses *prometheus.CounterVec
	BackendErrors    *prometheus.CounterVec

	ProxyFailures *prometheus.CounterVec
	BodyBytes     *prometheus.HistogramVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_bridge_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_bridge_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "api_bridge_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_bridge_backend_request_duration_seconds",
			Help:    "Backend call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		BackendResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_bridge_backend_responses_total",
			Help: "Total backend responses by method and status code.",
		}, []string{"method", "status_code"}),

		BackendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_bridge_backend_errors_total",
			Help: "Backend calls that failed at the transport level.",
		}, []string{"method"}),

		ProxyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_bridge_proxy_failures_total",
			Help: "Requests answered with the generic proxy failure response, by route prefix.",
		}, []string{"route"}),

		BodyBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_bridge_forwarded_body_bytes",
			Help:    "Size of forwarded request bodies by capture kind.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.BackendDuration,
		m.BackendResponses,
		m.BackendErrors,
		m.ProxyFailures,
		m.BodyBytes,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// NormalizeRoute returns the path label for a matched Echo route template.
// Wildcard route families collapse to their prefix; requests that matched no
// route are labelled "other".
func NormalizeRoute(route string) string {
	route = strings.TrimSuffix(route, "/*")
	if route == "" || route == "/" {
		return "other"
	}
	return route
}
