// Package metrics provides Prometheus collectors for the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all collectors, registered on a private registry so the
// /metrics endpoint exposes only what the proxy itself reports.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram

	UpstreamResponses *prometheus.CounterVec
	UpstreamDuration  prometheus.Histogram

	HTMLRewrites      prometheus.Counter
	HTMLParseFailures prometheus.Counter
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veil_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_class", "route"}),

		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "veil_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veil_upstream_responses_total",
			Help: "Total upstream responses by status code.",
		}, []string{"status_code"}),

		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "veil_upstream_request_duration_seconds",
			Help:    "Upstream fetch latency in seconds.",
			Buckets: defaultBuckets,
		}),

		HTMLRewrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "veil_html_rewrites_total",
			Help: "HTML documents rewritten.",
		}),

		HTMLParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "veil_html_parse_failures_total",
			Help: "HTML documents served unrewritten after a parse failure.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.UpstreamResponses,
		m.UpstreamDuration,
		m.HTMLRewrites,
		m.HTMLParseFailures,
	)

	return m
}

// StatusClass maps a status code onto a bounded label value to keep
// cardinality flat.
func StatusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod maps non-standard HTTP methods to "other" so the method
// label stays bounded.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}
