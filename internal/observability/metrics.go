// Package observability holds the relay's Prometheus collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RelayBuckets span a fast local run (50ms) up to the slowest allowed chat reply.
var RelayBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// Metrics groups every collector the relay exports.
// Each server builds its own registry, so tests never fight over global state.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTPRequestsTotal counts inbound requests by route, method and status code.
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestDuration records inbound request latency by route.
	HTTPRequestDuration *prometheus.HistogramVec
	// UpstreamCallsTotal counts relay calls by kind, backend and outcome.
	UpstreamCallsTotal *prometheus.CounterVec
	// UpstreamLatency records time spent waiting on the execution/chat backend.
	UpstreamLatency *prometheus.HistogramVec
	// AssistantTokensTotal counts tokens reported by the chat backend.
	AssistantTokensTotal *prometheus.CounterVec
	// InFlight tracks relay calls currently waiting on a backend.
	InFlight *prometheus.GaugeVec
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "Inbound HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "Inbound HTTP request duration",
				Buckets: RelayBuckets,
			},
			[]string{"route"},
		),
		UpstreamCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_upstream_calls_total",
				Help: "Relay calls by backend and outcome",
			},
			[]string{"kind", "backend", "outcome"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_upstream_latency_seconds",
				Help:    "Backend latency",
				Buckets: RelayBuckets,
			},
			[]string{"kind", "backend"},
		),
		AssistantTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_assistant_tokens_total",
				Help: "Token count",
			},
			[]string{"model", "direction"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_upstream_in_flight",
				Help: "Relay calls waiting on a backend",
			},
			[]string{"kind"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.UpstreamCallsTotal,
		m.UpstreamLatency,
		m.AssistantTokensTotal,
		m.InFlight,
	)
	return m
}
