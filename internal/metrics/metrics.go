package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors used across the agent.
type Metrics struct {
	IncomingMessages *prometheus.CounterVec
	Replies          *prometheus.CounterVec
	ExtractRequests  *prometheus.CounterVec
	ExtractLatency   *prometheus.HistogramVec
	GatewayRequests  *prometheus.CounterVec
	GatewayLatency   *prometheus.HistogramVec
	FallbackLookups  *prometheus.CounterVec
	Errors           *prometheus.CounterVec
}

// New registers and returns all collectors on the given registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incoming_messages_total",
			Help:      "Inbound user messages by resolution strategy.",
		}, []string{"strategy"}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Assistant replies by terminal state.",
		}, []string{"state"}),
		ExtractRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_requests_total",
			Help:      "Extraction capability calls by outcome.",
		}, []string{"status"}),
		ExtractLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_latency_seconds",
			Help:      "Extraction capability latency by HTTP status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Billing gateway calls by endpoint and status.",
		}, []string{"endpoint", "status"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_latency_seconds",
			Help:      "Billing gateway latency by endpoint and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
		FallbackLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_lookups_total",
			Help:      "Rate-limit fallback cache lookups by result.",
		}, []string{"result"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Internal errors by area.",
		}, []string{"area"}),
	}

	reg.MustRegister(
		m.IncomingMessages,
		m.Replies,
		m.ExtractRequests,
		m.ExtractLatency,
		m.GatewayRequests,
		m.GatewayLatency,
		m.FallbackLookups,
		m.Errors,
	)
	return m
}
