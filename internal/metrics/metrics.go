// Package metrics holds the Prometheus series exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "citriage"

var (
	// AnalysesTotal counts completed analyses.
	// Labels: source (kb, collaborator, fallback), error_type
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analyses_total",
		Help:      "Completed analyses by answer source and error type",
	}, []string{"source", "error_type"})

	// CollaboratorCallsTotal counts escalations to the external analyzer.
	// Labels: provider, outcome (success, timeout, unavailable, disabled, malformed)
	CollaboratorCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "collaborator",
		Name:      "calls_total",
		Help:      "External analyzer calls by provider and outcome",
	}, []string{"provider", "outcome"})

	// CollaboratorLatency measures external analyzer latency including retries.
	CollaboratorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "collaborator",
		Name:      "latency_seconds",
		Help:      "External analyzer latency including retries",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider"})

	// ApprovalTransitionsTotal counts pending approvals leaving or entering a state.
	// Labels: status (pending, approved, rejected, expired)
	ApprovalTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "approval",
		Name:      "transitions_total",
		Help:      "Pending approval state transitions by resulting status",
	}, []string{"status"})

	// RetrievalDuration measures knowledge base search time.
	RetrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "retrieval",
		Name:      "duration_seconds",
		Help:      "Knowledge base search duration by algorithm",
		Buckets:   prometheus.DefBuckets,
	}, []string{"algorithm"})

	// KBConfidence tracks the distribution of aggregated retrieval confidence.
	KBConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "retrieval",
		Name:      "kb_confidence",
		Help:      "Aggregated knowledge base confidence per analysis",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	})

	// HTTPRequestsTotal counts served requests.
	// Labels: method, route (the registered path, not the raw URL), status
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration measures request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by method and route",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route"})
)
