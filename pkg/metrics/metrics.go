// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RouteDecisionsTotal tracks intent-routing outcomes per tenant.
	RouteDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_decisions_total",
			Help: "Routing decisions by outcome",
		},
		[]string{"tenant_id", "decision"},
	)

	// ClassifierRetriesTotal tracks classification retries after provider errors.
	ClassifierRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_retries_total",
			Help: "Classification calls retried after a provider error",
		},
		[]string{"tenant_id"},
	)

	// HandlerExecutionsTotal tracks handler executions by outcome.
	HandlerExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handler_executions_total",
			Help: "Handler executions by outcome",
		},
		[]string{"tenant_id", "handler", "outcome"},
	)

	// CapabilityInvocationsTotal tracks capability invocations by status.
	CapabilityInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capability_invocations_total",
			Help: "Capability invocations by status",
		},
		[]string{"capability", "status"},
	)

	// CapabilityInvocationDuration tracks capability invocation latency.
	CapabilityInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capability_invocation_duration_seconds",
			Help:    "Capability invocation duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"capability", "status"},
	)

	// EscalationTransitionsTotal tracks escalation status transitions.
	EscalationTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalation_transitions_total",
			Help: "Escalation lifecycle transitions by destination status",
		},
		[]string{"tenant_id", "to_status"},
	)

	// OperatorLoad tracks each operator's current escalation load.
	OperatorLoad = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "operator_current_load",
			Help: "Current escalations assigned per operator",
		},
		[]string{"tenant_id", "operator_id"},
	)

	// TurnsAppendedTotal tracks turns appended to the context store.
	TurnsAppendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_appended_total",
			Help: "Turns appended to the context store",
		},
		[]string{"tenant_id", "role"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCapabilityInvocation records one capability invocation attempt.
func RecordCapabilityInvocation(capability, status string, duration float64) {
	CapabilityInvocationsTotal.WithLabelValues(capability, status).Inc()
	CapabilityInvocationDuration.WithLabelValues(capability, status).Observe(duration)
}
