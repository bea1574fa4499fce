// Package metrics exposes the Prometheus collectors shared by the
// Transport, Registry, Router, and Health Shell. Unlike the teacher's
// package-level promauto globals, every collector here is owned by a
// *Registry instance injected into its component (spec section 9, "Global
// singletons" design note), so two Applications in the same process never
// collide on metric names.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector the fabric exposes via each component's
// GetMetrics()/metrics() call.
type Registry struct {
	ConnectionsActive   *prometheus.GaugeVec
	ConnectionsTotal    *prometheus.CounterVec
	MessagesSent        *prometheus.CounterVec
	MessagesReceived    *prometheus.CounterVec
	TransportErrors     *prometheus.CounterVec
	SendDuration        *prometheus.HistogramVec
	ReconnectAttempts   *prometheus.CounterVec

	CapabilityInvocations *prometheus.CounterVec
	CapabilityLatency     *prometheus.HistogramVec
	CompositionExecutions *prometheus.CounterVec

	RoutingDecisions *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	FallbackInvocations *prometheus.CounterVec

	CircuitBreakerState *prometheus.GaugeVec
	StrategyOutcomes    *prometheus.CounterVec
}

// NewRegistry builds and registers every collector against reg. Passing a
// fresh prometheus.NewRegistry() per Application keeps instances isolated
// (tests construct many Applications in the same process).
func NewRegistry(reg *prometheus.Registry) *Registry {
	m := &Registry{
		ConnectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "a2a_connections_active",
			Help: "Currently connected transport connections.",
		}, []string{"protocol", "peer"}),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_connections_total",
			Help: "Connections established, by protocol.",
		}, []string{"protocol"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_messages_sent_total",
			Help: "Messages sent, by protocol and message type.",
		}, []string{"protocol", "message_type"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_messages_received_total",
			Help: "Messages received, by protocol and message type.",
		}, []string{"protocol", "message_type"}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_transport_errors_total",
			Help: "Transport-level errors, by protocol and error type.",
		}, []string{"protocol", "error_type"}),
		SendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a2a_send_duration_seconds",
			Help:    "Time spent awaiting a send response.",
			Buckets: prometheus.DefBuckets,
		}, []string{"protocol"}),
		ReconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_reconnect_attempts_total",
			Help: "Reconnection attempts, by peer.",
		}, []string{"peer"}),

		CapabilityInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_capability_invocations_total",
			Help: "Capability invocations, by capability id and outcome.",
		}, []string{"capability", "outcome"}),
		CapabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a2a_capability_latency_seconds",
			Help:    "Capability invocation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"capability"}),
		CompositionExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_composition_executions_total",
			Help: "Composition executions, by strategy and status.",
		}, []string{"strategy", "status"}),

		RoutingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_routing_decisions_total",
			Help: "Routing decisions, by provider and from_cache.",
		}, []string{"provider", "from_cache"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_fingerprint_cache_hits_total",
			Help: "Fingerprint cache hits, by key strategy.",
		}, []string{"strategy"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_fingerprint_cache_misses_total",
			Help: "Fingerprint cache misses, by key strategy.",
		}, []string{"strategy"}),
		FallbackInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_fallback_invocations_total",
			Help: "Fallback chain provider attempts, by provider and outcome.",
		}, []string{"provider", "outcome"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "a2a_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed,1=half-open,2=open), by tool.",
		}, []string{"tool"}),
		StrategyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_strategy_outcomes_total",
			Help: "Health-shell strategy outcomes, by strategy and applied.",
		}, []string{"strategy", "applied"}),
	}

	for _, c := range []prometheus.Collector{
		m.ConnectionsActive, m.ConnectionsTotal, m.MessagesSent, m.MessagesReceived,
		m.TransportErrors, m.SendDuration, m.ReconnectAttempts,
		m.CapabilityInvocations, m.CapabilityLatency, m.CompositionExecutions,
		m.RoutingDecisions, m.CacheHits, m.CacheMisses, m.FallbackInvocations,
		m.CircuitBreakerState, m.StrategyOutcomes,
	} {
		reg.MustRegister(c)
	}
	return m
}

// ObserveSend records a completed send's latency for a protocol.
func (m *Registry) ObserveSend(protocol string, d time.Duration) {
	m.SendDuration.WithLabelValues(protocol).Observe(d.Seconds())
}
