package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orderflow"

// Outcome labels shared by the order and gateway collectors.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// OrderMetrics tracks ledger transitions and payment gateway traffic.
type OrderMetrics struct {
	transitions         *prometheus.CounterVec
	signatureMismatches prometheus.Counter
	gatewayLatency      *prometheus.HistogramVec
	dispatchDropped     prometheus.Counter
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "transitions_total",
		Help:      "Order ledger operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	mismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "signature_mismatch_total",
		Help:      "Payment callbacks rejected because the signature did not verify.",
	})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "gateway_request_duration_seconds",
		Help:      "Latency of payment gateway calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"call", "outcome"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "dropped_total",
		Help:      "Notifications dropped because the dispatch queue was full.",
	})
	reg.MustRegister(transitions, mismatches, latency, dropped)
	return &OrderMetrics{
		transitions:         transitions,
		signatureMismatches: mismatches,
		gatewayLatency:      latency,
		dispatchDropped:     dropped,
	}
}

// ObserveTransition counts one ledger operation.
func (m *OrderMetrics) ObserveTransition(operation, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncSignatureMismatch counts a rejected payment callback.
func (m *OrderMetrics) IncSignatureMismatch() {
	if m == nil || m.signatureMismatches == nil {
		return
	}
	m.signatureMismatches.Inc()
}

// ObserveGatewayCall records the latency of one gateway request.
func (m *OrderMetrics) ObserveGatewayCall(call, outcome string, duration time.Duration) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(normalizeLabel(call), normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncDispatchDropped counts a notification lost to back-pressure.
func (m *OrderMetrics) IncDispatchDropped() {
	if m == nil || m.dispatchDropped == nil {
		return
	}
	m.dispatchDropped.Inc()
}
