// Package metrics provides Prometheus metrics for protocol operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for protocol operations.
type Metrics struct {
	enabled bool

	// Identity track metrics
	nonceIssuesTotal  prometheus.Counter
	authFailuresTotal *prometheus.CounterVec

	// Payment track metrics
	paymentVerifications *prometheus.CounterVec
	settlementsTotal     *prometheus.CounterVec
	settlementDuration   prometheus.Histogram
}

// New creates and registers Prometheus metrics on the default registry.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	return NewWithRegisterer(enabled, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates metrics registered on reg. Registering the same
// metric names twice on one registry panics, so a process holds at most one
// enabled Metrics per registry.
func NewWithRegisterer(enabled bool, reg prometheus.Registerer) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}
	factory := promauto.With(reg)

	m.nonceIssuesTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "walletgate_nonce_issues_total",
		Help: "Total identity challenge nonces issued",
	})

	m.authFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "walletgate_auth_failures_total",
		Help: "Total identity verification failures",
	}, []string{"reason"})

	m.paymentVerifications = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "walletgate_payment_verifications_total",
		Help: "Total payment verifications",
	}, []string{"result", "reason"})

	m.settlementsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "walletgate_settlements_total",
		Help: "Total settlement attempts",
	}, []string{"result"})

	m.settlementDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "walletgate_settlement_duration_seconds",
		Help:    "Settlement call duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	return m
}

// RecordNonceIssue records an issued challenge nonce.
func (m *Metrics) RecordNonceIssue() {
	if !m.enabled {
		return
	}
	m.nonceIssuesTotal.Inc()
}

// RecordAuthFailure records a failed identity verification.
func (m *Metrics) RecordAuthFailure(reason string) {
	if !m.enabled {
		return
	}
	m.authFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordPaymentVerification records a payment verification outcome.
func (m *Metrics) RecordPaymentVerification(result, reason string) {
	if !m.enabled {
		return
	}
	m.paymentVerifications.WithLabelValues(result, reason).Inc()
}

// RecordSettlement records a settlement attempt and its duration.
func (m *Metrics) RecordSettlement(result string, durationSeconds float64) {
	if !m.enabled {
		return
	}
	m.settlementsTotal.WithLabelValues(result).Inc()
	m.settlementDuration.Observe(durationSeconds)
}
