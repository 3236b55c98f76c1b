// Package obsmetrics holds the Prometheus instrumentation for the
// gateway, shaped after the teacher's escrow.Metrics (one struct of
// labeled vectors built with promauto, one Record-style method per
// pipeline stage) re-keyed to admission/correlation/policy/alert
// outcomes.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the gateway exposes.
type Metrics struct {
	AdmissionTotal    *prometheus.CounterVec
	AdmissionDuration *prometheus.HistogramVec

	CorrelationDecisions *prometheus.CounterVec
	CorrelationRuleHits  *prometheus.CounterVec

	PolicyTransitions *prometheus.CounterVec
	HostsQuarantined  prometheus.Gauge

	AlertsEmitted   *prometheus.CounterVec
	AlertsSuppressed *prometheus.CounterVec

	StoreOpDuration *prometheus.HistogramVec
	StoreOpFailures *prometheus.CounterVec

	WebhookDeliveries *prometheus.CounterVec
}

// NewMetrics builds and registers all collectors against the default
// registry. Call once at startup and share the result.
func NewMetrics() *Metrics {
	return &Metrics{
		AdmissionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ares_admission_total",
				Help: "Total ingest admission outcomes by result.",
			},
			[]string{"result"}, // accepted, rejected
		),
		AdmissionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ares_admission_duration_seconds",
				Help:    "Time spent running the admission chain.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),

		CorrelationDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ares_correlation_decisions_total",
				Help: "Correlation verdicts by decision.",
			},
			[]string{"decision"}, // ALLOW, THROTTLE, BLOCK
		),
		CorrelationRuleHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ares_correlation_rule_hits_total",
				Help: "Correlation rule firings by rule reason.",
			},
			[]string{"reason"},
		),

		PolicyTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ares_policy_transitions_total",
				Help: "Host policy decisions by final decision.",
			},
			[]string{"state"}, // ALLOW, THROTTLE, BLOCK
		),
		HostsQuarantined: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ares_hosts_quarantined",
				Help: "Current count of quarantined hosts.",
			},
		),

		AlertsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ares_alerts_emitted_total",
				Help: "Alerts written to the durable sink by rule.",
			},
			[]string{"rule_id"},
		),
		AlertsSuppressed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ares_alerts_suppressed_total",
				Help: "Alerts suppressed by the dedup window, by rule.",
			},
			[]string{"rule_id"},
		),

		StoreOpDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ares_store_op_duration_seconds",
				Help:    "Duration of persistent store operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		StoreOpFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ares_store_op_failures_total",
				Help: "Persistent store operation failures, including circuit-open rejections.",
			},
			[]string{"op"},
		),

		WebhookDeliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ares_webhook_deliveries_total",
				Help: "Outbound webhook delivery attempts by outcome.",
			},
			[]string{"outcome"}, // delivered, failed
		),
	}
}

// RecordAdmission records an admission chain outcome and duration.
func (m *Metrics) RecordAdmission(result string, seconds float64) {
	m.AdmissionTotal.WithLabelValues(result).Inc()
	m.AdmissionDuration.WithLabelValues(result).Observe(seconds)
}

// RecordCorrelation records a correlation verdict and each reason that fired.
func (m *Metrics) RecordCorrelation(decision string, reasons []string) {
	m.CorrelationDecisions.WithLabelValues(decision).Inc()
	for _, r := range reasons {
		m.CorrelationRuleHits.WithLabelValues(r).Inc()
	}
}

// RecordPolicy records one host policy decision (ALLOW, THROTTLE or
// BLOCK).
func (m *Metrics) RecordPolicy(state string) {
	m.PolicyTransitions.WithLabelValues(state).Inc()
}

// RecordAlert records one emitted or suppressed alert for ruleID.
func (m *Metrics) RecordAlert(ruleID string, emitted bool) {
	if emitted {
		m.AlertsEmitted.WithLabelValues(ruleID).Inc()
		return
	}
	m.AlertsSuppressed.WithLabelValues(ruleID).Inc()
}

// RecordStoreOp records a persistent store operation's latency and
// whether it failed.
func (m *Metrics) RecordStoreOp(op string, seconds float64, failed bool) {
	m.StoreOpDuration.WithLabelValues(op).Observe(seconds)
	if failed {
		m.StoreOpFailures.WithLabelValues(op).Inc()
	}
}

// RecordWebhookDelivery records one outbound webhook attempt's outcome.
func (m *Metrics) RecordWebhookDelivery(delivered bool) {
	if delivered {
		m.WebhookDeliveries.WithLabelValues("delivered").Inc()
		return
	}
	m.WebhookDeliveries.WithLabelValues("failed").Inc()
}
