package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the application lifecycle.
type Metrics struct {
	// Transitions by operation and resulting status
	Transitions *prometheus.CounterVec

	// Operation latency by operation
	OperationLatency *prometheus.HistogramVec

	// Unsafe uploads by scanner classification
	SecurityDenials *prometheus.CounterVec

	// Advisory policy alerts by kind
	PolicyAlerts *prometheus.CounterVec

	// Fraud scorer calls by result: "scored", "unavailable"
	FraudScores *prometheus.CounterVec

	// Amount withdrawn, in currency units
	WithdrawnAmount prometheus.Counter

	// Expiry sweep documents by result: "expired", "skipped", "failed"
	SweepDocuments *prometheus.CounterVec
	SweepDuration  prometheus.Histogram
}

// New registers the lifecycle metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarship_application_transitions_total",
			Help: "Lifecycle transitions by operation and resulting status",
		}, []string{"operation", "status"}),

		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scholarship_application_operation_duration_seconds",
			Help:    "Duration of lifecycle operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),

		SecurityDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarship_upload_security_denials_total",
			Help: "Uploads rejected by the content scanner",
		}, []string{"classification"}),

		PolicyAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarship_policy_alerts_total",
			Help: "Advisory policy alerts raised at submission",
		}, []string{"kind"}),

		FraudScores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarship_fraud_scores_total",
			Help: "Fraud scorer outcomes",
		}, []string{"result"}),

		WithdrawnAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "scholarship_withdrawn_amount_total",
			Help: "Total amount disbursed through withdrawals",
		}),

		SweepDocuments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarship_expiry_sweep_documents_total",
			Help: "Documents processed by the expiry sweep",
		}, []string{"result"}),

		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scholarship_expiry_sweep_duration_seconds",
			Help:    "Duration of expiry sweep runs",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}

func (m *Metrics) IncrementTransition(operation, status string) {
	if m != nil {
		m.Transitions.WithLabelValues(operation, status).Inc()
	}
}

func (m *Metrics) ObserveOperation(operation string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementSecurityDenial(classification string) {
	if m != nil {
		m.SecurityDenials.WithLabelValues(classification).Inc()
	}
}

func (m *Metrics) IncrementPolicyAlert(kind string) {
	if m != nil {
		m.PolicyAlerts.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncrementFraudScore(result string) {
	if m != nil {
		m.FraudScores.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) AddWithdrawn(amount float64) {
	if m != nil {
		m.WithdrawnAmount.Add(amount)
	}
}

func (m *Metrics) IncrementSweepDocument(result string) {
	if m != nil {
		m.SweepDocuments.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.SweepDuration.Observe(d.Seconds())
	}
}
