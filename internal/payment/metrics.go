// Package payment provides metrics for the payment pipeline.
package payment

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricIntentsCreatedTotal     = "payment_intents_created_total"
	MetricTransitionsTotal        = "payment_status_transitions_total"
	MetricFulfillmentErrorsTotal  = "payment_fulfillment_errors_total"
	MetricDuplicateWebhooksTotal  = "payment_duplicate_webhooks_total"
	MetricRefundsTotal            = "payment_refunds_total"
	MetricIdempotencyRacesTotal   = "payment_idempotency_races_total"
)

// Metrics contains Prometheus metrics for payment operations.
// All operations are thread-safe. A nil *Metrics is a valid no-op receiver
// so the service can run without metrics wired.
type Metrics struct {
	intentsCreated    *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	fulfillmentErrors prometheus.Counter
	duplicateWebhooks prometheus.Counter
	refunds           *prometheus.CounterVec
	idempotencyRaces  prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		intentsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricIntentsCreatedTotal,
				Help: "Total number of payment intents created by kind",
			},
			[]string{"kind"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTransitionsTotal,
				Help: "Total number of payment status transitions by status",
			},
			[]string{"status"},
		),
		fulfillmentErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricFulfillmentErrorsTotal,
				Help: "Total number of errors swallowed during fulfillment materialization",
			},
		),
		duplicateWebhooks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricDuplicateWebhooksTotal,
				Help: "Total number of duplicate webhook deliveries ignored",
			},
		),
		refunds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRefundsTotal,
				Help: "Total number of refunds recorded by resulting status",
			},
			[]string{"status"},
		),
		idempotencyRaces: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricIdempotencyRacesTotal,
				Help: "Total number of idempotency-key creation races resolved by tiebreak",
			},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.intentsCreated,
		m.transitions,
		m.fulfillmentErrors,
		m.duplicateWebhooks,
		m.refunds,
		m.idempotencyRaces,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IntentCreated increments the created counter for a kind.
func (m *Metrics) IntentCreated(kind string) {
	if m == nil {
		return
	}
	m.intentsCreated.WithLabelValues(kind).Inc()
}

// Transition increments the transition counter for a status.
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// FulfillmentError increments the swallowed-fulfillment-error counter.
func (m *Metrics) FulfillmentError() {
	if m == nil {
		return
	}
	m.fulfillmentErrors.Inc()
}

// DuplicateWebhook increments the duplicate-webhook counter.
func (m *Metrics) DuplicateWebhook() {
	if m == nil {
		return
	}
	m.duplicateWebhooks.Inc()
}

// Refund increments the refund counter for a resulting status.
func (m *Metrics) Refund(status string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(status).Inc()
}

// IdempotencyRace increments the race-resolved counter.
func (m *Metrics) IdempotencyRace() {
	if m == nil {
		return
	}
	m.idempotencyRaces.Inc()
}
