package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the contract layer. Services
// and adapters treat a nil *Metrics as "metrics disabled" so unit tests can
// skip registration entirely.
type Metrics struct {
	AggregatesRegistered *prometheus.CounterVec
	StatusTransitions    *prometheus.CounterVec
	VersionConflicts     *prometheus.CounterVec
	OwnershipViolations  prometheus.Counter
	EventsPublished      *prometheus.CounterVec
	EventsDispatched     *prometheus.CounterVec
	HandlerFailures      *prometheus.CounterVec
	DuplicateEvents      prometheus.Counter
	OutboxPending        prometheus.Gauge
	OutboxPublishSeconds prometheus.Histogram
}

// New registers all instruments on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all instruments on reg; integration tests pass their own
// registry so suites don't collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AggregatesRegistered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vendcore_aggregates_registered_total",
			Help: "Aggregates created through a service command, by aggregate type.",
		}, []string{"aggregate_type"}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vendcore_status_transitions_total",
			Help: "Aggregate status transitions, by aggregate type and next status.",
		}, []string{"aggregate_type", "status"}),
		VersionConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vendcore_version_conflicts_total",
			Help: "Optimistic-concurrency conflicts, by aggregate type.",
		}, []string{"aggregate_type"}),
		OwnershipViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "vendcore_ownership_violations_total",
			Help: "Writes rejected by the table ownership registry.",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vendcore_events_published_total",
			Help: "Domain events handed to a publisher, by event type.",
		}, []string{"event_type"}),
		EventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vendcore_events_dispatched_total",
			Help: "Domain events delivered to subscribed handlers, by event type.",
		}, []string{"event_type"}),
		HandlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vendcore_event_handler_failures_total",
			Help: "Handler errors during dispatch, by event type.",
		}, []string{"event_type"}),
		DuplicateEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "vendcore_duplicate_events_total",
			Help: "Events skipped by consumers because the ID was already seen.",
		}),
		OutboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vendcore_outbox_pending",
			Help: "Outbox rows waiting for publication.",
		}),
		OutboxPublishSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vendcore_outbox_publish_seconds",
			Help:    "Latency from outbox row creation to broker publication.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// IncAggregateRegistered is nil-safe.
func (m *Metrics) IncAggregateRegistered(aggregateType string) {
	if m == nil {
		return
	}
	m.AggregatesRegistered.WithLabelValues(aggregateType).Inc()
}

// IncStatusTransition is nil-safe.
func (m *Metrics) IncStatusTransition(aggregateType, status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(aggregateType, status).Inc()
}

// IncVersionConflict is nil-safe.
func (m *Metrics) IncVersionConflict(aggregateType string) {
	if m == nil {
		return
	}
	m.VersionConflicts.WithLabelValues(aggregateType).Inc()
}

// IncOwnershipViolation is nil-safe.
func (m *Metrics) IncOwnershipViolation() {
	if m == nil {
		return
	}
	m.OwnershipViolations.Inc()
}

// IncEventPublished is nil-safe.
func (m *Metrics) IncEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// IncEventDispatched is nil-safe.
func (m *Metrics) IncEventDispatched(eventType string) {
	if m == nil {
		return
	}
	m.EventsDispatched.WithLabelValues(eventType).Inc()
}

// IncHandlerFailure is nil-safe.
func (m *Metrics) IncHandlerFailure(eventType string) {
	if m == nil {
		return
	}
	m.HandlerFailures.WithLabelValues(eventType).Inc()
}

// IncDuplicateEvent is nil-safe.
func (m *Metrics) IncDuplicateEvent() {
	if m == nil {
		return
	}
	m.DuplicateEvents.Inc()
}

// SetOutboxPending is nil-safe.
func (m *Metrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

// ObserveOutboxPublish is nil-safe.
func (m *Metrics) ObserveOutboxPublish(seconds float64) {
	if m == nil {
		return
	}
	m.OutboxPublishSeconds.Observe(seconds)
}
