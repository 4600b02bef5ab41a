package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	// Mutations counts engine writes by kind and outcome.
	// Labels: operation (transition, create, reasons, void), kind, outcome
	Mutations *prometheus.CounterVec
	// EventsRecorded counts history rows written.
	// Labels: kind, event_type
	EventsRecorded *prometheus.CounterVec
	// Alerts counts validator alerts raised on writes.
	// Labels: code, severity
	Alerts *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stella",
				Subsystem: "pipeline",
				Name:      "mutations_total",
				Help:      "Total number of engine mutations by outcome",
			},
			[]string{"operation", "kind", "outcome"},
		),
		EventsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stella",
				Subsystem: "pipeline",
				Name:      "history_events_total",
				Help:      "Total number of history rows written by event type",
			},
			[]string{"kind", "event_type"},
		),
		Alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stella",
				Subsystem: "pipeline",
				Name:      "alerts_total",
				Help:      "Total number of validation alerts raised on writes",
			},
			[]string{"code", "severity"},
		),
	}
}

func (m *Metrics) observeMutation(operation string, kind SubjectKind, outcome string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(operation, string(kind), outcome).Inc()
}

func (m *Metrics) observeRows(kind SubjectKind, rows []HistoryRecord) {
	if m == nil {
		return
	}
	for _, r := range rows {
		m.EventsRecorded.WithLabelValues(string(kind), string(r.EventType)).Inc()
	}
}

func (m *Metrics) observeAlerts(alerts []Alert) {
	if m == nil {
		return
	}
	for _, a := range alerts {
		m.Alerts.WithLabelValues(a.Code, a.Severity.String()).Inc()
	}
}
