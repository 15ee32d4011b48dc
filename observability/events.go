package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"refundledger/core/events"
)

// EventMetrics counts emitted ledger events. It is itself an events.Emitter
// so it can sit in a fan-out next to the journal.
type EventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *EventMetrics
)

// Events returns the metrics registry tracking structured ledger events.
func Events() *EventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = NewEventMetrics(prometheus.DefaultRegisterer)
	})
	return eventRegistry
}

// NewEventMetrics builds the event counter and registers it on reg.
func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	m := &EventMetrics{
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refund",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Count of ledger events segmented by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.emitted)
	}
	return m
}

// Emit implements events.Emitter.
func (m *EventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		eventType = "unknown"
	}
	m.emitted.WithLabelValues(eventType).Inc()
}
