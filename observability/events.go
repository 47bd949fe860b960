package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wotori/solana-donations/core/events"
)

type eventMetrics struct {
	byType          *prometheus.CounterVec
	donatedLamports prometheus.Counter
	leaderboardSize prometheus.Gauge
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			byType: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "donations",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
			donatedLamports: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "donations",
				Subsystem: "registry",
				Name:      "donated_lamports_total",
				Help:      "Lamports moved to the treasury by committed donations.",
			}),
			leaderboardSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "donations",
				Subsystem: "registry",
				Name:      "leaderboard_size",
				Help:      "Number of occupied leaderboard slots after the latest donation.",
			}),
		}
		prometheus.MustRegister(
			eventRegistry.byType,
			eventRegistry.donatedLamports,
			eventRegistry.leaderboardSize,
		)
	})
	return eventRegistry
}

// Emit implements events.Emitter so the registry can be attached directly to
// the runtime's committed event stream.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	kind := evt.EventType()
	if kind == "" {
		kind = "unknown"
	}
	m.byType.WithLabelValues(kind).Inc()
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	rendered := payload.Event()
	if rendered == nil {
		return
	}
	if amount, err := strconv.ParseUint(rendered.Attributes["amount"], 10, 64); err == nil && kind == "donations.donated" {
		m.donatedLamports.Add(float64(amount))
	}
	if size, err := strconv.Atoi(rendered.Attributes["leaderboardSize"]); err == nil {
		m.leaderboardSize.Set(float64(size))
	}
}
