package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the engine counters. A nil *Metrics records nothing, so
// components can take one optionally.
type Metrics struct {
	HistoryLoads        *prometheus.CounterVec
	HistoryLoadDuration prometheus.Histogram
	Sends               *prometheus.CounterVec
	PlaceholderTimeouts prometheus.Counter
	StaleLoadsDropped   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HistoryLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_history_loads_total",
				Help: "History loads by result",
			},
			[]string{"scope_kind", "result"}, // "ok" or "error"
		),
		HistoryLoadDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatsync_history_load_duration_seconds",
				Help:    "History load duration",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		Sends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_sends_total",
				Help: "Send attempts by outcome",
			},
			[]string{"outcome"},
		),
		PlaceholderTimeouts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_placeholder_timeouts_total",
				Help: "Placeholders removed by the safety timer",
			},
		),
		StaleLoadsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_stale_loads_dropped_total",
				Help: "History responses discarded because the scope changed",
			},
		),
	}
}

func (m *Metrics) ObserveHistoryLoad(scopeKind string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.HistoryLoads.WithLabelValues(scopeKind, result).Inc()
	m.HistoryLoadDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSend(outcome string) {
	if m == nil {
		return
	}
	m.Sends.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePlaceholderTimeout() {
	if m == nil {
		return
	}
	m.PlaceholderTimeouts.Inc()
}

func (m *Metrics) ObserveStaleLoadDropped() {
	if m == nil {
		return
	}
	m.StaleLoadsDropped.Inc()
}
