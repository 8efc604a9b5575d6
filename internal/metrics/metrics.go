// Package metrics provides Prometheus instrumentation for wallet replays.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Metrics holds the replay collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	ReplayDuration *prometheus.HistogramVec
	EventsTotal    *prometheus.CounterVec
	SkippedTotal   *prometheus.CounterVec
	Realized       *prometheus.GaugeVec
	AnalyzeErrors  *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ReplayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polypnl_replay_duration_seconds",
				Help:    "Ledger replay duration in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"wallet"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polypnl_events_processed_total",
				Help: "Total events replayed, by kind.",
			},
			[]string{"kind"},
		),
		SkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polypnl_events_skipped_total",
				Help: "Total events skipped by the ledger, by reason.",
			},
			[]string{"reason"},
		),
		Realized: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polypnl_realized_pnl_usdc",
				Help: "Total realized PnL of the last analysis, per wallet.",
			},
			[]string{"wallet"},
		),
		AnalyzeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polypnl_analyze_errors_total",
				Help: "Total failed wallet analyses, by stage.",
			},
			[]string{"stage"},
		),
	}

	registry.MustRegister(
		m.ReplayDuration,
		m.EventsTotal,
		m.SkippedTotal,
		m.Realized,
		m.AnalyzeErrors,
	)
	return m
}

// ObserveReplay records one replay of a wallet.
func (m *Metrics) ObserveReplay(wallet string, duration time.Duration, processed map[domain.EventKind]int, skips domain.SkipCounts) {
	if m == nil {
		return
	}
	m.ReplayDuration.WithLabelValues(wallet).Observe(duration.Seconds())
	for kind, n := range processed {
		m.EventsTotal.WithLabelValues(kind.String()).Add(float64(n))
	}
	for reason, n := range skips {
		m.SkippedTotal.WithLabelValues(string(reason)).Add(float64(n))
	}
}

// SetRealized publishes the total realized PnL of a wallet.
func (m *Metrics) SetRealized(wallet string, report domain.Report) {
	if m == nil {
		return
	}
	total, _ := report.TotalRealized.Float64()
	m.Realized.WithLabelValues(wallet).Set(total)
}

func (m *Metrics) IncError(stage string) {
	if m == nil {
		return
	}
	m.AnalyzeErrors.WithLabelValues(stage).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
