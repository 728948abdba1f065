// Package metrics exposes the engine's live counters and gauges via
// prometheus client_golang, registered against a dedicated registry so
// tests can spin up isolated instances without colliding with the global
// default registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every Prometheus collector the engine publishes.
type Metrics struct {
	registry *prometheus.Registry

	TicksProcessed   prometheus.Counter
	BarsCompleted    prometheus.Counter
	SignalsDetected  *prometheus.CounterVec // labeled by pattern
	SignalsApproved  prometheus.Counter
	SignalsRejected  *prometheus.CounterVec // labeled by rejection reason
	TradesCompleted  prometheus.Counter
	OpenPositions    prometheus.Gauge
	DailyPnL         prometheus.Gauge
	AccountBalance   prometheus.Gauge
	CurrentRegime    *prometheus.GaugeVec // one gauge per regime, 1 for active
	RegimeConfidence prometheus.Gauge
	IsHalted         prometheus.Gauge
}

// New creates and registers a fresh set of collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		TicksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderflow_ticks_processed_total",
			Help: "Total ticks ingested by the aggregator.",
		}),
		BarsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderflow_bars_completed_total",
			Help: "Total footprint bars closed.",
		}),
		SignalsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_signals_detected_total",
			Help: "Total signals detected, labeled by pattern.",
		}, []string{"pattern"}),
		SignalsApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderflow_signals_approved_total",
			Help: "Total signals approved by the router.",
		}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_signals_rejected_total",
			Help: "Total signals rejected by the router, labeled by rejection reason.",
		}, []string{"reason"}),
		TradesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderflow_trades_completed_total",
			Help: "Total closed trades.",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_open_positions",
			Help: "Current number of open positions.",
		}),
		DailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_daily_pnl_dollars",
			Help: "Current session realized P&L in dollars.",
		}),
		AccountBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_account_balance_dollars",
			Help: "Current tier-tracked account balance in dollars.",
		}),
		CurrentRegime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orderflow_regime_active",
			Help: "1 for the currently classified regime, 0 for all others.",
		}, []string{"regime"}),
		RegimeConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_regime_confidence",
			Help: "Confidence score of the current regime classification.",
		}),
		IsHalted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_is_halted",
			Help: "1 if trading is currently halted, 0 otherwise.",
		}),
	}

	registry.MustRegister(
		m.TicksProcessed, m.BarsCompleted, m.SignalsDetected, m.SignalsApproved,
		m.SignalsRejected, m.TradesCompleted, m.OpenPositions, m.DailyPnL,
		m.AccountBalance, m.CurrentRegime, m.RegimeConfidence, m.IsHalted,
	)
	return m
}

// Registry returns the Prometheus registry these collectors are registered
// against, for mounting behind an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetRegime zeroes every regime gauge then sets the active one to 1, so a
// Prometheus query always sees exactly one regime active at a time.
func (m *Metrics) SetRegime(active string, all []string) {
	for _, r := range all {
		if r == active {
			m.CurrentRegime.WithLabelValues(r).Set(1)
		} else {
			m.CurrentRegime.WithLabelValues(r).Set(0)
		}
	}
}
