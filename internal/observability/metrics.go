package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records reconciliation activity
type EngineMetrics struct {
	passDuration     prometheus.Histogram
	passesSkipped    prometheus.Counter
	rafflesProcessed *prometheus.CounterVec
	depositsCredited *prometheus.CounterVec
	payouts          *prometheus.CounterVec
	settlementSteps  *prometheus.CounterVec
	errors           *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "raffle",
				Subsystem: "scheduler",
				Name:      "pass_duration_seconds",
				Help:      "Duration of reconciliation passes.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			}),
			passesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "scheduler",
				Name:      "passes_skipped_total",
				Help:      "Ticks skipped because the previous pass was still running.",
			}),
			rafflesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "scheduler",
				Name:      "raffles_processed_total",
				Help:      "Raffles visited by reconciliation passes segmented by outcome.",
			}, []string{"outcome"}),
			depositsCredited: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "ledger",
				Name:      "deposits_credited_total",
				Help:      "Deposits credited to raffles segmented by asset.",
			}, []string{"asset"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "dispersal",
				Name:      "prize_payouts_total",
				Help:      "Prize payouts attempted segmented by asset and outcome.",
			}, []string{"asset", "outcome"}),
			settlementSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "dispersal",
				Name:      "settlement_steps_total",
				Help:      "Settlement sub-steps completed segmented by step and outcome.",
			}, []string{"step", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Errors encountered by the engine segmented by stage.",
			}, []string{"stage"}),
		}
		prometheus.MustRegister(
			engineRegistry.passDuration,
			engineRegistry.passesSkipped,
			engineRegistry.rafflesProcessed,
			engineRegistry.depositsCredited,
			engineRegistry.payouts,
			engineRegistry.settlementSteps,
			engineRegistry.errors,
		)
	})
	return engineRegistry
}

// ObservePass records the duration of one reconciliation pass.
func (m *EngineMetrics) ObservePass(d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.Observe(d.Seconds())
}

// PassSkipped counts a tick that found a pass still running.
func (m *EngineMetrics) PassSkipped() {
	if m == nil {
		return
	}
	m.passesSkipped.Inc()
}

// RaffleProcessed counts one raffle visit.
func (m *EngineMetrics) RaffleProcessed(outcome string) {
	if m == nil {
		return
	}
	m.rafflesProcessed.WithLabelValues(outcome).Inc()
}

// DepositsCredited adds n credited deposits for the asset.
func (m *EngineMetrics) DepositsCredited(asset string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.depositsCredited.WithLabelValues(asset).Add(float64(n))
}

// Payout counts a prize payout attempt.
func (m *EngineMetrics) Payout(asset, outcome string) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(asset, outcome).Inc()
}

// SettlementStep counts a settlement sub-step attempt.
func (m *EngineMetrics) SettlementStep(step, outcome string) {
	if m == nil {
		return
	}
	m.settlementSteps.WithLabelValues(step, outcome).Inc()
}

// RecordError counts an error at the given stage.
func (m *EngineMetrics) RecordError(stage string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(stage).Inc()
}
