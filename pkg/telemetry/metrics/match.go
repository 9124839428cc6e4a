package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tally-hq/tally/pkg/config"
)

// MatchMetrics tracks rule matching.
//
// Metrics:
//   - tally_match_transactions_total: Transactions matched, by result (matched, unmatched)
//   - tally_match_duration_seconds: Time to match one transaction
//   - tally_match_rule_hits_total: Times each rule's match expression was true
//   - tally_match_evaluation_errors_total: Failed evaluations, by rule and stage
//   - tally_match_reloads_total: Rule file reloads, by result (success, error)
type MatchMetrics struct {
	transactionsTotal *prometheus.CounterVec
	duration          prometheus.Histogram
	ruleHitsTotal     *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	reloadsTotal      *prometheus.CounterVec
}

// NewMatchMetrics creates and registers match metrics with the provided registry.
func NewMatchMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *MatchMetrics {
	mm := &MatchMetrics{
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "match",
				Name:      "transactions_total",
				Help:      "Total number of transactions matched, by result",
			},
			[]string{"result"},
		),

		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "match",
				Name:      "duration_seconds",
				Help:      "Time to match one transaction against every rule",
				// 10µs to 100ms
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
		),

		ruleHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "match",
				Name:      "rule_hits_total",
				Help:      "Total number of times a rule's match expression was true",
			},
			[]string{"rule"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "match",
				Name:      "evaluation_errors_total",
				Help:      "Total number of failed rule evaluations, by rule and stage",
			},
			[]string{"rule", "stage"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "match",
				Name:      "reloads_total",
				Help:      "Total number of rule file reloads, by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		mm.transactionsTotal,
		mm.duration,
		mm.ruleHitsTotal,
		mm.errorsTotal,
		mm.reloadsTotal,
	)

	return mm
}

// RecordMatch records one matched transaction.
func (mm *MatchMetrics) RecordMatch(matched bool, duration time.Duration) {
	result := "unmatched"
	if matched {
		result = "matched"
	}
	mm.transactionsTotal.WithLabelValues(result).Inc()
	mm.duration.Observe(duration.Seconds())
}

// RecordHit records a rule hit.
func (mm *MatchMetrics) RecordHit(rule string) {
	mm.ruleHitsTotal.WithLabelValues(rule).Inc()
}

// RecordError records a failed evaluation.
func (mm *MatchMetrics) RecordError(rule, stage string) {
	mm.errorsTotal.WithLabelValues(rule, stage).Inc()
}

// RecordReload records a rule file reload.
func (mm *MatchMetrics) RecordReload(success bool) {
	result := "error"
	if success {
		result = "success"
	}
	mm.reloadsTotal.WithLabelValues(result).Inc()
}
