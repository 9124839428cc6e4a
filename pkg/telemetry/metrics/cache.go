package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tally-hq/tally/pkg/config"
)

// CacheMetrics tracks the rule cache.
//
// Metrics:
//   - tally_cache_checks_total: Validity checks, by result (valid, stale)
//   - tally_cache_rebuilds_total: Completed rebuilds
//   - tally_cache_rebuild_duration_seconds: Rebuild duration
//   - tally_cache_entries: Rows in the cache, by table (rules, transactions, matches)
type CacheMetrics struct {
	checksTotal     *prometheus.CounterVec
	rebuildsTotal   prometheus.Counter
	rebuildDuration prometheus.Histogram
	entries         *prometheus.GaugeVec
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "cache",
				Name:      "checks_total",
				Help:      "Total number of cache validity checks, by result",
			},
			[]string{"result"},
		),

		rebuildsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "cache",
				Name:      "rebuilds_total",
				Help:      "Total number of cache rebuilds",
			},
		),

		rebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "cache",
				Name:      "rebuild_duration_seconds",
				Help:      "Cache rebuild duration",
				Buckets:   prometheus.DefBuckets,
			},
		),

		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of rows in the cache, by table",
			},
			[]string{"table"},
		),
	}

	registry.MustRegister(
		cm.checksTotal,
		cm.rebuildsTotal,
		cm.rebuildDuration,
		cm.entries,
	)

	return cm
}

// RecordCheck records a validity check.
func (cm *CacheMetrics) RecordCheck(valid bool) {
	result := "stale"
	if valid {
		result = "valid"
	}
	cm.checksTotal.WithLabelValues(result).Inc()
}

// RecordRebuild records a completed rebuild.
func (cm *CacheMetrics) RecordRebuild(duration time.Duration) {
	cm.rebuildsTotal.Inc()
	cm.rebuildDuration.Observe(duration.Seconds())
}

// UpdateSize sets the table sizes.
func (cm *CacheMetrics) UpdateSize(rules, transactions, matches int) {
	cm.entries.WithLabelValues("rules").Set(float64(rules))
	cm.entries.WithLabelValues("transactions").Set(float64(transactions))
	cm.entries.WithLabelValues("matches").Set(float64(matches))
}
