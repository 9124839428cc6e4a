package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tally-hq/tally/pkg/config"
)

// maxRuleLabels caps the number of distinct rule names used as label
// values. Further rules are reported as "other".
const maxRuleLabels = 1000

// Collector owns the Prometheus metrics for matching and the rule cache. It
// implements engine.Observer.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	matchMetrics *MatchMetrics
	cacheMetrics *CacheMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector. If registry is nil a new registry is
// created. A disabled config yields a collector whose Record methods do
// nothing.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		matchMetrics:       NewMatchMetrics(cfg, registry),
		cacheMetrics:       NewCacheMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(maxRuleLabels),
	}
}

func (c *Collector) ruleLabel(rule string) string {
	if rule == "" {
		return "none"
	}
	if !c.cardinalityLimiter.Allow(rule) {
		return "other"
	}
	return rule
}

// RecordMatch records the outcome of matching one transaction.
func (c *Collector) RecordMatch(matched bool, rule string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.matchMetrics.RecordMatch(matched, duration)
}

// RecordRuleHit records that a rule's match expression was true.
func (c *Collector) RecordRuleHit(rule string) {
	if !c.config.Enabled {
		return
	}
	c.matchMetrics.RecordHit(c.ruleLabel(rule))
}

// RecordEvaluationError records a failed evaluation in a rule.
//
// Parameters:
//   - rule: rule name, or "" for file-level variables
//   - stage: "variable", "let", "match", "tag", "field" or "transform"
func (c *Collector) RecordEvaluationError(rule, stage string) {
	if !c.config.Enabled {
		return
	}
	c.matchMetrics.RecordError(c.ruleLabel(rule), stage)
}

// RecordCacheCheck records a cache validity check.
func (c *Collector) RecordCacheCheck(valid bool) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordCheck(valid)
}

// RecordCacheRebuild records a completed cache rebuild and the resulting
// table sizes.
func (c *Collector) RecordCacheRebuild(duration time.Duration, rules, transactions, matches int) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordRebuild(duration)
	c.cacheMetrics.UpdateSize(rules, transactions, matches)
}

// RecordReload records a rule file reload in watch mode.
func (c *Collector) RecordReload(success bool) {
	if !c.config.Enabled {
		return
	}
	c.matchMetrics.RecordReload(success)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteToTextfile writes every registered metric to path in the Prometheus
// text format, for the node exporter textfile collector. The file is
// replaced atomically.
func (c *Collector) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
