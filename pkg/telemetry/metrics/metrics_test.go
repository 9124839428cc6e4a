package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"tally-hq/tally/pkg/config"
	"tally-hq/tally/pkg/engine"
)

var _ engine.Observer = (*Collector)(nil)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)
	if collector.Registry() != registry {
		t.Error("Registry() did not return the given registry")
	}

	defaulted := NewCollector(&config.MetricsConfig{Enabled: true}, nil)
	if defaulted.Registry() == nil {
		t.Fatal("Registry() = nil")
	}
	if defaulted.config.Namespace != "tally" {
		t.Errorf("Namespace = %q, want tally", defaulted.config.Namespace)
	}
}

func TestCollector_RecordMatch(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordMatch(true, "Coffee", time.Millisecond)
	c.RecordMatch(true, "Coffee", time.Millisecond)
	c.RecordMatch(false, "", time.Millisecond)

	if got := testutil.ToFloat64(c.matchMetrics.transactionsTotal.WithLabelValues("matched")); got != 2 {
		t.Errorf("matched = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.matchMetrics.transactionsTotal.WithLabelValues("unmatched")); got != 1 {
		t.Errorf("unmatched = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.matchMetrics.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestCollector_RuleHitsAndErrors(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordRuleHit("Coffee")
	c.RecordRuleHit("Coffee")
	c.RecordRuleHit("Large")
	c.RecordEvaluationError("Broken", "match")
	c.RecordEvaluationError("", "variable")

	if got := testutil.ToFloat64(c.matchMetrics.ruleHitsTotal.WithLabelValues("Coffee")); got != 2 {
		t.Errorf("Coffee hits = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(c.matchMetrics.ruleHitsTotal); got != 2 {
		t.Errorf("rule hit series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(c.matchMetrics.errorsTotal.WithLabelValues("Broken", "match")); got != 1 {
		t.Errorf("Broken match errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.matchMetrics.errorsTotal.WithLabelValues("none", "variable")); got != 1 {
		t.Errorf("variable errors = %v, want 1", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, nil)

	c.RecordMatch(true, "Coffee", time.Millisecond)
	c.RecordRuleHit("Coffee")
	c.RecordCacheCheck(true)
	c.RecordReload(true)

	if got := testutil.CollectAndCount(c.matchMetrics.transactionsTotal); got != 0 {
		t.Errorf("transactions series = %d, want 0", got)
	}
	if got := testutil.CollectAndCount(c.cacheMetrics.checksTotal); got != 0 {
		t.Errorf("cache check series = %d, want 0", got)
	}
}

func TestCollector_Cache(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordCacheCheck(true)
	c.RecordCacheCheck(false)
	c.RecordCacheCheck(false)
	c.RecordCacheRebuild(20*time.Millisecond, 12, 300, 410)

	if got := testutil.ToFloat64(c.cacheMetrics.checksTotal.WithLabelValues("stale")); got != 2 {
		t.Errorf("stale checks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.cacheMetrics.rebuildsTotal); got != 1 {
		t.Errorf("rebuilds = %v, want 1", got)
	}

	expected := `
# HELP test_cache_entries Current number of rows in the cache, by table
# TYPE test_cache_entries gauge
test_cache_entries{table="matches"} 410
test_cache_entries{table="rules"} 12
test_cache_entries{table="transactions"} 300
`
	if err := testutil.CollectAndCompare(c.cacheMetrics.entries, strings.NewReader(expected)); err != nil {
		t.Errorf("entries mismatch: %v", err)
	}
}

func TestCollector_Reload(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	c.RecordReload(true)
	c.RecordReload(false)
	c.RecordReload(true)

	if got := testutil.ToFloat64(c.matchMetrics.reloadsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("successful reloads = %v, want 2", got)
	}
}

func TestCollector_WriteToTextfile(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	c.RecordRuleHit("Coffee")

	path := filepath.Join(t.TempDir(), "tally.prom")
	if err := c.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `test_match_rule_hits_total{rule="Coffee"} 1`) {
		t.Errorf("textfile missing rule hit:\n%s", data)
	}

	if err := c.WriteToTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Error("WriteToTextfile(missing dir) error = nil")
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("Allow() = false below limit")
	}
	if cl.Allow("c") {
		t.Error("Allow(c) = true above limit")
	}
	if !cl.Allow("a") {
		t.Error("Allow(a) = false for existing value")
	}
	if cl.Count() != 2 {
		t.Errorf("Count() = %d, want 2", cl.Count())
	}
}

func TestCollector_RuleLabelOverflow(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	c.cardinalityLimiter = NewCardinalityLimiter(1)

	c.RecordRuleHit("First")
	c.RecordRuleHit("Second")

	if got := testutil.ToFloat64(c.matchMetrics.ruleHitsTotal.WithLabelValues("other")); got != 1 {
		t.Errorf("other hits = %v, want 1", got)
	}
}
