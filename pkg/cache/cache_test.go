package cache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"tally-hq/tally/pkg/engine"
	"tally-hq/tally/pkg/rules"
	"tally-hq/tally/pkg/txn"
)

const testRules = `budget = 100

[Coffee]
match: contains("COFFEE")
category: Food
subcategory: Coffee
tags: caffeine

[Big]
match: amount > budget
tags: large

[Latte]
let: big = amount > 150
match: contains("COFFEE") and big
category: Food
subcategory: Latte
field: size = "large"

[Never]
match: contains("ZZZNOPE")
category: Misc
`

func testTransactions() []*txn.Transaction {
	return []*txn.Transaction{
		{Description: "BLUE COFFEE", Amount: 5},
		{Description: "APPLE STORE", Amount: 500},
		{Description: "BIG COFFEE", Amount: 200},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// forEachDriver runs fn against a fresh cache for every SQLite driver. The
// cgo driver is skipped when the binary was built without cgo.
func forEachDriver(t *testing.T, fn func(t *testing.T, c *Cache, dir string)) {
	for _, driver := range []string{DriverSQLite, DriverSQLite3} {
		t.Run(driver, func(t *testing.T) {
			dir := t.TempDir()
			cfg := DefaultConfig()
			cfg.Dir = filepath.Join(dir, ".tally")
			cfg.Driver = driver

			c, err := Open(context.Background(), cfg, discardLogger())
			if err != nil {
				if driver == DriverSQLite3 && strings.Contains(err.Error(), "CGO_ENABLED") {
					t.Skip("go-sqlite3 requires cgo")
				}
				t.Fatalf("Open() error = %v", err)
			}
			t.Cleanup(func() { c.Close() })
			fn(t, c, dir)
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func loadEngine(t *testing.T, path string) *engine.Engine {
	t.Helper()
	e, err := engine.Load(path, nil, discardLogger())
	if err != nil {
		t.Fatalf("engine.Load(%s) error = %v", path, err)
	}
	return e
}

// build writes the test rules and a data file under dir and rebuilds c.
func build(t *testing.T, c *Cache, dir string) (rulesPath, dataPath string) {
	t.Helper()
	rulesPath = filepath.Join(dir, "tally.rules")
	dataPath = filepath.Join(dir, "txns.json")
	writeFile(t, rulesPath, testRules)
	writeFile(t, dataPath, `[]`)

	err := c.Rebuild(context.Background(), &Build{
		RulesPath:    rulesPath,
		DataPaths:    []string{dataPath},
		Engine:       loadEngine(t, rulesPath),
		Transactions: testTransactions(),
	})
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	return rulesPath, dataPath
}

func ruleNames(rs []*CachedRule) []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	return names
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"mattn driver", func(c *Config) { c.Driver = DriverSQLite3 }, false},
		{"empty dir", func(c *Config) { c.Dir = "" }, true},
		{"empty file name", func(c *Config) { c.FileName = "" }, true},
		{"unknown driver", func(c *Config) { c.Driver = "postgres" }, true},
		{"negative timeout", func(c *Config) { c.BusyTimeout = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestHashFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	writeFile(t, a, "one")
	writeFile(t, b, "two")

	h1, err := HashFiles([]string{a, b})
	if err != nil {
		t.Fatalf("HashFiles() error = %v", err)
	}
	h2, _ := HashFiles([]string{b, a})
	if h1 != h2 {
		t.Error("HashFiles() depends on argument order")
	}

	writeFile(t, b, "changed")
	h3, _ := HashFiles([]string{a, b})
	if h3 == h1 {
		t.Error("HashFiles() did not change with file content")
	}

	if _, err := HashFiles([]string{filepath.Join(dir, "missing")}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("HashFiles(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestRebuildAndQueries(t *testing.T) {
	forEachDriver(t, func(t *testing.T, c *Cache, dir string) {
		ctx := context.Background()
		build(t, c, dir)

		cached, err := c.Rules(ctx)
		if err != nil {
			t.Fatalf("Rules() error = %v", err)
		}
		if got, want := ruleNames(cached), []string{"Coffee", "Big", "Latte", "Never"}; !reflect.DeepEqual(got, want) {
			t.Errorf("Rules() = %v, want %v", got, want)
		}
		latte := cached[2]
		if !latte.IsComplex || latte.SourceLine != 13 || latte.Position != 2 {
			t.Errorf("Latte = complex %v line %d position %d, want true 13 2", latte.IsComplex, latte.SourceLine, latte.Position)
		}
		if len(latte.Lets) != 1 || latte.Lets[0].Expr != "amount > 150" {
			t.Errorf("Latte.Lets = %v", latte.Lets)
		}

		counts, err := c.MatchCounts(ctx)
		if err != nil {
			t.Fatalf("MatchCounts() error = %v", err)
		}
		wantCounts := []RuleCount{{"Coffee", 2}, {"Big", 2}, {"Latte", 1}, {"Never", 0}}
		if !reflect.DeepEqual(counts, wantCounts) {
			t.Errorf("MatchCounts() = %v, want %v", counts, wantCounts)
		}

		unused, err := c.UnusedRules(ctx)
		if err != nil {
			t.Fatalf("UnusedRules() error = %v", err)
		}
		if got := ruleNames(unused); !reflect.DeepEqual(got, []string{"Never"}) {
			t.Errorf("UnusedRules() = %v, want [Never]", got)
		}

		found, err := c.SearchRules(ctx, "coffee")
		if err != nil {
			t.Fatalf("SearchRules() error = %v", err)
		}
		if got := ruleNames(found); !reflect.DeepEqual(got, []string{"Coffee", "Latte"}) {
			t.Errorf("SearchRules(coffee) = %v, want [Coffee Latte]", got)
		}

		txns, err := c.Transactions(ctx)
		if err != nil {
			t.Fatalf("Transactions() error = %v", err)
		}
		if len(txns) != 3 {
			t.Fatalf("len(Transactions()) = %d, want 3", len(txns))
		}

		big := testTransactions()[2]
		names, err := c.MatchingRules(ctx, big.ID())
		if err != nil {
			t.Fatalf("MatchingRules() error = %v", err)
		}
		if want := []string{"Coffee", "Big", "Latte"}; !reflect.DeepEqual(names, want) {
			t.Errorf("MatchingRules() = %v, want %v", names, want)
		}

		status, err := c.Status(ctx)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if status.Rules != 4 || status.Transactions != 3 || status.Matches != 5 {
			t.Errorf("Status() counts = %d/%d/%d, want 4/3/5", status.Rules, status.Transactions, status.Matches)
		}
		if status.BuildID == "" || status.LastComputed.IsZero() {
			t.Errorf("Status() = %+v, want build id and time", status)
		}
		if status.MatchMode != string(engine.FirstMatch) {
			t.Errorf("Status().MatchMode = %q, want %q", status.MatchMode, engine.FirstMatch)
		}
	})
}

func TestIsValid(t *testing.T) {
	forEachDriver(t, func(t *testing.T, c *Cache, dir string) {
		ctx := context.Background()
		rulesPath, dataPath := build(t, c, dir)

		check := func(name string, data []string, requireData, want bool) {
			t.Helper()
			got, err := c.IsValid(ctx, rulesPath, data, requireData)
			if err != nil {
				t.Fatalf("%s: IsValid() error = %v", name, err)
			}
			if got != want {
				t.Errorf("%s: IsValid() = %v, want %v", name, got, want)
			}
		}

		check("fresh", nil, false, true)
		check("fresh with data", []string{dataPath}, true, true)

		writeFile(t, dataPath, `[{"description": "NEW", "amount": 1}]`)
		check("data changed", []string{dataPath}, true, false)
		check("data changed, rules only", nil, false, true)

		writeFile(t, rulesPath, testRules+"\n# edited\n")
		check("rules changed", nil, false, false)

		missing, err := c.IsValid(ctx, filepath.Join(dir, "missing.rules"), nil, false)
		if err != nil || missing {
			t.Errorf("IsValid(missing) = %v, %v, want false, nil", missing, err)
		}
	})
}

func TestRebuildRulesOnly(t *testing.T) {
	forEachDriver(t, func(t *testing.T, c *Cache, dir string) {
		ctx := context.Background()
		rulesPath, dataPath := build(t, c, dir)

		if err := c.RebuildRulesOnly(ctx, rulesPath, loadEngine(t, rulesPath)); err != nil {
			t.Fatalf("RebuildRulesOnly() error = %v", err)
		}
		status, _ := c.Status(ctx)
		if status.Rules != 4 || status.Transactions != 0 || status.Matches != 0 {
			t.Errorf("Status() counts = %d/%d/%d, want 4/0/0", status.Rules, status.Transactions, status.Matches)
		}
		if ok, _ := c.IsValid(ctx, rulesPath, nil, false); !ok {
			t.Error("IsValid() = false after rules-only rebuild")
		}
		if ok, _ := c.IsValid(ctx, rulesPath, []string{dataPath}, true); ok {
			t.Error("IsValid(requireData) = true after rules-only rebuild")
		}
	})
}

func TestInvalidateAndMarkStale(t *testing.T) {
	forEachDriver(t, func(t *testing.T, c *Cache, dir string) {
		ctx := context.Background()
		rulesPath, dataPath := build(t, c, dir)

		if err := c.MarkMatchesStale(ctx); err != nil {
			t.Fatalf("MarkMatchesStale() error = %v", err)
		}
		status, _ := c.Status(ctx)
		if status.Rules != 4 || status.Transactions != 0 || status.Matches != 0 || status.DataHash != "" {
			t.Errorf("Status() after MarkMatchesStale = %+v", status)
		}
		if ok, _ := c.IsValid(ctx, rulesPath, nil, false); !ok {
			t.Error("IsValid() = false after MarkMatchesStale, want rules still valid")
		}
		if ok, _ := c.IsValid(ctx, rulesPath, []string{dataPath}, true); ok {
			t.Error("IsValid(requireData) = true after MarkMatchesStale")
		}
		if preamble, _ := c.Preamble(ctx); !reflect.DeepEqual(preamble, []string{"budget = 100"}) {
			t.Errorf("Preamble() = %v, want [budget = 100]", preamble)
		}

		if err := c.Invalidate(ctx); err != nil {
			t.Fatalf("Invalidate() error = %v", err)
		}
		if ok, _ := c.IsValid(ctx, rulesPath, nil, false); ok {
			t.Error("IsValid() = true after Invalidate")
		}
		if status, _ := c.Status(ctx); status.RulesHash != "" || status.BuildID != "" {
			t.Errorf("Status() after Invalidate = %+v", status)
		}
	})
}

func TestAddOrUpdateRule(t *testing.T) {
	forEachDriver(t, func(t *testing.T, c *Cache, dir string) {
		ctx := context.Background()
		build(t, c, dir)

		food := "Food"
		added, action, err := c.AddOrUpdateRule(ctx, RuleChange{
			Name:     "Tea",
			Match:    `contains("TEA")`,
			Category: &food,
			Tags:     []string{"Hot", "hot"},
		})
		if err != nil {
			t.Fatalf("AddOrUpdateRule(Tea) error = %v", err)
		}
		if action != ActionAdded || added.Position != 4 || added.Merchant != "Tea" || added.Priority != rules.DefaultPriority {
			t.Errorf("AddOrUpdateRule(Tea) = %+v, %s", added, action)
		}
		if !reflect.DeepEqual(added.Tags, []string{"hot"}) {
			t.Errorf("Tags = %v, want [hot]", added.Tags)
		}

		priority := 80
		updated, action, err := c.AddOrUpdateRule(ctx, RuleChange{Name: "coffee", Priority: &priority})
		if err != nil {
			t.Fatalf("AddOrUpdateRule(coffee) error = %v", err)
		}
		if action != ActionUpdated || updated.Priority != 80 || updated.Category != "Food" || updated.Subcategory != "Coffee" {
			t.Errorf("AddOrUpdateRule(coffee) = %+v, %s", updated, action)
		}

		misc := "Other"
		byMatch, action, err := c.AddOrUpdateRule(ctx, RuleChange{Match: `contains("ZZZNOPE")`, Category: &misc})
		if err != nil {
			t.Fatalf("AddOrUpdateRule(by match) error = %v", err)
		}
		if action != ActionUpdated || byMatch.Name != "Never" || byMatch.Category != "Other" {
			t.Errorf("AddOrUpdateRule(by match) = %+v, %s", byMatch, action)
		}

		_, _, err = c.AddOrUpdateRule(ctx, RuleChange{Name: "Bad", Match: `contains(`, Category: &food})
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) || validationErr.Field != "match" {
			t.Errorf("AddOrUpdateRule(bad match) error = %v, want match ValidationError", err)
		}

		_, _, err = c.AddOrUpdateRule(ctx, RuleChange{Name: "NoCategory", Match: `contains("X")`})
		if !errors.As(err, &validationErr) {
			t.Errorf("AddOrUpdateRule(no category) error = %v, want ValidationError", err)
		}

		// Clearing the tags of a tag-only rule leaves it with neither.
		_, _, err = c.AddOrUpdateRule(ctx, RuleChange{Name: "big", Tags: []string{}})
		if !errors.As(err, &validationErr) || validationErr.Field != "category" {
			t.Errorf("AddOrUpdateRule(clear tags) error = %v, want category ValidationError", err)
		}
		cached, _ := c.Rules(ctx)
		if big := cached[1]; big.Name != "Big" || !reflect.DeepEqual(big.Tags, []string{"large"}) {
			t.Errorf("Big after rejected update = %+v", big)
		}

		status, _ := c.Status(ctx)
		if status.Rules != 5 {
			t.Errorf("Status().Rules = %d, want 5", status.Rules)
		}
	})
}

func TestUpdateRule(t *testing.T) {
	forEachDriver(t, func(t *testing.T, c *Cache, dir string) {
		ctx := context.Background()
		build(t, c, dir)

		sub := "Espresso"
		r, err := c.UpdateRule(ctx, "COFFEE", RulePatch{
			Subcategory: &sub,
			AddTags:     []string{"Morning", "caffeine"},
			RemoveTags:  []string{"caffeine"},
		})
		if err != nil {
			t.Fatalf("UpdateRule() error = %v", err)
		}
		if r.Subcategory != "Espresso" || !reflect.DeepEqual(r.Tags, []string{"morning"}) {
			t.Errorf("UpdateRule() = %+v", r)
		}

		cached, _ := c.Rules(ctx)
		if cached[0].Subcategory != "Espresso" || !reflect.DeepEqual(cached[0].Tags, []string{"morning"}) {
			t.Errorf("stored rule = %+v", cached[0])
		}

		if _, err := c.UpdateRule(ctx, "missing", RulePatch{Subcategory: &sub}); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("UpdateRule(missing) error = %v, want ErrRuleNotFound", err)
		}

		_, err = c.UpdateRule(ctx, "Big", RulePatch{RemoveTags: []string{"large"}})
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Errorf("UpdateRule(remove last tag) error = %v, want ValidationError", err)
		}
	})
}

func TestDeleteRules(t *testing.T) {
	forEachDriver(t, func(t *testing.T, c *Cache, dir string) {
		ctx := context.Background()
		build(t, c, dir)

		tests := []struct {
			name string
			del  func() (bool, error)
			want bool
		}{
			{"by name", func() (bool, error) { return c.DeleteByName(ctx, "never") }, true},
			{"by name again", func() (bool, error) { return c.DeleteByName(ctx, "never") }, false},
			{"by match", func() (bool, error) { return c.DeleteByMatch(ctx, `amount > budget`) }, true},
			{"unknown match", func() (bool, error) { return c.DeleteByMatch(ctx, `contains("X")`) }, false},
		}
		for _, tt := range tests {
			got, err := tt.del()
			if err != nil {
				t.Fatalf("%s: error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("%s: deleted = %v, want %v", tt.name, got, tt.want)
			}
		}

		status, _ := c.Status(ctx)
		if status.Rules != 2 || status.Matches != 3 {
			t.Errorf("Status() = %d rules, %d matches, want 2, 3", status.Rules, status.Matches)
		}
	})
}

func TestRegenerateRoundTrip(t *testing.T) {
	forEachDriver(t, func(t *testing.T, c *Cache, dir string) {
		ctx := context.Background()
		rulesPath, _ := build(t, c, dir)

		food := "Food"
		if _, _, err := c.AddOrUpdateRule(ctx, RuleChange{Name: "Store", Match: `contains("STORE")`, Category: &food}); err != nil {
			t.Fatalf("AddOrUpdateRule() error = %v", err)
		}
		if err := c.RegenerateRulesFile(ctx, rulesPath); err != nil {
			t.Fatalf("RegenerateRulesFile() error = %v", err)
		}

		if ok, _ := c.IsValid(ctx, rulesPath, nil, false); !ok {
			t.Error("IsValid() = false after regenerate")
		}

		data, err := os.ReadFile(rulesPath)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(data), "budget = 100\n\n[Coffee]\n") {
			t.Errorf("regenerated file starts %q", string(data)[:min(len(data), 40)])
		}

		regenerated := loadEngine(t, rulesPath)
		if got := len(regenerated.Rules()); got != 5 {
			t.Fatalf("regenerated rule count = %d, want 5", got)
		}

		original := filepath.Join(dir, "original.rules")
		writeFile(t, original, testRules+"\n[Store]\nmatch: contains(\"STORE\")\ncategory: Food\n")
		want := loadEngine(t, original)

		for _, tr := range testTransactions() {
			a := want.Match(tr, nil)
			b := regenerated.Match(tr, nil)
			if a.Category != b.Category || a.Subcategory != b.Subcategory || a.Merchant != b.Merchant {
				t.Errorf("%s: regenerated match = %s/%s/%s, want %s/%s/%s", tr.Description,
					b.Category, b.Subcategory, b.Merchant, a.Category, a.Subcategory, a.Merchant)
			}
			ta, tb := slices.Sorted(slices.Values(a.Tags)), slices.Sorted(slices.Values(b.Tags))
			if !reflect.DeepEqual(ta, tb) {
				t.Errorf("%s: regenerated tags = %v, want %v", tr.Description, tb, ta)
			}
			if !reflect.DeepEqual(a.ExtraFields, b.ExtraFields) {
				t.Errorf("%s: regenerated fields = %v, want %v", tr.Description, b.ExtraFields, a.ExtraFields)
			}
		}

		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".tmp") {
				t.Errorf("temporary file %s left behind", e.Name())
			}
		}
	})
}

func TestClosedCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	c, err := Open(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := c.Rules(context.Background()); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Rules() error = %v, want ErrCacheClosed", err)
	}
	if err := c.Invalidate(context.Background()); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Invalidate() error = %v, want ErrCacheClosed", err)
	}
}

func TestReopenKeepsContents(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Dir = filepath.Join(dir, ".tally")

	c, err := Open(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	rulesPath, _ := build(t, c, dir)
	c.Close()

	c, err = Open(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer c.Close()
	if ok, _ := c.IsValid(context.Background(), rulesPath, nil, false); !ok {
		t.Error("IsValid() = false after reopen")
	}
}
