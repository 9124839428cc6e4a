package main

import (
	"encoding/json"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"

	"tally-hq/tally/pkg/cache"
	"tally-hq/tally/pkg/cli"
	"tally-hq/tally/pkg/rules"
)

func decodeRecords(t *testing.T, out string) []map[string]any {
	t.Helper()
	var recs []map[string]any
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	return recs
}

func names(recs []map[string]any, key string) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i], _ = r[key].(string)
	}
	return out
}

func parseRuleNames(t *testing.T, path string) []string {
	t.Helper()
	set, err := rules.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile(%s) error = %v", path, err)
	}
	var out []string
	for _, r := range set.Rules {
		out = append(out, r.Name)
	}
	return out
}

func TestRulesReadCommands(t *testing.T) {
	w := newWorkspace(t)

	tests := []struct {
		args []string
		key  string
		want []string
	}{
		{[]string{"rules", "list"}, "name", []string{"Coffee", "Big", "Never"}},
		{[]string{"rules", "search", "coff"}, "name", []string{"Coffee"}},
		{[]string{"rules", "unused"}, "name", []string{"Never"}},
		{[]string{"rules", "counts"}, "rule", []string{"Coffee", "Big", "Never"}},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := w.tally(t, append(tt.args, "-o", "json")...)
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got := names(decodeRecords(t, out), tt.key); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRulesCounts(t *testing.T) {
	w := newWorkspace(t)
	out, err := w.tally(t, "rules", "counts", "-o", "json")
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	want := map[string]float64{"Coffee": 1, "Big": 1, "Never": 0}
	for _, rec := range decodeRecords(t, out) {
		name := rec["rule"].(string)
		if rec["matches"] != want[name] {
			t.Errorf("%s matches = %v, want %v", name, rec["matches"], want[name])
		}
	}
}

func TestRulesAddUpdateDelete(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.tally(t, "rules", "add", "--name", "Tea", "--match", `contains("TEA")`,
		"--category", "Food", "--tags", "Hot,hot")
	if err != nil {
		t.Fatalf("add error = %v", err)
	}
	if !strings.Contains(out, `Rule "Tea" added`) {
		t.Errorf("add output = %q", out)
	}
	if got, want := parseRuleNames(t, w.rules), []string{"Coffee", "Big", "Never", "Tea"}; !slices.Equal(got, want) {
		t.Errorf("rule file rules = %v, want %v", got, want)
	}
	data, err := os.ReadFile(w.rules)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "budget = 100") {
		t.Errorf("rule file lost its variables:\n%s", data)
	}

	if _, err := w.tally(t, "rules", "update", "tea", "--add-tag", "drink", "--priority", "70"); err != nil {
		t.Fatalf("update error = %v", err)
	}
	set, err := rules.ParseFile(w.rules)
	if err != nil {
		t.Fatal(err)
	}
	tea, ok := set.Rule("Tea")
	if !ok {
		t.Fatal("Tea missing after update")
	}
	if tea.Priority != 70 || !slices.Equal(tea.TagTexts(), []string{"drink", "hot"}) {
		t.Errorf("Tea = priority %d tags %v, want 70 [drink hot]", tea.Priority, tea.TagTexts())
	}

	if _, err := w.tally(t, "rules", "delete", "--match", `contains("ZZZNOPE")`); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if got, want := parseRuleNames(t, w.rules), []string{"Coffee", "Big", "Tea"}; !slices.Equal(got, want) {
		t.Errorf("after delete rules = %v, want %v", got, want)
	}

	_, err = w.tally(t, "rules", "delete", "Missing")
	if !errors.Is(err, cache.ErrRuleNotFound) {
		t.Errorf("delete Missing err = %v, want ErrRuleNotFound", err)
	}
}

func TestRulesAddInvalid(t *testing.T) {
	w := newWorkspace(t)
	before, _ := os.ReadFile(w.rules)

	_, err := w.tally(t, "rules", "add", "--name", "Bad", "--match", `contains("X"`, "--category", "Misc")
	if got := cli.ExitCode(err); got != 2 {
		t.Errorf("ExitCode = %d, want 2 (err = %v)", got, err)
	}

	after, _ := os.ReadFile(w.rules)
	if string(before) != string(after) {
		t.Error("rule file changed after a rejected rule")
	}
}

func TestRulesAddNoWrite(t *testing.T) {
	w := newWorkspace(t)
	before, _ := os.ReadFile(w.rules)

	if _, err := w.tally(t, "rules", "add", "--no-write", "--name", "Tea", "--match", `contains("TEA")`, "--category", "Food"); err != nil {
		t.Fatalf("add error = %v", err)
	}
	after, _ := os.ReadFile(w.rules)
	if string(before) != string(after) {
		t.Error("rule file changed with --no-write")
	}
}

func TestRulesDeleteNeedsTarget(t *testing.T) {
	w := newWorkspace(t)
	if _, err := w.tally(t, "rules", "delete"); cli.ExitCode(err) != 2 {
		t.Errorf("err = %v, want exit status 2", err)
	}
}
