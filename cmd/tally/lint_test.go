package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"tally-hq/tally/pkg/cli"
	"tally-hq/tally/pkg/engine"
	"tally-hq/tally/pkg/rules"
)

func TestLintValidFile(t *testing.T) {
	w := newWorkspace(t)
	out, err := w.tally(t, "lint")
	if err != nil {
		t.Fatalf("lint error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 rules parsed") {
		t.Errorf("output missing rule count:\n%s", out)
	}
}

func TestLintInvalidFile(t *testing.T) {
	w := newWorkspace(t)
	bad := filepath.Join(w.dir, "bad.rules")
	writeFile(t, bad, "[Coffee]\nmatch: contains(\"COFFEE\")\ncategroy: Food\n")

	out, err := w.tally(t, "lint", bad)
	if got := cli.ExitCode(err); got != 1 {
		t.Fatalf("ExitCode = %d, want 1 (err = %v)", got, err)
	}
	if !strings.Contains(out, `did you mean "category"?`) {
		t.Errorf("output missing suggestion:\n%s", out)
	}
	if !strings.Contains(out, "line 3") {
		t.Errorf("output missing line:\n%s", out)
	}
}

func TestLintJSON(t *testing.T) {
	w := newWorkspace(t)
	missing := filepath.Join(w.dir, "missing.rules")

	out, err := w.tally(t, "lint", "-o", "json", w.rules, missing)
	if cli.ExitCode(err) != 1 {
		t.Fatalf("err = %v, want exit status 1", err)
	}
	var results []LintResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !results[0].Valid || results[0].Rules != 3 {
		t.Errorf("results[0] = %+v, want valid with 3 rules", results[0])
	}
	if results[1].Valid || len(results[1].Errors) != 1 {
		t.Errorf("results[1] = %+v, want one error", results[1])
	}
}

func TestLintWarnings(t *testing.T) {
	set, err := rules.Parse(`[A]
match: contains("X")
category: One

[a]
match: contains("Y")
category: Two

[B]
match: contains("X")
category: Three

[T]
match: contains("X")
tags: t
`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	warnings := lintWarnings(set, engine.FirstMatch)
	if len(warnings) != 2 {
		t.Fatalf("got %d warnings, want 2: %+v", len(warnings), warnings)
	}
	if warnings[0].Rule != "a" || !strings.Contains(warnings[0].Message, "duplicate rule name") {
		t.Errorf("warnings[0] = %+v, want duplicate name for a", warnings[0])
	}
	if warnings[1].Rule != "B" || !strings.Contains(warnings[1].Message, "never wins") {
		t.Errorf("warnings[1] = %+v, want shadowed B", warnings[1])
	}

	if got := lintWarnings(set, engine.MostSpecific); len(got) != 1 {
		t.Errorf("most_specific warnings = %d, want 1", len(got))
	}
}

func TestLintStrict(t *testing.T) {
	w := newWorkspace(t)
	dup := filepath.Join(w.dir, "dup.rules")
	writeFile(t, dup, "[A]\nmatch: contains(\"X\")\ncategory: One\n\n[A]\nmatch: contains(\"Y\")\ncategory: Two\n")

	if _, err := w.tally(t, "lint", dup); err != nil {
		t.Errorf("lint without --strict error = %v, want nil", err)
	}
	if _, err := w.tally(t, "lint", "--strict", dup); cli.ExitCode(err) != 1 {
		t.Errorf("lint --strict err = %v, want exit status 1", err)
	}
}

func TestLintIgnoredContent(t *testing.T) {
	set, err := rules.Parse("stray: line\n[A]\nmatch: contains(\"X\")\ncategory: One\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	warnings := lintWarnings(set, engine.FirstMatch)
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1: %+v", len(warnings), warnings)
	}
	if warnings[0].Line != 1 || !strings.Contains(warnings[0].Message, "outside a rule") {
		t.Errorf("warnings[0] = %+v, want ignored line 1", warnings[0])
	}
}
