package main

import (
	"testing"

	"tally-hq/tally/pkg/cli"
)

func doctorStatuses(t *testing.T, out string) map[string]string {
	t.Helper()
	got := make(map[string]string)
	for _, rec := range decodeRecords(t, out) {
		got[rec["check"].(string)] = rec["status"].(string)
	}
	return got
}

func TestDoctor(t *testing.T) {
	w := newWorkspace(t)

	// The cache has never been built.
	out, err := w.tally(t, "doctor", "-o", "json")
	if got := cli.ExitCode(err); got != 1 {
		t.Fatalf("ExitCode = %d, want 1 (err = %v)", got, err)
	}
	got := doctorStatuses(t, out)
	want := map[string]string{
		"config":       "ok",
		"rules":        "ok",
		"transactions": "ok",
		"sources":      "skipped",
		"cache":        "failed",
		"metrics":      "skipped",
	}
	for name, status := range want {
		if got[name] != status {
			t.Errorf("%s = %q, want %q", name, got[name], status)
		}
	}

	if _, err := w.tally(t, "cache", "rebuild"); err != nil {
		t.Fatalf("rebuild error = %v", err)
	}
	out, err = w.tally(t, "doctor", "-o", "json")
	if err != nil {
		t.Fatalf("doctor after rebuild error = %v\n%s", err, out)
	}
	if got := doctorStatuses(t, out); got["cache"] != "ok" {
		t.Errorf("cache = %q, want ok", got["cache"])
	}
}

func TestDoctorBrokenRules(t *testing.T) {
	w := newWorkspace(t)
	writeFile(t, w.rules, "[Bad]\nmatch: contains(\"X\"\ncategory: Misc\n")

	out, err := w.tally(t, "doctor", "-o", "json")
	if got := cli.ExitCode(err); got != 1 {
		t.Fatalf("ExitCode = %d, want 1 (err = %v)", got, err)
	}
	if got := doctorStatuses(t, out); got["rules"] != "failed" {
		t.Errorf("rules = %q, want failed", got["rules"])
	}
}
