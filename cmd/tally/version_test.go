package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	origVersion := Version
	Version = "0.1.0-test"
	defer func() { Version = origVersion }()

	resetFlags(rootCmd)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"version"}, &out, &out); err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out.String(), "Tally 0.1.0-test") {
		t.Errorf("output = %q", out.String())
	}
	if current != nil {
		t.Error("version ran setup")
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"version", "lint", "test", "match", "explain", "rules", "cache", "watch", "doctor", "completion"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestBadOutputFormat(t *testing.T) {
	w := newWorkspace(t)
	if _, err := w.tally(t, "rules", "list", "-o", "junit"); err == nil {
		t.Error("error = nil, want unknown format error")
	}
}
