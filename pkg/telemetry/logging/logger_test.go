package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tally-hq/tally/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"text", Config{Level: "debug", Format: "text"}, false},
		{"uppercase", Config{Level: "WARN", Format: "JSON"}, false},
		{"bad level", Config{Level: "trace"}, true},
		{"bad format", Config{Format: "xml"}, true},
		{"bad pattern", Config{Redact: true, RedactPatterns: []config.RedactPattern{{Name: "x", Pattern: "("}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Writer = &bytes.Buffer{}
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestLogger_JSONRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "json", Redact: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.With("component", "rules.engine").Warn("rule evaluation failed",
		"description", "ACH 123456789012 PAYROLL",
		"card", "4111-1111-1111-1111",
		"date", "2025-01-05",
		"api_token", "abcdef123",
		"error", errors.New("bad value for account 9999888877776666"),
		slog.Group("txn", "memo", "ref 1234 5678 9012 3456"),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}

	want := map[string]string{
		"component":   "rules.engine",
		"description": "ACH ********9012 PAYROLL",
		"card":        "****-****-****-1111",
		"date":        "2025-01-05",
		"api_token":   "abcd***",
		"error":       "bad value for account ************6666",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %q", k, rec[k], v)
		}
	}
	group, _ := rec["txn"].(map[string]any)
	if group["memo"] != "ref **** **** **** 3456" {
		t.Errorf("txn.memo = %v, want masked", group["memo"])
	}
}

func TestLogger_RedactionDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("raw", "description", "ACH 123456789012")
	if !strings.Contains(buf.String(), "123456789012") {
		t.Errorf("value redacted with redaction disabled: %s", buf.String())
	}
}

func TestLogger_ContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithCommand(context.Background(), "cache rebuild")
	ctx = WithRulesFile(ctx, "tally.rules")
	logger.InfoContext(ctx, "rebuilt")

	out := buf.String()
	if !strings.Contains(out, `command="cache rebuild"`) || !strings.Contains(out, "rules_file=tally.rules") {
		t.Errorf("context attributes missing: %s", out)
	}
}

func TestCustomRedactPatterns(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{
		Format: "text",
		Redact: true,
		Writer: &buf,
		RedactPatterns: []config.RedactPattern{
			{Name: "member", Pattern: `MEMBER#\w+`, Replacement: "MEMBER#***"},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("x", "description", "GYM MEMBER#A77 DUES")
	if !strings.Contains(buf.String(), "GYM MEMBER#*** DUES") {
		t.Errorf("custom pattern not applied: %s", buf.String())
	}
}

func TestOpenOutput(t *testing.T) {
	for _, name := range []string{"", "stderr", "stdout", "STDOUT"} {
		w, err := OpenOutput(name)
		if err != nil {
			t.Fatalf("OpenOutput(%q) error = %v", name, err)
		}
		if err := w.Close(); err != nil {
			t.Errorf("Close(%q) error = %v", name, err)
		}
	}

	path := filepath.Join(t.TempDir(), "tally.log")
	w, err := OpenOutput(path)
	if err != nil {
		t.Fatalf("OpenOutput(file) error = %v", err)
	}
	logger, _ := New(Config{Format: "text", Writer: w})
	logger.Info("to file")
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q", data)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Logging
	got := FromConfig(cfg)
	if got.Level != "info" || got.Format != "text" || !got.Redact {
		t.Errorf("FromConfig(defaults) = %+v", got)
	}

	off := false
	cfg.Redact = &off
	if FromConfig(cfg).Redact {
		t.Error("FromConfig() Redact = true, want false")
	}
}

func TestMaskDigits(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"123456789012", "********9012"},
		{"4111 1111 1111 1111", "**** **** **** 1111"},
		{"1234", "1234"},
		{"12", "12"},
	}
	for _, tt := range tests {
		if got := MaskDigits(tt.in); got != tt.want {
			t.Errorf("MaskDigits(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactor_RedactString(t *testing.T) {
	r, err := NewRedactor(nil)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in, want string
	}{
		{"NETFLIX.COM 866-579-7172", "NETFLIX.COM 866-579-7172"},
		{"ZELLE TO alice@example.com", "ZELLE TO a***@example.com"},
		{"acct 00012345678901234", "acct *************1234"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := r.RedactString(tt.in); got != tt.want {
			t.Errorf("RedactString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"Warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
