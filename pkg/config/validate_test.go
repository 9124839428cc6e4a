package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*Config)
		wantFields []string
	}{
		{"defaults", func(*Config) {}, nil},
		{"empty rules path", func(c *Config) { c.Rules.Path = "" }, []string{"rules.path"}},
		{"zero max size", func(c *Config) { c.Rules.MaxFileSize = 0 }, []string{"rules.max_file_size"}},
		{"empty transaction path", func(c *Config) { c.Data.Transactions = []string{"a.json", " "} }, []string{"data.transactions[1]"}},
		{"empty source path", func(c *Config) { c.Data.Sources = map[string]string{"payroll": ""} }, []string{"data.sources.payroll"}},
		{"negative busy timeout", func(c *Config) { c.Cache.BusyTimeout = -1 }, []string{"cache.busy_timeout"}},
		{"bad level and format", func(c *Config) {
			c.Logging.Level = "trace"
			c.Logging.Format = "xml"
		}, []string{"logging.level", "logging.format"}},
		{"bad namespace", func(c *Config) { c.Metrics.Namespace = "my-app" }, []string{"metrics.namespace"}},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -1 }, []string{"watch.debounce"}},
		{"valid schedule", func(c *Config) { c.Watch.RebuildSchedule = "@hourly" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := Validate(cfg)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			verr, ok := err.(ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if len(verr.Errors) != len(tt.wantFields) {
				t.Fatalf("len(Errors) = %d, want %d: %v", len(verr.Errors), len(tt.wantFields), verr.Errors)
			}
			for i, field := range tt.wantFields {
				if verr.Errors[i].Field != field {
					t.Errorf("Errors[%d].Field = %q, want %q", i, verr.Errors[i].Field, field)
				}
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "rules.path", Message: "required"}}}
	if got := single.Error(); got != "configuration validation failed: rules.path: required" {
		t.Errorf("Error() = %q", got)
	}

	multi := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "x"},
		{Field: "b", Message: "y"},
	}}
	got := multi.Error()
	if !strings.Contains(got, "2 errors") || !strings.Contains(got, "  - b: y") {
		t.Errorf("Error() = %q", got)
	}
}
