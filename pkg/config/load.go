package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "TALLY_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention TALLY_SECTION_FIELD (e.g., TALLY_RULES_MATCH_MODE).
// Environment variables always take precedence over file-based configuration.
//
// An empty path loads the defaults instead of a file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadOptional loads path if it exists and the defaults otherwise. Any
// other read or parse failure is returned.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return LoadConfigWithEnvOverrides("")
	}
	return LoadConfigWithEnvOverrides(path)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Unparseable values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Rules overrides
	if val := env("RULES_PATH"); val != "" {
		cfg.Rules.Path = val
	}
	if val := env("RULES_MATCH_MODE"); val != "" {
		cfg.Rules.MatchMode = val
	}
	if val := env("RULES_MAX_FILE_SIZE"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Rules.MaxFileSize = i
		}
	}
	if val := env("RULES_LOG_EVALUATION_ERRORS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Rules.LogEvaluationErrors = boolPtr(b)
		}
	}

	// Data overrides
	if val := env("DATA_TRANSACTIONS"); val != "" {
		cfg.Data.Transactions = splitList(val)
	}
	if val := env("DATA_SOURCES_FILE"); val != "" {
		cfg.Data.SourcesFile = val
	}

	// Cache overrides
	if val := env("CACHE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Cache.Enabled = boolPtr(b)
		}
	}
	if val := env("CACHE_DIR"); val != "" {
		cfg.Cache.Dir = val
	}
	if val := env("CACHE_DRIVER"); val != "" {
		cfg.Cache.Driver = val
	}
	if val := env("CACHE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Cache.BusyTimeout = d
		}
	}

	// Logging overrides
	if val := env("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}
	if val := env("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = strings.ToLower(val)
	}
	if val := env("LOG_OUTPUT"); val != "" {
		cfg.Logging.Output = val
	}
	if val := env("LOG_REDACT"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Logging.Redact = boolPtr(b)
		}
	}

	// Metrics overrides
	if val := env("METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if val := env("METRICS_TEXTFILE_PATH"); val != "" {
		cfg.Metrics.TextfilePath = val
	}

	// Watch overrides
	if val := env("WATCH_DEBOUNCE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Watch.Debounce = d
		}
	}
	if val := env("WATCH_REBUILD_SCHEDULE"); val != "" {
		cfg.Watch.RebuildSchedule = val
	}
}

func env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
