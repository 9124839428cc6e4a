package config

import "time"

// Default values for configuration fields.
const (
	// Rules defaults
	DefaultRulesPath           = "tally.rules"
	DefaultMatchMode           = "first_match"
	DefaultMaxFileSize         = int64(10 * 1024 * 1024)
	DefaultLogEvaluationErrors = true

	// Cache defaults
	DefaultCacheEnabled     = true
	DefaultCacheDir         = ".tally"
	DefaultCacheDriver      = "sqlite"
	DefaultCacheBusyTimeout = 5 * time.Second

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultLogOutput = "stderr"
	DefaultLogRedact = true

	// Metrics defaults
	DefaultMetricsNamespace = "tally"

	// Watch defaults
	DefaultWatchDebounce = 100 * time.Millisecond
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Optional
// booleans left unset in the file take their default here.
func ApplyDefaults(cfg *Config) {
	// Rules defaults
	if cfg.Rules.Path == "" {
		cfg.Rules.Path = DefaultRulesPath
	}
	if cfg.Rules.MatchMode == "" {
		cfg.Rules.MatchMode = DefaultMatchMode
	}
	if cfg.Rules.MaxFileSize == 0 {
		cfg.Rules.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Rules.LogEvaluationErrors == nil {
		cfg.Rules.LogEvaluationErrors = boolPtr(DefaultLogEvaluationErrors)
	}

	// Cache defaults
	if cfg.Cache.Enabled == nil {
		cfg.Cache.Enabled = boolPtr(DefaultCacheEnabled)
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = DefaultCacheDir
	}
	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = DefaultCacheDriver
	}
	if cfg.Cache.BusyTimeout == 0 {
		cfg.Cache.BusyTimeout = DefaultCacheBusyTimeout
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = DefaultLogOutput
	}
	if cfg.Logging.Redact == nil {
		cfg.Logging.Redact = boolPtr(DefaultLogRedact)
	}

	// Metrics defaults
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Watch defaults
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
}

func boolPtr(b bool) *bool {
	return &b
}
