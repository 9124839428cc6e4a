package config

import "time"

// Config is the root configuration structure for tally.
type Config struct {
	// Rules locates the rule file and controls how rules are matched.
	Rules RulesConfig `yaml:"rules"`

	// Data lists the transaction files and supplemental data sources
	// used by match, explain and cache rebuilds.
	Data DataConfig `yaml:"data"`

	// Cache configures the SQLite rule cache.
	Cache CacheConfig `yaml:"cache"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics export.
	Metrics MetricsConfig `yaml:"metrics"`

	// Watch configures watch mode.
	Watch WatchConfig `yaml:"watch"`
}

// RulesConfig contains rule file and matching configuration.
type RulesConfig struct {
	// Path is the rule file.
	// Default: "tally.rules"
	Path string `yaml:"path"`

	// MatchMode selects how conflicts between matching rules are
	// resolved: "first_match" or "most_specific".
	// Default: "first_match"
	MatchMode string `yaml:"match_mode"`

	// MaxFileSize is the largest rule file accepted, in bytes.
	// Default: 10485760 (10MB)
	MaxFileSize int64 `yaml:"max_file_size"`

	// LogEvaluationErrors controls whether per-rule evaluation failures
	// are logged at WARN.
	// Default: true
	LogEvaluationErrors *bool `yaml:"log_evaluation_errors"`
}

// DataConfig contains transaction and data source locations.
type DataConfig struct {
	// Transactions lists JSON or JSON Lines transaction files.
	Transactions []string `yaml:"transactions"`

	// SourcesFile is a JSON object mapping source names to rows.
	SourcesFile string `yaml:"sources_file"`

	// Sources maps a source name to a JSON array file of rows. Entries
	// here replace same-named sources from SourcesFile.
	Sources map[string]string `yaml:"sources"`
}

// Paths returns every data file, for hashing.
func (d *DataConfig) Paths() []string {
	paths := append([]string(nil), d.Transactions...)
	if d.SourcesFile != "" {
		paths = append(paths, d.SourcesFile)
	}
	for _, p := range d.Sources {
		paths = append(paths, p)
	}
	return paths
}

// CacheConfig contains rule cache configuration.
type CacheConfig struct {
	// Enabled controls whether commands read and maintain the cache.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Dir is the directory holding the cache database.
	// Default: ".tally"
	Dir string `yaml:"dir"`

	// Driver selects the SQLite driver: "sqlite" (pure Go) or
	// "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is how long to wait for database locks.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// IsEnabled reports whether the cache is enabled.
func (c *CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json" or "text".
	// Default: "text"
	Format string `yaml:"format"`

	// Output is "stderr", "stdout" or a file path.
	// Default: "stderr"
	Output string `yaml:"output"`

	// AddSource includes the source file and line in each record.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// Redact masks account and card numbers in log attributes.
	// Default: true
	Redact *bool `yaml:"redact"`

	// RedactPatterns adds custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern is a custom log redaction rule.
type RedactPattern struct {
	// Name identifies the pattern.
	Name string `yaml:"name"`

	// Pattern is a regular expression matched against string attributes.
	Pattern string `yaml:"pattern"`

	// Replacement replaces each match. It may reference groups as $1.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// TextfilePath is where metrics are written in Prometheus text format
	// when a command finishes, for the node exporter textfile collector.
	TextfilePath string `yaml:"textfile_path"`

	// Namespace prefixes every metric name.
	// Default: "tally"
	Namespace string `yaml:"namespace"`
}

// WatchConfig contains watch mode configuration.
type WatchConfig struct {
	// Debounce is how long file events are coalesced before a reload.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// RebuildSchedule is a cron expression for periodic cache rebuilds
	// while watching. Empty disables periodic rebuilds.
	// Default: "" (disabled)
	RebuildSchedule string `yaml:"rebuild_schedule"`
}
