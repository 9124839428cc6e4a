package engine

import "fmt"

// MatchMode selects how conflicting category rules are resolved.
type MatchMode string

const (
	// FirstMatch picks the first matching category rule in file order.
	// This is the default.
	FirstMatch MatchMode = "first_match"

	// MostSpecific resolves merchant, category and subcategory independently
	// by specificity.
	MostSpecific MatchMode = "most_specific"
)

// Config contains configuration for the matching engine.
type Config struct {
	// MatchMode selects conflict resolution.
	// Default: FirstMatch.
	MatchMode MatchMode

	// LogEvaluationErrors logs each failed let-binding, match, tag, field
	// or transform evaluation at WARN level.
	// Default: true.
	LogEvaluationErrors bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		MatchMode:           FirstMatch,
		LogEvaluationErrors: true,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.MatchMode {
	case FirstMatch, MostSpecific:
	default:
		return &ConfigError{
			Field:   "match_mode",
			Message: fmt.Sprintf("must be %q or %q, got %q", FirstMatch, MostSpecific, c.MatchMode),
		}
	}
	return nil
}

// WithMatchMode sets the match mode.
func (c *Config) WithMatchMode(mode MatchMode) *Config {
	c.MatchMode = mode
	return c
}

// WithLogEvaluationErrors enables or disables evaluation error logging.
func (c *Config) WithLogEvaluationErrors(enabled bool) *Config {
	c.LogEvaluationErrors = enabled
	return c
}

// ParseMatchMode converts a configuration string to a MatchMode.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case FirstMatch, MostSpecific:
		return MatchMode(s), nil
	case "":
		return FirstMatch, nil
	}
	return "", &ConfigError{Field: "match_mode", Message: fmt.Sprintf("unknown match mode %q", s)}
}
