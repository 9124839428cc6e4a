package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrNoRuleSet indicates an engine was created without rules.
	ErrNoRuleSet = errors.New("rule set cannot be nil")
)

// ConfigError describes an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid engine config %s: %s", e.Field, e.Message)
}

// Is makes every ConfigError match ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Stage names the part of a rule whose evaluation failed.
type Stage string

const (
	StageVariable  Stage = "variable"
	StageLet       Stage = "let"
	StageMatch     Stage = "match"
	StageTag       Stage = "tag"
	StageField     Stage = "field"
	StageTransform Stage = "transform"
)

// EvaluationError records an evaluation failure inside a rule. These never
// escape Match; they are logged and reported to the Observer.
type EvaluationError struct {
	Rule  string // Rule name, empty for file-level variables
	Stage Stage
	Name  string // Binding, field or tag that failed, if any
	Cause error
}

func (e *EvaluationError) Error() string {
	target := string(e.Stage)
	if e.Name != "" {
		target += " " + e.Name
	}
	if e.Rule == "" {
		return fmt.Sprintf("%s: %v", target, e.Cause)
	}
	return fmt.Sprintf("rule %q %s: %v", e.Rule, target, e.Cause)
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}
