package engine

import "time"

// Observer receives matching telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	// RecordMatch is called once per transaction with the winning category
	// rule, or "" when nothing categorized it.
	RecordMatch(matched bool, rule string, duration time.Duration)

	// RecordRuleHit is called for every rule whose match expression was true.
	RecordRuleHit(rule string)

	// RecordEvaluationError is called for every failed evaluation.
	RecordEvaluationError(rule string, stage string)
}

type nopObserver struct{}

func (nopObserver) RecordMatch(bool, string, time.Duration) {}
func (nopObserver) RecordRuleHit(string)                    {}
func (nopObserver) RecordEvaluationError(string, string)    {}
