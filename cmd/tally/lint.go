package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tally-hq/tally/pkg/cli"
	"tally-hq/tally/pkg/engine"
	"tally-hq/tally/pkg/rules"
)

var lintFlags struct {
	strict bool
}

var lintCmd = &cobra.Command{
	Use:   "lint [rule-file...]",
	Short: "Validate rule files",
	Long: `Validate rule files for syntax and structural errors.

The lint command parses each rule file and compiles every expression:
  - Rule block structure and known properties
  - Expression syntax, with the failing column
  - Unknown functions, with a suggested spelling

It also warns about duplicate rule names and, in first_match mode, rules
whose match expression repeats an earlier rule's and so can never win.

Examples:
  # Lint the configured rule file
  tally lint

  # Lint specific files
  tally lint home.rules work.rules

  # Strict mode (warnings as errors)
  tally lint --strict

  # JSON output for CI
  tally lint -o json`,
	RunE: lintRules,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
}

// LintResult is the validation result for a single rule file.
type LintResult struct {
	File     string        `json:"file"`
	Valid    bool          `json:"valid"`
	Rules    int           `json:"rules"`
	Errors   []LintMessage `json:"errors,omitempty"`
	Warnings []LintMessage `json:"warnings,omitempty"`
}

// LintMessage is a single error or warning.
type LintMessage struct {
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Rule       string `json:"rule,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Type       string `json:"type,omitempty"`
}

func lintRules(cmd *cobra.Command, args []string) error {
	a := current
	files := args
	if len(files) == 0 {
		files = []string{a.config.Rules.Path}
	}

	mode, err := engine.ParseMatchMode(a.config.Rules.MatchMode)
	if err != nil {
		return err
	}

	results := make([]LintResult, 0, len(files))
	for _, file := range files {
		results = append(results, lintFile(a.parser(), file, mode))
	}

	if a.format == cli.FormatJSON {
		if err := a.print(results); err != nil {
			return err
		}
	} else {
		writeLintText(a.out, results)
	}

	errCount, warnCount := 0, 0
	for _, r := range results {
		errCount += len(r.Errors)
		warnCount += len(r.Warnings)
	}
	if errCount > 0 || (lintFlags.strict && warnCount > 0) {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func lintFile(p *rules.Parser, file string, mode engine.MatchMode) LintResult {
	result := LintResult{File: file, Valid: true}

	set, err := p.ParseFile(file)
	if err != nil {
		result.Valid = false
		msg := LintMessage{Message: err.Error()}
		var ruleErr *rules.Error
		if errors.As(err, &ruleErr) {
			msg = LintMessage{
				Line:       ruleErr.Location.Line,
				Column:     ruleErr.Location.Column,
				Rule:       ruleErr.Rule,
				Message:    ruleErr.Message,
				Suggestion: ruleErr.Suggestion,
				Type:       string(ruleErr.Type),
			}
			if ruleErr.Err != nil {
				msg.Message += ": " + ruleErr.Err.Error()
			}
		}
		result.Errors = append(result.Errors, msg)
		return result
	}

	result.Rules = len(set.Rules)
	result.Warnings = lintWarnings(set, mode)
	return result
}

func lintWarnings(set *rules.RuleSet, mode engine.MatchMode) []LintMessage {
	var warnings []LintMessage
	for _, ig := range set.Ignored {
		warnings = append(warnings, LintMessage{
			Line:    ig.Line,
			Message: fmt.Sprintf("content outside a rule is ignored: %s", ig.Text),
		})
	}
	names := make(map[string]*rules.Rule)
	matches := make(map[string]*rules.Rule)

	for _, r := range set.Rules {
		key := strings.ToLower(r.Name)
		if prev, ok := names[key]; ok {
			warnings = append(warnings, LintMessage{
				Line:    r.Line,
				Rule:    r.Name,
				Message: fmt.Sprintf("duplicate rule name, first defined on line %d", prev.Line),
			})
		} else {
			names[key] = r
		}

		if r.IsTagOnly() || mode != engine.FirstMatch {
			continue
		}
		src := r.MatchSource()
		if prev, ok := matches[src]; ok {
			warnings = append(warnings, LintMessage{
				Line:    r.Line,
				Rule:    r.Name,
				Message: fmt.Sprintf("match expression repeats rule %q (line %d); this rule never wins", prev.Name, prev.Line),
			})
			continue
		}
		matches[src] = r
	}
	return warnings
}

func writeLintText(w io.Writer, results []LintResult) {
	totalErrors, totalWarnings := 0, 0

	for _, result := range results {
		fmt.Fprintf(w, "Validating %s...\n", result.File)

		if result.Valid {
			fmt.Fprintf(w, "✓ %s parsed\n", cli.Plural(result.Rules, "rule", "rules"))
		}

		for _, e := range result.Errors {
			fmt.Fprintf(w, "✗ Error: %s%s", e.Message, position(e))
			if e.Type != "" {
				fmt.Fprintf(w, " [%s]", e.Type)
			}
			fmt.Fprintln(w)
			if e.Suggestion != "" {
				fmt.Fprintf(w, "  suggestion: %s\n", e.Suggestion)
			}
			totalErrors++
		}

		for _, warn := range result.Warnings {
			fmt.Fprintf(w, "⚠  Warning: %s: %s%s\n", warn.Rule, warn.Message, position(warn))
			totalWarnings++
		}

		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  %d error(s), %d warning(s)\n", totalErrors, totalWarnings)
	if lintFlags.strict && totalWarnings > 0 {
		fmt.Fprintln(w, "  Strict mode enabled: treating warnings as errors")
	}
}

func position(m LintMessage) string {
	switch {
	case m.Line > 0 && m.Column > 0:
		return fmt.Sprintf(" (line %d, col %d)", m.Line, m.Column)
	case m.Line > 0:
		return fmt.Sprintf(" (line %d)", m.Line)
	}
	return ""
}
