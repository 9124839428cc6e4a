package engine

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"tally-hq/tally/pkg/rules"
)

// Specificity ranks matching rules in MostSpecific mode. It is computed from
// the text of the match expression, not from its syntax tree: a pattern
// function nested inside another counts twice, and a field keyword counts
// once however often it appears.
type Specificity struct {
	Priority      int
	Patterns      int // Pattern function calls
	Fields        int // Distinct transaction fields referenced
	LiteralLength int // Total length of quoted literals
}

var (
	patternFuncs  = []string{"contains(", "regex(", "normalized(", "startswith(", "fuzzy(", "anyof("}
	fieldKeywords = []string{"amount", "date", "month", "year", "day", "weekday", "source", "field."}

	doubleQuoted = regexp.MustCompile(`"([^"]*)"`)
	singleQuoted = regexp.MustCompile(`'([^']*)'`)
)

// ComputeSpecificity returns the specificity of a rule.
func ComputeSpecificity(r *rules.Rule) Specificity {
	return computeSpecificity(r.Priority, r.MatchSource())
}

func computeSpecificity(priority int, match string) Specificity {
	lower := strings.ToLower(match)

	s := Specificity{Priority: priority}
	for _, f := range patternFuncs {
		s.Patterns += strings.Count(lower, f)
	}
	for _, kw := range fieldKeywords {
		if strings.Contains(lower, kw) {
			s.Fields++
		}
	}
	for _, re := range []*regexp.Regexp{doubleQuoted, singleQuoted} {
		for _, m := range re.FindAllStringSubmatch(match, -1) {
			s.LiteralLength += utf8.RuneCountInString(m[1])
		}
	}
	return s
}

// Compare orders specificities lexicographically. It returns a negative
// number when s is less specific than o, zero when equal and a positive
// number when s is more specific.
func (s Specificity) Compare(o Specificity) int {
	switch {
	case s.Priority != o.Priority:
		return s.Priority - o.Priority
	case s.Patterns != o.Patterns:
		return s.Patterns - o.Patterns
	case s.Fields != o.Fields:
		return s.Fields - o.Fields
	}
	return s.LiteralLength - o.LiteralLength
}

func (s Specificity) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s.Priority, s.Patterns, s.Fields, s.LiteralLength)
}
