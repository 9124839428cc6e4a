package rules

import (
	"strings"

	"tally-hq/tally/pkg/expr"
)

// DefaultPriority is the priority of a rule that does not set one.
const DefaultPriority = 50

// Binding is a named, compiled expression: a let-binding, a field
// directive, a file-level variable or a transform.
type Binding struct {
	Name string
	Expr *expr.Expression
	Line int
}

// Tag is a tag entry. Literal tags have a nil Expr; dynamic tags, written
// {expression}, carry the compiled expression.
type Tag struct {
	Text string // Tag as written, braces included for dynamic tags
	Expr *expr.Expression
}

// IsDynamic reports whether the tag is computed per transaction.
func (t Tag) IsDynamic() bool {
	return t.Expr != nil
}

// Rule is a parsed rule block. Rules are immutable after parsing.
type Rule struct {
	Name        string
	Match       *expr.Expression
	Category    string
	Subcategory string
	Merchant    string // Defaults to Name
	Tags        []Tag
	Priority    int
	Lets        []Binding // Evaluated in order before Match
	Fields      []Binding // Extra output fields, evaluated only for the winning rule
	Transform   *expr.Expression
	Line        int // Line of the [Name] header
}

// MatchSource returns the match expression as written.
func (r *Rule) MatchSource() string {
	return r.Match.Source
}

// IsTagOnly reports whether the rule contributes tags without a category.
func (r *Rule) IsTagOnly() bool {
	return r.Category == ""
}

// IsComplex reports whether the rule uses let-bindings or field directives.
func (r *Rule) IsComplex() bool {
	return len(r.Lets) > 0 || len(r.Fields) > 0
}

// TagTexts returns the tags as written.
func (r *Rule) TagTexts() []string {
	out := make([]string, len(r.Tags))
	for i, t := range r.Tags {
		out[i] = t.Text
	}
	return out
}

// RuleSet is the result of parsing a rule file.
type RuleSet struct {
	Rules      []*Rule
	Variables  []Binding // File-level variables, names lowercased
	Transforms []Binding // Top-level field.<name> transforms, in file order
	Ignored    []Ignored // Content outside any rule that was skipped
	File       string    // Source path, empty for in-memory text
}

// Ignored is a line before the first rule that is neither a comment nor an
// assignment. The parser skips it.
type Ignored struct {
	Line int
	Text string
}

// Rule returns the first rule with the given name, compared
// case-insensitively.
func (rs *RuleSet) Rule(name string) (*Rule, bool) {
	for _, r := range rs.Rules {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return nil, false
}

// CategorizationRules returns the rules that set a category.
func (rs *RuleSet) CategorizationRules() []*Rule {
	var out []*Rule
	for _, r := range rs.Rules {
		if !r.IsTagOnly() {
			out = append(out, r)
		}
	}
	return out
}

// TagOnlyRules returns the rules that only contribute tags.
func (rs *RuleSet) TagOnlyRules() []*Rule {
	var out []*Rule
	for _, r := range rs.Rules {
		if r.IsTagOnly() {
			out = append(out, r)
		}
	}
	return out
}

// Preamble returns the file-level lines that precede the first rule:
// variables first, then transforms.
func (rs *RuleSet) Preamble() []string {
	lines := make([]string, 0, len(rs.Variables)+len(rs.Transforms))
	for _, v := range rs.Variables {
		lines = append(lines, v.Name+" = "+v.Expr.Source)
	}
	for _, t := range rs.Transforms {
		lines = append(lines, t.Name+" = "+t.Expr.Source)
	}
	return lines
}
