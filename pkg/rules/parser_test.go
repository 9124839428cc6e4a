package rules

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleRules = `# Sample rules
is_large = amount > 500
field.description = regex_replace(field.description, "^APLPAY\s+", "")

[Netflix]
match: contains("NETFLIX")  # streaming
category: Subscriptions
subcategory: Streaming
tags: entertainment, recurring

[Amazon Book]
priority: 70
let: orders = [r for r in amazon_orders if r.amount == amount]
let: first = next((r.item for r in orders), "")
match: len(orders) > 0
merchant: Amazon
category: Shopping
subcategory: Books
field: item = first
transform: regex_replace(description, "AMZN", "Amazon")
tags: static_tag, {split(field.cardholder, " ", 0)}, another_tag

[Large]
match: is_large
tags: large
`

func TestParseSample(t *testing.T) {
	rs, err := Parse(sampleRules)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(rs.Rules) != 3 {
		t.Fatalf("len(Rules) = %d, want 3", len(rs.Rules))
	}
	if len(rs.Variables) != 1 || rs.Variables[0].Name != "is_large" {
		t.Errorf("Variables = %+v, want [is_large]", rs.Variables)
	}
	if len(rs.Transforms) != 1 || rs.Transforms[0].Name != "field.description" {
		t.Errorf("Transforms = %+v, want [field.description]", rs.Transforms)
	}

	netflix := rs.Rules[0]
	if netflix.Merchant != "Netflix" {
		t.Errorf("Merchant = %q, want default %q", netflix.Merchant, "Netflix")
	}
	if netflix.Priority != DefaultPriority {
		t.Errorf("Priority = %d, want %d", netflix.Priority, DefaultPriority)
	}
	if netflix.Line != 5 {
		t.Errorf("Line = %d, want 5", netflix.Line)
	}
	if got := netflix.MatchSource(); got != `contains("NETFLIX")  # streaming` {
		t.Errorf("MatchSource() = %q", got)
	}

	amazon := rs.Rules[1]
	if amazon.Priority != 70 {
		t.Errorf("Priority = %d, want 70", amazon.Priority)
	}
	if amazon.Merchant != "Amazon" {
		t.Errorf("Merchant = %q, want Amazon", amazon.Merchant)
	}
	if len(amazon.Lets) != 2 || amazon.Lets[0].Name != "orders" || amazon.Lets[1].Name != "first" {
		t.Errorf("Lets = %+v, want [orders first]", amazon.Lets)
	}
	if len(amazon.Fields) != 1 || amazon.Fields[0].Name != "item" {
		t.Errorf("Fields = %+v, want [item]", amazon.Fields)
	}
	if amazon.Transform == nil {
		t.Error("Transform = nil, want compiled expression")
	}
	if !amazon.IsComplex() {
		t.Error("IsComplex() = false, want true")
	}

	wantTags := []string{"static_tag", `{split(field.cardholder, " ", 0)}`, "another_tag"}
	if got := amazon.TagTexts(); !reflect.DeepEqual(got, wantTags) {
		t.Errorf("TagTexts() = %q, want %q", got, wantTags)
	}
	if amazon.Tags[0].IsDynamic() || !amazon.Tags[1].IsDynamic() {
		t.Error("only the middle tag should be dynamic")
	}

	large := rs.Rules[2]
	if !large.IsTagOnly() {
		t.Error("IsTagOnly() = false, want true")
	}
	if got := len(rs.TagOnlyRules()); got != 1 {
		t.Errorf("len(TagOnlyRules()) = %d, want 1", got)
	}
	if got := len(rs.CategorizationRules()); got != 2 {
		t.Errorf("len(CategorizationRules()) = %d, want 2", got)
	}
}

func TestParseIsIdempotent(t *testing.T) {
	a, err := Parse(sampleRules)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	b, err := Parse(sampleRules)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(a.Rules) != len(b.Rules) {
		t.Fatalf("rule counts differ: %d vs %d", len(a.Rules), len(b.Rules))
	}
	for i := range a.Rules {
		if !reflect.DeepEqual(a.Rules[i].Definition(), b.Rules[i].Definition()) {
			t.Errorf("rule %d differs: %+v vs %+v", i, a.Rules[i].Definition(), b.Rules[i].Definition())
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		line     int
		contains string
	}{
		{
			name:     "empty name",
			text:     "[ ]\nmatch: true\ncategory: X",
			line:     1,
			contains: "empty rule name",
		},
		{
			name:     "unknown property",
			text:     "[A]\nmatch: true\ncatgory: X",
			line:     3,
			contains: `unknown property "catgory"`,
		},
		{
			name:     "unexpected content",
			text:     "[A]\nmatch: true\njust some words\ncategory: X",
			line:     3,
			contains: "unexpected content in rule",
		},
		{
			name:     "missing match",
			text:     "# header\n\n[A]\ncategory: X",
			line:     3,
			contains: "missing 'match:'",
		},
		{
			name:     "no category or tags",
			text:     "[A]\nmatch: true\nsubcategory: Y",
			line:     1,
			contains: "category or tags",
		},
		{
			name:     "invalid let",
			text:     "[A]\nlet: = 5\nmatch: true\ncategory: X",
			line:     2,
			contains: "invalid let syntax",
		},
		{
			name:     "invalid field",
			text:     "[A]\nmatch: true\ncategory: X\nfield: 9x = 1",
			line:     4,
			contains: "invalid field syntax",
		},
		{
			name:     "bad match expression",
			text:     "[A]\nmatch: contains(\"x\" and\ncategory: X",
			line:     2,
			contains: "invalid match expression",
		},
		{
			name:     "bad let expression",
			text:     "[A]\nlet: x = (1 +\nmatch: x\ncategory: X",
			line:     2,
			contains: "invalid let expression",
		},
		{
			name:     "bad dynamic tag",
			text:     "[A]\nmatch: true\ntags: ok, {split(}",
			line:     3,
			contains: "invalid tag expression",
		},
		{
			name:     "unknown function",
			text:     "[A]\nmatch: contians(\"x\")\ncategory: X",
			line:     2,
			contains: "did you mean contains()",
		},
		{
			name:     "bad priority",
			text:     "[A]\npriority: high\nmatch: true\ncategory: X",
			line:     2,
			contains: "invalid priority",
		},
		{
			name:     "bad variable",
			text:     "total = amount +\n[A]\nmatch: true\ncategory: X",
			line:     1,
			contains: "invalid expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := Parse(tt.text)
			if err == nil {
				t.Fatalf("Parse() = %d rules, want error", len(rs.Rules))
			}
			var ruleErr *Error
			if !errors.As(err, &ruleErr) {
				t.Fatalf("error type = %T, want *Error", err)
			}
			if ruleErr.Line() != tt.line {
				t.Errorf("Line() = %d, want %d (%v)", ruleErr.Line(), tt.line, err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Error() = %q, want it to contain %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestStrayTopLevelContent(t *testing.T) {
	rs, err := Parse("hello world\nlimit = 100\nstray: line\n[A]\nmatch: amount > limit\ncategory: X\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(rs.Rules) != 1 || rs.Rules[0].Name != "A" {
		t.Fatalf("Rules = %+v, want [A]", rs.Rules)
	}
	if len(rs.Variables) != 1 || rs.Variables[0].Name != "limit" {
		t.Errorf("Variables = %+v, want [limit]", rs.Variables)
	}
	want := []Ignored{{Line: 1, Text: "hello world"}, {Line: 3, Text: "stray: line"}}
	if !reflect.DeepEqual(rs.Ignored, want) {
		t.Errorf("Ignored = %+v, want %+v", rs.Ignored, want)
	}
}

func TestUnknownPropertySuggestion(t *testing.T) {
	_, err := Parse("[A]\nmatch: true\ncatgory: X")
	var ruleErr *Error
	if !errors.As(err, &ruleErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if ruleErr.Suggestion != `did you mean "category"?` {
		t.Errorf("Suggestion = %q", ruleErr.Suggestion)
	}
	if ruleErr.Rule != "A" {
		t.Errorf("Rule = %q, want A", ruleErr.Rule)
	}
}

func TestSplitTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a, b, c", []string{"a", "b", "c"}},
		{"a,,b, ", []string{"a", "b"}},
		{`static_tag, {split(field.cardholder, " ", 0)}, another_tag`, []string{"static_tag", `{split(field.cardholder, " ", 0)}`, "another_tag"}},
		{`{split(x, ",", 0)}`, []string{`{split(x, ",", 0)}`}},
		{"kid's, other", []string{"kid's", "other"}},
	}
	for _, tt := range tests {
		if got := splitTags(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merchants.rules")
	if err := os.WriteFile(path, []byte("[A]\nmatch: true\ncategory: X\n\n[B]\nmatch: nope(\ncategory: Y\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := ParseFile(path)
	if err == nil {
		t.Fatal("ParseFile() expected error")
	}
	if !strings.HasPrefix(err.Error(), path+":6:") {
		t.Errorf("Error() = %q, want prefix %q", err.Error(), path+":6:")
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.rules")); err == nil {
		t.Error("ParseFile() on missing file expected error")
	}

	if _, err := NewParser().WithMaxFileSize(4).ParseFile(path); err == nil {
		t.Error("ParseFile() over size limit expected error")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	rs, err := Parse(sampleRules)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	defs := make([]*Definition, len(rs.Rules))
	for i, r := range rs.Rules {
		defs[i] = r.Definition()
	}

	text := FormatFile(rs.Preamble(), defs)
	again, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(FormatFile()) error = %v\n%s", err, text)
	}
	if len(again.Rules) != len(rs.Rules) {
		t.Fatalf("round trip rule count = %d, want %d", len(again.Rules), len(rs.Rules))
	}
	if !reflect.DeepEqual(again.Preamble(), rs.Preamble()) {
		t.Errorf("Preamble() = %q, want %q", again.Preamble(), rs.Preamble())
	}
	for i := range rs.Rules {
		want := rs.Rules[i].Definition()
		got := again.Rules[i].Definition()
		if got.Match != want.Match || got.Category != want.Category || got.Priority != want.Priority ||
			got.Merchant != want.Merchant || !reflect.DeepEqual(got.Lets, want.Lets) || got.Transform != want.Transform {
			t.Errorf("rule %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestDefinitionFormat(t *testing.T) {
	d := &Definition{
		Name:     "Coffee",
		Match:    `contains("STARBUCKS")`,
		Category: "Food",
		Merchant: "Coffee",
		Priority: 60,
		Tags:     []string{"work", "caffeine"},
	}
	want := "[Coffee]\npriority: 60\nmatch: contains(\"STARBUCKS\")\ncategory: Food\ntags: caffeine, work"
	if got := d.Format(); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}
