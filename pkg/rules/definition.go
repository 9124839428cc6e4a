package rules

import (
	"fmt"
	"slices"
	"strings"
)

// Assignment is a name = expression pair in source form.
type Assignment struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// Definition is the textual form of a rule: every property as a string,
// ready to be stored or written back out as a rule block.
type Definition struct {
	Name        string
	Match       string
	Category    string
	Subcategory string
	Merchant    string
	Tags        []string
	Priority    int
	Lets        []Assignment
	Fields      []Assignment
	Transform   string
}

// Definition returns the textual form of r.
func (r *Rule) Definition() *Definition {
	d := &Definition{
		Name:        r.Name,
		Match:       r.Match.Source,
		Category:    r.Category,
		Subcategory: r.Subcategory,
		Merchant:    r.Merchant,
		Tags:        r.TagTexts(),
		Priority:    r.Priority,
	}
	for _, b := range r.Lets {
		d.Lets = append(d.Lets, Assignment{Name: b.Name, Expr: b.Expr.Source})
	}
	for _, b := range r.Fields {
		d.Fields = append(d.Fields, Assignment{Name: b.Name, Expr: b.Expr.Source})
	}
	if r.Transform != nil {
		d.Transform = r.Transform.Source
	}
	return d
}

// Format renders d as a rule block. Defaults are omitted (priority 50,
// merchant equal to the name) and tags are sorted.
func (d *Definition) Format() string {
	lines := []string{"[" + d.Name + "]"}
	if d.Priority != DefaultPriority {
		lines = append(lines, fmt.Sprintf("priority: %d", d.Priority))
	}
	for _, l := range d.Lets {
		lines = append(lines, fmt.Sprintf("let: %s = %s", l.Name, l.Expr))
	}
	lines = append(lines, "match: "+d.Match)
	if d.Merchant != "" && d.Merchant != d.Name {
		lines = append(lines, "merchant: "+d.Merchant)
	}
	if d.Category != "" {
		lines = append(lines, "category: "+d.Category)
	}
	if d.Subcategory != "" {
		lines = append(lines, "subcategory: "+d.Subcategory)
	}
	for _, f := range d.Fields {
		lines = append(lines, fmt.Sprintf("field: %s = %s", f.Name, f.Expr))
	}
	if d.Transform != "" {
		lines = append(lines, "transform: "+d.Transform)
	}
	if len(d.Tags) > 0 {
		tags := slices.Clone(d.Tags)
		slices.Sort(tags)
		lines = append(lines, "tags: "+strings.Join(tags, ", "))
	}
	return strings.Join(lines, "\n")
}

// FormatFile renders a complete rule file from preamble lines and rule
// definitions, separated by blank lines.
func FormatFile(preamble []string, defs []*Definition) string {
	sections := make([]string, 0, len(defs)+1)
	if len(preamble) > 0 {
		sections = append(sections, strings.Join(preamble, "\n"))
	}
	for _, d := range defs {
		sections = append(sections, d.Format())
	}
	return strings.TrimRight(strings.Join(sections, "\n\n"), "\n") + "\n"
}
