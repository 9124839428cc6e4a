package engine

import (
	"slices"

	"tally-hq/tally/pkg/rules"
)

// TagSource records the first rule that contributed a tag.
type TagSource struct {
	Rule    string `json:"rule"`
	Pattern string `json:"pattern"`
}

// MatchResult is the outcome of matching one transaction.
//
// Merchant, category and subcategory may come from different rules in
// MostSpecific mode; MerchantRule, MatchedRule and SubcategoryRule identify
// the winner of each.
type MatchResult struct {
	Matched     bool
	Merchant    string
	Category    string
	Subcategory string

	// Tags holds the resolved tags, lowercased, in the order they were
	// first contributed.
	Tags []string

	MatchedRule     *rules.Rule // Winning category rule
	MerchantRule    *rules.Rule
	SubcategoryRule *rules.Rule

	MatchingRules []*rules.Rule // Every rule whose match expression was true
	TagRules      []*rules.Rule // Rules that contributed tags

	// ExtraFields holds the winning rule's field directives. Directives
	// that failed to evaluate are absent.
	ExtraFields map[string]any

	// TagSources maps each tag to its first contributor.
	TagSources map[string]TagSource

	// TransformedDescription is the winning rule's transform result, or ""
	// when it has none or it failed.
	TransformedDescription string
}

func newMatchResult() *MatchResult {
	return &MatchResult{
		ExtraFields: make(map[string]any),
		TagSources:  make(map[string]TagSource),
	}
}

// HasTag reports whether the result carries tag.
func (r *MatchResult) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// addTags adds the tags a rule resolved, recording provenance for new ones.
func (r *MatchResult) addTags(rule *rules.Rule, tags []string) {
	for _, tag := range tags {
		if _, ok := r.TagSources[tag]; ok {
			continue
		}
		r.Tags = append(r.Tags, tag)
		r.TagSources[tag] = TagSource{Rule: rule.Name, Pattern: rule.MatchSource()}
	}
	r.TagRules = append(r.TagRules, rule)
}

// RuleName returns the name of the winning category rule, or "".
func (r *MatchResult) RuleName() string {
	if r.MatchedRule == nil {
		return ""
	}
	return r.MatchedRule.Name
}
