package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tally-hq/tally/pkg/expr/eval"
	"tally-hq/tally/pkg/rules"
	"tally-hq/tally/pkg/txn"
)

// Engine matches transactions against a rule set.
type Engine struct {
	// set is the parsed rule file
	set *rules.RuleSet

	// specificity holds the precomputed specificity of each rule, by index
	specificity []Specificity

	// config contains engine configuration
	config *Config

	// observer receives telemetry
	observer Observer

	// logger for structured logging
	logger *slog.Logger
}

// New creates an engine for a parsed rule set. A nil config uses
// DefaultConfig and a nil logger uses slog.Default.
func New(set *rules.RuleSet, config *Config, logger *slog.Logger) (*Engine, error) {
	if set == nil {
		return nil, ErrNoRuleSet
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	specs := make([]Specificity, len(set.Rules))
	for i, r := range set.Rules {
		specs[i] = ComputeSpecificity(r)
	}

	return &Engine{
		set:         set,
		specificity: specs,
		config:      config,
		observer:    nopObserver{},
		logger:      logger.With("component", "rules.engine"),
	}, nil
}

// Load parses a rule file and creates an engine for it.
func Load(path string, config *Config, logger *slog.Logger) (*Engine, error) {
	set, err := rules.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return New(set, config, logger)
}

// WithObserver returns a copy of the engine that reports to o.
func (e *Engine) WithObserver(o Observer) *Engine {
	c := *e
	if o == nil {
		o = nopObserver{}
	}
	c.observer = o
	return &c
}

// Rules returns the rules in file order.
func (e *Engine) Rules() []*rules.Rule {
	return e.set.Rules
}

// RuleSet returns the parsed rule file.
func (e *Engine) RuleSet() *rules.RuleSet {
	return e.set
}

// Mode returns the configured match mode.
func (e *Engine) Mode() MatchMode {
	return e.config.MatchMode
}

// Specificity returns the specificity of the i-th rule.
func (e *Engine) Specificity(i int) Specificity {
	return e.specificity[i]
}

// candidate is a rule whose match expression was true, with the scope it
// matched in.
type candidate struct {
	rule  *rules.Rule
	spec  Specificity
	scope map[string]any
}

// run holds the per-transaction state of a match.
type run struct {
	e       *Engine
	txn     *txn.Transaction
	sources txn.DataSources
	errs    []*EvaluationError
}

// Match matches one transaction. Evaluation failures never escape: they are
// logged, reported to the observer and treated as contributing nothing.
func (e *Engine) Match(t *txn.Transaction, sources txn.DataSources) *MatchResult {
	res, _ := e.match(t, sources)
	return res
}

// MatchAll matches every transaction against the same data sources.
func (e *Engine) MatchAll(ts []*txn.Transaction, sources txn.DataSources) []*MatchResult {
	out := make([]*MatchResult, len(ts))
	for i, t := range ts {
		out[i] = e.Match(t, sources)
	}
	return out
}

func (e *Engine) match(t *txn.Transaction, sources txn.DataSources) (*MatchResult, *run) {
	start := time.Now()
	r := &run{e: e, txn: t, sources: sources}
	res := newMatchResult()

	globals := r.variables()

	var matching []candidate
	first := -1
	for i, rule := range e.set.Rules {
		scope := globals
		if len(rule.Lets) > 0 {
			scope = r.lets(rule, globals)
		}
		ok, err := rule.Match.EvalBool(r.env(scope))
		if err != nil {
			r.fail(rule.Name, StageMatch, "", err)
			continue
		}
		if !ok {
			continue
		}

		c := candidate{rule: rule, spec: e.specificity[i], scope: scope}
		matching = append(matching, c)
		e.observer.RecordRuleHit(rule.Name)

		if rule.IsTagOnly() {
			res.addTags(rule, r.tags(rule, scope))
		} else if first < 0 {
			first = len(matching) - 1
		}
	}

	res.MatchingRules = make([]*rules.Rule, len(matching))
	for i, c := range matching {
		res.MatchingRules[i] = c.rule
	}

	switch e.config.MatchMode {
	case MostSpecific:
		if w := best(matching, func(x *rules.Rule) bool { return x.Merchant != "" }); w != nil {
			res.Merchant = w.rule.Merchant
			res.MerchantRule = w.rule
		}
		if w := best(matching, func(x *rules.Rule) bool { return !x.IsTagOnly() }); w != nil {
			res.Matched = true
			res.Category = w.rule.Category
			res.MatchedRule = w.rule
			r.finish(res, *w)
		}
		if w := best(matching, func(x *rules.Rule) bool { return x.Subcategory != "" }); w != nil {
			res.Subcategory = w.rule.Subcategory
			res.SubcategoryRule = w.rule
		}
	default:
		if first >= 0 {
			w := matching[first]
			res.Matched = true
			res.Merchant = w.rule.Merchant
			res.MerchantRule = w.rule
			res.Category = w.rule.Category
			res.MatchedRule = w.rule
			if w.rule.Subcategory != "" {
				res.Subcategory = w.rule.Subcategory
				res.SubcategoryRule = w.rule
			}
			r.finish(res, w)
		}
	}

	e.observer.RecordMatch(res.Matched, res.RuleName(), time.Since(start))
	return res, r
}

// best returns the most specific candidate accepted by keep. Ties go to the
// earliest candidate.
func best(cs []candidate, keep func(*rules.Rule) bool) *candidate {
	var w *candidate
	for i := range cs {
		if !keep(cs[i].rule) {
			continue
		}
		if w == nil || cs[i].spec.Compare(w.spec) > 0 {
			w = &cs[i]
		}
	}
	return w
}

// finish evaluates the winning category rule's fields, transform and tags.
func (r *run) finish(res *MatchResult, w candidate) {
	env := r.env(w.scope)
	for _, f := range w.rule.Fields {
		v, err := f.Expr.Eval(env)
		if err != nil {
			r.fail(w.rule.Name, StageField, f.Name, err)
			continue
		}
		res.ExtraFields[f.Name] = v
	}
	if w.rule.Transform != nil {
		v, err := w.rule.Transform.Eval(env)
		switch {
		case err != nil:
			r.fail(w.rule.Name, StageTransform, "", err)
		case v != nil:
			res.TransformedDescription = eval.ToString(v)
		}
	}
	if len(w.rule.Tags) > 0 {
		res.addTags(w.rule, r.tags(w.rule, w.scope))
	}
}

func (r *run) env(scope map[string]any) *eval.Env {
	return &eval.Env{Txn: r.txn, Vars: scope, Sources: r.sources}
}

// variables evaluates the file-level variables in declaration order. A
// variable may reference the ones before it; one that fails is left unbound.
func (r *run) variables() map[string]any {
	scope := make(map[string]any, len(r.e.set.Variables))
	for _, v := range r.e.set.Variables {
		val, err := v.Expr.Eval(r.env(scope))
		if err != nil {
			r.record("", StageVariable, v.Name, err)
			r.e.logger.Debug("variable evaluation failed",
				"variable", v.Name,
				"error", err,
			)
			continue
		}
		scope[v.Name] = val
	}
	return scope
}

// lets evaluates a rule's let-bindings on top of the global scope. A failed
// binding is bound to nil.
func (r *run) lets(rule *rules.Rule, globals map[string]any) map[string]any {
	scope := make(map[string]any, len(globals)+len(rule.Lets))
	for k, v := range globals {
		scope[k] = v
	}
	for _, b := range rule.Lets {
		val, err := b.Expr.Eval(r.env(scope))
		if err != nil {
			r.fail(rule.Name, StageLet, b.Name, err)
			val = nil
		}
		scope[b.Name] = val
	}
	return scope
}

// tags resolves a rule's tags in its scope. Static tags are lowercased.
// Dynamic tags contribute their truthy results as strings; list results
// contribute each truthy element.
func (r *run) tags(rule *rules.Rule, scope map[string]any) []string {
	var out []string
	add := func(v any) {
		if !eval.Truthy(v) {
			return
		}
		if s := strings.ToLower(strings.TrimSpace(eval.ToString(v))); s != "" {
			out = append(out, s)
		}
	}

	for _, tag := range rule.Tags {
		if !tag.IsDynamic() {
			if s := strings.TrimSpace(tag.Text); s != "" {
				out = append(out, strings.ToLower(s))
			}
			continue
		}
		v, err := tag.Expr.Eval(r.env(scope))
		if err != nil {
			r.fail(rule.Name, StageTag, tag.Text, err)
			continue
		}
		if list, ok := v.([]any); ok {
			for _, item := range list {
				add(item)
			}
			continue
		}
		add(v)
	}
	return out
}

// fail records and logs a rule evaluation failure.
func (r *run) fail(rule string, stage Stage, name string, err error) {
	r.record(rule, stage, name, err)
	if !r.e.config.LogEvaluationErrors {
		return
	}
	attrs := []any{
		"rule", rule,
		"stage", string(stage),
		"error", err,
	}
	if name != "" {
		attrs = append(attrs, "name", name)
	}
	r.e.logger.Warn("rule evaluation failed", attrs...)
}

func (r *run) record(rule string, stage Stage, name string, err error) {
	r.errs = append(r.errs, &EvaluationError{Rule: rule, Stage: stage, Name: name, Cause: err})
	r.e.observer.RecordEvaluationError(rule, string(stage))
}

// Explanation describes how a transaction was matched.
type Explanation struct {
	Result *MatchResult

	// Candidates are the matching rules in file order.
	Candidates []Candidate

	// Errors are the evaluation failures encountered, in order.
	Errors []*EvaluationError
}

// Candidate is a matching rule and its specificity.
type Candidate struct {
	Rule        *rules.Rule
	Specificity Specificity
}

// Explain matches a transaction and reports every matching rule and
// evaluation failure along with the result.
func (e *Engine) Explain(t *txn.Transaction, sources txn.DataSources) *Explanation {
	res, r := e.match(t, sources)
	ex := &Explanation{Result: res, Errors: r.errs}
	for _, rule := range res.MatchingRules {
		ex.Candidates = append(ex.Candidates, Candidate{
			Rule:        rule,
			Specificity: e.specificityOf(rule),
		})
	}
	return ex
}

func (e *Engine) specificityOf(rule *rules.Rule) Specificity {
	for i, r := range e.set.Rules {
		if r == rule {
			return e.specificity[i]
		}
	}
	return ComputeSpecificity(rule)
}

func (e *Engine) String() string {
	return fmt.Sprintf("engine(%s, %d rules)", e.config.MatchMode, len(e.set.Rules))
}
