package normalize

import (
	"errors"
	"log/slog"

	"tally-hq/tally/pkg/engine"
	"tally-hq/tally/pkg/txn"
)

// Unknown is the category, subcategory and merchant of an uncategorized
// transaction with an empty description.
const Unknown = "Unknown"

// ErrNoEngine is returned when neither an explicit nor a default engine is
// available.
var ErrNoEngine = errors.New("no rules engine loaded")

// Source tells whether a result came from a rule or from the fallback.
type Source string

const (
	SourceRule Source = "user"
	SourceAuto Source = "auto"
)

// Result is a normalized transaction.
type Result struct {
	Merchant    string
	Category    string
	Subcategory string

	// Transaction is the transaction after field transforms.
	Transaction *txn.Transaction

	// Info is nil for an uncategorized transaction that has no tags and
	// no transformed fields.
	Info *MatchInfo
}

// MatchInfo describes how a result was reached.
type MatchInfo struct {
	Source                 Source
	Rule                   string // Name of the winning rule, if any
	Pattern                string // Match expression of the winning rule, if any
	Tags                   []string
	TagSources             map[string]engine.TagSource
	RawValues              map[string]string
	ExtraFields            map[string]any
	TransformedDescription string
}

// Normalizer normalizes transactions with a rules engine.
type Normalizer struct {
	engine *engine.Engine
	logger *slog.Logger
}

// New creates a normalizer. A nil engine makes the normalizer use the
// process default engine at call time.
func New(e *engine.Engine, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{engine: e, logger: logger.With("component", "rules.normalize")}
}

// Normalize applies the rule file's transforms to a copy of t, matches it
// and fills in merchant, category and subcategory. t is not modified.
func (n *Normalizer) Normalize(t *txn.Transaction, sources txn.DataSources) (*Result, error) {
	e := n.engine
	if e == nil {
		e = engine.Default()
	}
	if e == nil {
		return nil, ErrNoEngine
	}

	work := t.Clone()
	raw := ApplyTransforms(work, e.RuleSet().Transforms, sources, n.logger)

	res := e.Match(work, sources)
	out := &Result{Transaction: work}

	if res.Matched {
		out.Merchant = res.Merchant
		out.Category = res.Category
		out.Subcategory = res.Subcategory
		out.Info = &MatchInfo{
			Source:                 SourceRule,
			Rule:                   res.RuleName(),
			Pattern:                res.MatchedRule.MatchSource(),
			Tags:                   res.Tags,
			TagSources:             res.TagSources,
			ExtraFields:            res.ExtraFields,
			TransformedDescription: res.TransformedDescription,
		}
		if len(raw) > 0 {
			out.Info.RawValues = raw
		}
		return out, nil
	}

	out.Merchant = MerchantName(work.Description)
	out.Category = Unknown
	out.Subcategory = Unknown
	if len(res.Tags) > 0 || len(raw) > 0 {
		out.Info = &MatchInfo{
			Source:     SourceAuto,
			Tags:       res.Tags,
			TagSources: res.TagSources,
		}
		if len(raw) > 0 {
			out.Info.RawValues = raw
		}
	}
	return out, nil
}
