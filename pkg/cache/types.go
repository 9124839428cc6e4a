package cache

import (
	"time"

	"tally-hq/tally/pkg/rules"
	"tally-hq/tally/pkg/txn"
)

// Meta keys.
const (
	metaRulesHash    = "rules_file_hash"
	metaDataHash     = "data_files_hash"
	metaLastComputed = "last_computed"
	metaPreamble     = "rules_preamble"
	metaBuildID      = "build_id"
	metaMatchMode    = "match_mode"
)

// MatchType records whether a rule matched as a category rule or only
// contributed tags.
type MatchType string

const (
	MatchCategory MatchType = "category"
	MatchTagOnly  MatchType = "tag_only"
)

// Action reports what AddOrUpdateRule did.
type Action string

const (
	ActionAdded   Action = "added"
	ActionUpdated Action = "updated"
)

// CachedRule is a rule as stored in the cache.
type CachedRule struct {
	rules.Definition

	Position   int  // Zero-based order in the rule file
	SourceLine int  // Line of the rule header, 0 for rules added through the cache
	IsComplex  bool // Rule uses let-bindings or field directives
}

// CachedTransaction is a transaction as stored in the cache.
type CachedTransaction struct {
	ID             string
	RawDescription string
	Description    string
	Amount         float64
	Date           string
	Source         string
}

// Transaction converts the cached row back to a transaction. An
// unparseable date is left zero.
func (c *CachedTransaction) Transaction() *txn.Transaction {
	t := &txn.Transaction{
		Description:    c.Description,
		RawDescription: c.RawDescription,
		Amount:         c.Amount,
		Source:         c.Source,
	}
	if c.Date != "" {
		t.Date, _ = txn.ParseDate(c.Date)
	}
	return t
}

// RuleCount is a rule with the number of transactions it matched.
type RuleCount struct {
	Name  string
	Count int
}

// Status summarizes the cache.
type Status struct {
	Path         string
	RulesHash    string
	DataHash     string
	BuildID      string
	MatchMode    string
	LastComputed time.Time // Zero if never built
	Rules        int
	Transactions int
	Matches      int
}

// RuleChange is the input to AddOrUpdateRule. Nil fields keep the stored
// value when updating and take defaults when adding. A nil Tags keeps the
// stored tags; an empty non-nil Tags clears them.
type RuleChange struct {
	Name        string
	Match       string
	Category    *string
	Subcategory *string
	Merchant    *string
	Tags        []string
	Priority    *int
}

// RulePatch is the input to UpdateRule.
type RulePatch struct {
	Category    *string
	Subcategory *string
	AddTags     []string
	RemoveTags  []string
	Priority    *int
}

// Build is the input to Rebuild.
type Build struct {
	RulesPath    string
	DataPaths    []string
	Engine       Matcher
	Transactions []*txn.Transaction
	Sources      txn.DataSources

	// Progress, if set, is called after each transaction is matched.
	Progress func(done, total int)
}
