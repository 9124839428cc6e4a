package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"tally-hq/tally/pkg/cli"
	"tally-hq/tally/pkg/engine"
	"tally-hq/tally/pkg/txn"
)

var explainFlags struct {
	amount float64
	date   string
	source string
	fields map[string]string
}

var explainCmd = &cobra.Command{
	Use:   "explain <description>",
	Short: "Show how a transaction is matched",
	Long: `Match a single transaction and show every rule whose match expression
was true, its specificity (priority, patterns, fields, literal length),
which rule won each of merchant, category and subcategory, where each tag
came from, and any evaluation errors.

Examples:
  tally explain "BLUE BOTTLE COFFEE #12" --amount 5.50 --date 2024-03-01
  tally explain "AMAZON MKTPLACE" --source amex --field memo=gift`,
	Args: cobra.MinimumNArgs(1),
	RunE: explainTransaction,
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().Float64Var(&explainFlags.amount, "amount", 0, "transaction amount")
	explainCmd.Flags().StringVar(&explainFlags.date, "date", "", "transaction date (YYYY-MM-DD)")
	explainCmd.Flags().StringVar(&explainFlags.source, "source", "", "transaction source")
	explainCmd.Flags().StringToStringVar(&explainFlags.fields, "field", nil, "custom field name=value (repeatable)")
}

// explanation is the JSON form of an engine.Explanation.
type explanation struct {
	Description string             `json:"description"`
	Matched     bool               `json:"matched"`
	Merchant    string             `json:"merchant"`
	Category    string             `json:"category"`
	Subcategory string             `json:"subcategory"`
	Rule        string             `json:"rule,omitempty"`
	Tags        []string           `json:"tags"`
	TagSources  map[string]string  `json:"tag_sources,omitempty"`
	Fields      map[string]any     `json:"fields,omitempty"`
	Candidates  []explainCandidate `json:"candidates"`
	Errors      []string           `json:"errors,omitempty"`
}

type explainCandidate struct {
	Rule        string `json:"rule"`
	Line        int    `json:"line"`
	TagOnly     bool   `json:"tag_only"`
	Specificity string `json:"specificity"`
}

func explainTransaction(cmd *cobra.Command, args []string) error {
	a := current

	t := &txn.Transaction{
		Description:    strings.Join(args, " "),
		RawDescription: strings.Join(args, " "),
		Amount:         explainFlags.amount,
		Source:         explainFlags.source,
		Fields:         explainFlags.fields,
	}
	if explainFlags.date != "" {
		d, err := txn.ParseDate(explainFlags.date)
		if err != nil {
			return cli.NewConfigError("date", err.Error())
		}
		t.Date = d
	}

	e, err := a.loadEngine()
	if err != nil {
		return err
	}
	sources, err := a.loadSources()
	if err != nil {
		return err
	}

	ex := newExplanation(t, e.Explain(t, sources))
	if a.format != cli.FormatText {
		return a.print(ex)
	}
	return writeExplanation(a, ex, e.Mode())
}

func newExplanation(t *txn.Transaction, ex *engine.Explanation) *explanation {
	res := ex.Result
	out := &explanation{
		Description: t.Description,
		Matched:     res.Matched,
		Merchant:    res.Merchant,
		Category:    res.Category,
		Subcategory: res.Subcategory,
		Rule:        res.RuleName(),
		Tags:        res.Tags,
		Fields:      res.ExtraFields,
	}
	if len(res.TagSources) > 0 {
		out.TagSources = make(map[string]string, len(res.TagSources))
		for tag, src := range res.TagSources {
			out.TagSources[tag] = src.Rule
		}
	}
	for _, c := range ex.Candidates {
		out.Candidates = append(out.Candidates, explainCandidate{
			Rule:        c.Rule.Name,
			Line:        c.Rule.Line,
			TagOnly:     c.Rule.IsTagOnly(),
			Specificity: c.Specificity.String(),
		})
	}
	for _, err := range ex.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

func writeExplanation(a *app, ex *explanation, mode engine.MatchMode) error {
	w := a.out
	fmt.Fprintf(w, "Transaction: %s\n", ex.Description)
	fmt.Fprintf(w, "Mode:        %s\n\n", mode)

	if len(ex.Candidates) == 0 {
		fmt.Fprintln(w, "No rule matched.")
	} else {
		table := &cli.Table{
			Title:  "Matching rules",
			Header: []string{"Rule", "Line", "Kind", "Specificity"},
		}
		for _, c := range ex.Candidates {
			kind := "category"
			if c.TagOnly {
				kind = "tags"
			}
			table.AddRow(c.Rule, c.Line, kind, c.Specificity)
		}
		if err := a.print(table); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	if ex.Matched {
		fmt.Fprintf(w, "✓ Merchant:    %s\n", ex.Merchant)
		fmt.Fprintf(w, "✓ Category:    %s\n", ex.Category)
		fmt.Fprintf(w, "✓ Subcategory: %s\n", ex.Subcategory)
		fmt.Fprintf(w, "  Winner:      %s\n", ex.Rule)
	} else {
		fmt.Fprintln(w, "✗ Uncategorized")
	}
	for _, tag := range ex.Tags {
		fmt.Fprintf(w, "  Tag %q from %s\n", tag, ex.TagSources[tag])
	}
	for _, name := range slices.Sorted(maps.Keys(ex.Fields)) {
		fmt.Fprintf(w, "  Field %s = %v\n", name, ex.Fields[name])
	}
	for _, e := range ex.Errors {
		fmt.Fprintf(w, "⚠  %s\n", e)
	}
	return nil
}
