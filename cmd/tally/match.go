package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tally-hq/tally/pkg/cli"
	"tally-hq/tally/pkg/normalize"
	"tally-hq/tally/pkg/txn"
)

var matchFlags struct {
	transactions []string
	unmatched    bool
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Categorize transactions",
	Long: `Apply the rule file to transactions and print merchant, category,
subcategory and tags for each.

Transactions are read from JSON arrays or JSON Lines files. Supplemental
data sources for let-bindings come from data.sources_file and
data.sources in the config file.

Examples:
  # Match the configured transaction files
  tally match

  # Match a specific file, CSV output
  tally match --transactions 2024.jsonl -o csv

  # Only transactions no category rule matched
  tally match --unmatched`,
	RunE: matchTransactions,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringSliceVar(&matchFlags.transactions, "transactions", nil, "transaction files (default: data.transactions)")
	matchCmd.Flags().BoolVar(&matchFlags.unmatched, "unmatched", false, "only show uncategorized transactions")
}

func matchTransactions(cmd *cobra.Command, args []string) error {
	a := current
	ctx := cmd.Context()

	e, err := a.loadEngine()
	if err != nil {
		return err
	}
	txns, err := a.loadTransactions(matchFlags.transactions)
	if err != nil {
		return cli.NewCommandError("match", err)
	}
	if len(txns) == 0 {
		return cli.NewConfigError("data.transactions", "no transactions to match")
	}
	sources, err := a.loadSources()
	if err != nil {
		return cli.NewCommandError("match", err)
	}

	n := normalize.New(e, a.logger)
	table := &cli.Table{
		Header:     []string{"Date", "Description", "Amount", "Merchant", "Category", "Subcategory", "Tags"},
		WrapColumn: 2,
		WrapWidth:  40,
	}

	categorized := 0
	for _, t := range txns {
		res, err := n.Normalize(t, sources)
		if err != nil {
			return err
		}
		if res.Info != nil && res.Info.Source == normalize.SourceRule {
			categorized++
			if matchFlags.unmatched {
				continue
			}
		}
		var tags []string
		if res.Info != nil {
			tags = res.Info.Tags
		}
		table.AddRow(
			formatDate(t),
			t.Description,
			txn.FormatAmount(t.Amount),
			res.Merchant,
			res.Category,
			res.Subcategory,
			strings.Join(tags, ", "),
		)
	}
	table.Caption = fmt.Sprintf("%s, %s categorized",
		cli.Plural(len(txns), "transaction", "transactions"), cli.Count(categorized))

	a.logger.InfoContext(ctx, "matched transactions",
		"transactions", len(txns),
		"categorized", categorized,
		"mode", e.Mode(),
	)
	return a.print(table)
}

func formatDate(t *txn.Transaction) string {
	if t.Date.IsZero() {
		return ""
	}
	return t.Date.Format(txn.DateLayout)
}
