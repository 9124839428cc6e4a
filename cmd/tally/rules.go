package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tally-hq/tally/pkg/cache"
	"tally-hq/tally/pkg/cli"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and edit rules through the rule cache",
	Long: `Inspect and edit rules through the rule cache.

Read commands rebuild the cache first when the rule file or data files
changed. Edit commands change the cached rules and then rewrite the rule
file from the cache, keeping top-level variables and transforms. Rule
files are rewritten in canonical form: comments are not preserved.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in file order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRules(cmd.Context(), false, func(c *cache.Cache) ([]*cache.CachedRule, error) {
			return c.Rules(cmd.Context())
		})
	},
}

var rulesSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find rules whose name or match expression contains text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRules(cmd.Context(), false, func(c *cache.Cache) ([]*cache.CachedRule, error) {
			return c.SearchRules(cmd.Context(), args[0])
		})
	},
}

var rulesUnusedCmd = &cobra.Command{
	Use:   "unused",
	Short: "List rules that matched no transaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRules(cmd.Context(), true, func(c *cache.Cache) ([]*cache.CachedRule, error) {
			return c.UnusedRules(cmd.Context())
		})
	},
}

var rulesCountsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show how many transactions each rule matched",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		ctx := cmd.Context()
		return a.withCache(ctx, func(c *cache.Cache) error {
			if err := a.refresh(ctx, c, true); err != nil {
				return err
			}
			counts, err := c.MatchCounts(ctx)
			if err != nil {
				return err
			}
			table := &cli.Table{Header: []string{"Rule", "Matches"}}
			for _, rc := range counts {
				table.AddRow(rc.Name, rc.Count)
			}
			return a.print(table)
		})
	},
}

var ruleFlags struct {
	name        string
	match       string
	category    string
	subcategory string
	merchant    string
	tags        []string
	addTags     []string
	removeTags  []string
	priority    int
	noWrite     bool
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule, or update the rule with the same name or match",
	Long: `Add a rule, or update an existing one.

A rule whose name (case-insensitive) or match expression equals the given
one is updated in place; otherwise the rule is appended. Unset flags keep
the stored value on update.

Examples:
  tally rules add --name "Blue Bottle" --match 'contains("BLUE BOTTLE")' \
    --category Food --subcategory Coffee --tags coffee`,
	RunE: addRule,
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Change a rule's category, tags or priority",
	Args:  cobra.ExactArgs(1),
	RunE:  updateRule,
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a rule by name or match expression",
	Args:  cobra.MaximumNArgs(1),
	RunE:  deleteRule,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesSearchCmd, rulesUnusedCmd, rulesCountsCmd,
		rulesAddCmd, rulesUpdateCmd, rulesDeleteCmd)

	for _, c := range []*cobra.Command{rulesAddCmd, rulesUpdateCmd, rulesDeleteCmd} {
		c.Flags().BoolVar(&ruleFlags.noWrite, "no-write", false, "change the cache only; do not rewrite the rule file")
	}

	f := rulesAddCmd.Flags()
	f.StringVar(&ruleFlags.name, "name", "", "rule name")
	f.StringVar(&ruleFlags.match, "match", "", "match expression")
	f.StringVar(&ruleFlags.category, "category", "", "category")
	f.StringVar(&ruleFlags.subcategory, "subcategory", "", "subcategory")
	f.StringVar(&ruleFlags.merchant, "merchant", "", "merchant (default: the rule name)")
	f.StringSliceVar(&ruleFlags.tags, "tags", nil, "tags, replacing any stored tags")
	f.IntVar(&ruleFlags.priority, "priority", 0, "priority (default 50)")
	if err := rulesAddCmd.MarkFlagRequired("match"); err != nil {
		panic(fmt.Sprintf("failed to mark match flag as required: %v", err))
	}

	f = rulesUpdateCmd.Flags()
	f.StringVar(&ruleFlags.category, "category", "", "new category")
	f.StringVar(&ruleFlags.subcategory, "subcategory", "", "new subcategory")
	f.StringSliceVar(&ruleFlags.addTags, "add-tag", nil, "tags to add")
	f.StringSliceVar(&ruleFlags.removeTags, "remove-tag", nil, "tags to remove")
	f.IntVar(&ruleFlags.priority, "priority", 0, "new priority")

	rulesDeleteCmd.Flags().StringVar(&ruleFlags.match, "match", "", "delete the rule with this match expression")
}

// withRules refreshes the cache and prints the rules query returns.
func withRules(ctx context.Context, requireData bool, query func(*cache.Cache) ([]*cache.CachedRule, error)) error {
	a := current
	return a.withCache(ctx, func(c *cache.Cache) error {
		if err := a.refresh(ctx, c, requireData); err != nil {
			return err
		}
		rs, err := query(c)
		if err != nil {
			return err
		}
		return a.print(rulesTable(rs))
	})
}

func rulesTable(rs []*cache.CachedRule) *cli.Table {
	table := &cli.Table{
		Header:     []string{"Name", "Match", "Category", "Subcategory", "Tags", "Priority"},
		WrapColumn: 2,
		WrapWidth:  50,
	}
	for _, r := range rs {
		table.AddRow(r.Name, r.Match, r.Category, r.Subcategory, strings.Join(r.Tags, ", "), r.Priority)
	}
	table.Caption = cli.Plural(len(rs), "rule", "rules")
	return table
}

// mutate brings the cache up to date with the rule file, applies fn and
// writes the rule file back unless --no-write is set.
func mutate(cmd *cobra.Command, fn func(context.Context, *cache.Cache) error) error {
	a := current
	ctx := cmd.Context()
	return a.withCache(ctx, func(c *cache.Cache) error {
		if err := a.refresh(ctx, c, false); err != nil {
			return err
		}
		if err := fn(ctx, c); err != nil {
			return err
		}
		if err := c.MarkMatchesStale(ctx); err != nil {
			return err
		}
		if ruleFlags.noWrite {
			return nil
		}
		if err := c.RegenerateRulesFile(ctx, a.config.Rules.Path); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ Wrote %s\n", a.config.Rules.Path)
		return nil
	})
}

func addRule(cmd *cobra.Command, args []string) error {
	change := cache.RuleChange{
		Name:  ruleFlags.name,
		Match: ruleFlags.match,
	}
	flags := cmd.Flags()
	if flags.Changed("category") {
		change.Category = &ruleFlags.category
	}
	if flags.Changed("subcategory") {
		change.Subcategory = &ruleFlags.subcategory
	}
	if flags.Changed("merchant") {
		change.Merchant = &ruleFlags.merchant
	}
	if flags.Changed("tags") {
		change.Tags = append([]string{}, ruleFlags.tags...)
	}
	if flags.Changed("priority") {
		change.Priority = &ruleFlags.priority
	}

	return mutate(cmd, func(ctx context.Context, c *cache.Cache) error {
		r, action, err := c.AddOrUpdateRule(ctx, change)
		if err != nil {
			return ruleError("add", err)
		}
		fmt.Fprintf(current.out, "✓ Rule %q %s\n", r.Name, action)
		return nil
	})
}

func updateRule(cmd *cobra.Command, args []string) error {
	patch := cache.RulePatch{
		AddTags:    ruleFlags.addTags,
		RemoveTags: ruleFlags.removeTags,
	}
	flags := cmd.Flags()
	if flags.Changed("category") {
		patch.Category = &ruleFlags.category
	}
	if flags.Changed("subcategory") {
		patch.Subcategory = &ruleFlags.subcategory
	}
	if flags.Changed("priority") {
		patch.Priority = &ruleFlags.priority
	}

	return mutate(cmd, func(ctx context.Context, c *cache.Cache) error {
		r, err := c.UpdateRule(ctx, args[0], patch)
		if err != nil {
			return ruleError("update", err)
		}
		fmt.Fprintf(current.out, "✓ Rule %q updated\n", r.Name)
		return nil
	})
}

func deleteRule(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (ruleFlags.match == "") {
		return cli.NewConfigError("delete", "give either a rule name or --match")
	}

	return mutate(cmd, func(ctx context.Context, c *cache.Cache) error {
		var (
			deleted bool
			err     error
			what    string
		)
		if len(args) == 1 {
			what = args[0]
			deleted, err = c.DeleteByName(ctx, what)
		} else {
			what = ruleFlags.match
			deleted, err = c.DeleteByMatch(ctx, what)
		}
		if err != nil {
			return err
		}
		if !deleted {
			return ruleError("delete", fmt.Errorf("%w: %s", cache.ErrRuleNotFound, what))
		}
		fmt.Fprintf(current.out, "✓ Rule %q deleted\n", what)
		return nil
	})
}

// ruleError turns cache validation failures into configuration errors so
// they exit with status 2.
func ruleError(op string, err error) error {
	var ve *cache.ValidationError
	if errors.As(err, &ve) {
		return cli.NewConfigError(ve.Field, ve.Message)
	}
	return cli.NewCommandError("rules "+op, err)
}
