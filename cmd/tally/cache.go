package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tally-hq/tally/pkg/cache"
	"tally-hq/tally/pkg/cli"
)

var cacheFlags struct {
	progress bool
	output   string
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the rule cache",
	Long: `Manage the SQLite rule cache.

The cache stores the parsed rules, the transactions and which rules each
transaction matched. It is keyed by SHA-256 hashes of the rule file and
the data files and is rebuilt automatically when either changes.`,
}

var cacheRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the cache from the rule file and data files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		ctx := cmd.Context()
		return a.withCache(ctx, func(c *cache.Cache) error {
			var progress cli.ProgressReporter
			if cacheFlags.progress {
				progress = cli.NewProgressReporter(a.errOut, "txns")
			}
			if err := a.rebuild(ctx, c, progress); err != nil {
				return cli.NewCommandError("cache rebuild", err)
			}
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✓ Cache rebuilt: %s, %s, %s\n",
				cli.Plural(st.Rules, "rule", "rules"),
				cli.Plural(st.Transactions, "transaction", "transactions"),
				cli.Plural(st.Matches, "match", "matches"))
			return nil
		})
	},
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache contents and whether it is current",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		ctx := cmd.Context()
		return a.withCache(ctx, func(c *cache.Cache) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			valid, err := c.IsValid(ctx, a.config.Rules.Path, a.config.Data.Paths(), len(a.config.Data.Transactions) > 0)
			if err != nil {
				return err
			}
			a.metrics.RecordCacheCheck(valid)

			state := "current"
			if !valid {
				state = "stale"
			}
			size := int64(0)
			if info, err := os.Stat(st.Path); err == nil {
				size = info.Size()
			}

			table := &cli.Table{Header: []string{"Property", "Value"}}
			table.AddRow("Path", st.Path)
			table.AddRow("Size", cli.Bytes(size))
			table.AddRow("State", state)
			table.AddRow("Match mode", st.MatchMode)
			table.AddRow("Build", st.BuildID)
			table.AddRow("Last computed", cli.Ago(st.LastComputed))
			table.AddRow("Rules", cli.Count(st.Rules))
			table.AddRow("Transactions", cli.Count(st.Transactions))
			table.AddRow("Matches", cli.Count(st.Matches))
			table.AddRow("Rules hash", shortHash(st.RulesHash))
			table.AddRow("Data hash", shortHash(st.DataHash))
			return a.print(table)
		})
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Force a rebuild on next use",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		ctx := cmd.Context()
		return a.withCache(ctx, func(c *cache.Cache) error {
			if err := c.Invalidate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "✓ Cache invalidated")
			return nil
		})
	},
}

var cacheRegenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Write the cached rules back out as a rule file",
	Long: `Write the cached rules back out as a rule file.

By default the configured rule file is replaced. With --to the rule
text is written to another path, or to standard output for "-".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		ctx := cmd.Context()
		return a.withCache(ctx, func(c *cache.Cache) error {
			switch cacheFlags.output {
			case "-":
				text, err := c.Render(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(a.out, text)
				return err
			case "":
				if err := c.RegenerateRulesFile(ctx, a.config.Rules.Path); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "✓ Wrote %s\n", a.config.Rules.Path)
				return nil
			default:
				text, err := c.Render(ctx)
				if err != nil {
					return err
				}
				if err := os.WriteFile(cacheFlags.output, []byte(text), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", cacheFlags.output, err)
				}
				fmt.Fprintf(a.out, "✓ Wrote %s\n", cacheFlags.output)
				return nil
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheRebuildCmd, cacheStatusCmd, cacheInvalidateCmd, cacheRegenerateCmd)

	cacheRebuildCmd.Flags().BoolVar(&cacheFlags.progress, "progress", false, "show a progress bar")
	cacheRegenerateCmd.Flags().StringVar(&cacheFlags.output, "to", "", `write to this path instead of the rule file ("-" for stdout)`)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	if h == "" {
		return "-"
	}
	return h
}
