package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"tally-hq/tally/pkg/cli"
	"tally-hq/tally/pkg/config"
	"tally-hq/tally/pkg/telemetry/health"
)

var doctorTimeout time.Duration

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the configuration, rule file, data files and cache",
	Long: `Check that every configured component is usable.

Each check reports ok, failed or skipped. Skipped checks are components
that are not configured. The command exits with status 1 if any check
failed. The cache is inspected but never rebuilt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		ctx := cmd.Context()

		report := a.doctor(doctorTimeout).Run(ctx)
		a.logger.DebugContext(ctx, "health checks finished", "status", report.Status, "checks", len(report.Checks))

		table := &cli.Table{
			Header:  []string{"Check", "Status", "Message", "Duration"},
			Caption: report.Status,
		}
		for _, r := range report.Checks {
			table.AddRow(r.Name, r.Status, r.Message, r.Duration.Round(time.Microsecond).String())
		}
		if err := a.print(table); err != nil {
			return err
		}
		if !report.Healthy() {
			return &cli.ExitError{Code: 1}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 5*time.Second, "timeout for each check")
}

// doctor registers a check for each component of a's configuration.
func (a *app) doctor(timeout time.Duration) *health.Checker {
	checker := health.New(timeout)

	checker.RegisterCheck("config", func(ctx context.Context) error {
		return config.Validate(a.config)
	})

	checker.RegisterCheck("rules", func(ctx context.Context) error {
		_, err := a.loadEngine()
		return err
	})

	checker.RegisterCheck("transactions", func(ctx context.Context) error {
		if len(a.config.Data.Transactions) == 0 {
			return health.Skip("no transaction files configured")
		}
		_, err := a.loadTransactions(nil)
		return err
	})

	checker.RegisterCheck("sources", func(ctx context.Context) error {
		if a.config.Data.SourcesFile == "" && len(a.config.Data.Sources) == 0 {
			return health.Skip("no data sources configured")
		}
		_, err := a.loadSources()
		return err
	})

	checker.RegisterCheck("cache", func(ctx context.Context) error {
		if !a.config.Cache.IsEnabled() {
			return health.Skip("cache disabled")
		}
		c, err := a.openCache(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		valid, err := c.IsValid(ctx, a.config.Rules.Path, a.config.Data.Paths(), len(a.config.Data.Transactions) > 0)
		if err != nil {
			return err
		}
		if !valid {
			return errors.New("stale: run 'tally cache rebuild'")
		}
		return nil
	})

	checker.RegisterCheck("metrics", func(ctx context.Context) error {
		if !a.config.Metrics.Enabled || a.config.Metrics.TextfilePath == "" {
			return health.Skip("metrics textfile disabled")
		}
		dir := filepath.Dir(a.config.Metrics.TextfilePath)
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	})

	return checker
}
