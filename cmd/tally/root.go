package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tally-hq/tally/pkg/cli"
)

var (
	// Global flags
	cfgFile     string
	verbose     bool
	rulesPath   string
	metricsFile string
	outputFlag  string
)

// skipSetup marks commands that run without loading configuration.
const skipSetup = "tally/skip-setup"

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Tally - rule-based transaction categorization",
	Long: `Tally assigns merchants, categories and tags to bank and card
transactions using a plain-text rule file.

Rules are matched in file order (first_match) or by specificity
(most_specific). Tag-only rules add tags to every transaction they match.
Matches are cached in a local SQLite database keyed by the content of the
rule and data files.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipSetup] != "" {
			return nil
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	ctx, stop := cli.SetupSignalHandler(context.Background())
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}

// run executes the command line in args and releases what the command
// opened, writing the metrics textfile if one is configured.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if current != nil {
		if cerr := current.close(); err == nil {
			err = cerr
		}
		current = nil
	}
	return err
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tally.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "rule file (overrides rules.path)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "text", "output format: text, json, csv")
}
