/*
Package cli provides command-line interface utilities for tally.

The cli package includes output formatters, progress reporters, error
types and signal handling used by the tally command.

Output Formatting:

Commands build a *Table and hand it to the formatter chosen with
--output. Text output is a box-drawn table, JSON output an array of
objects keyed by the lowercased header, CSV output one line per row:

	t := &cli.Table{Header: []string{"Rule", "Matches"}}
	t.AddRow("Coffee", 42)
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, t); err != nil {
		return err
	}

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "txns")
	progress.Start(int64(len(txns)))
	...
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
