package main

import (
	"context"
	"fmt"
	"os/signal"

	"github.com/spf13/cobra"

	"tally-hq/tally/pkg/cache"
	"tally-hq/tally/pkg/cli"
	"tally-hq/tally/pkg/engine"
	"tally-hq/tally/pkg/engine/source"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload rules and refresh the cache when files change",
	Long: `Watch the rule file and data files. After each burst of changes the
rules are reloaded and, when the cache is enabled, the cache is refreshed.
A rule file with errors is reported and the previous rules stay in effect.

SIGHUP forces a reload. With watch.rebuild_schedule set the cache is also
rebuilt on that cron schedule. Metrics are written to the textfile after
every reload when metrics are enabled.

Examples:
  tally watch
  tally watch --metrics-file /var/lib/node_exporter/tally.prom`,
	RunE: watchFiles,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func watchFiles(cmd *cobra.Command, args []string) error {
	a := current
	ctx := cmd.Context()

	engineCfg, err := a.engineConfig()
	if err != nil {
		return err
	}
	src := source.NewFileSource(a.config.Rules.Path, a.logger).WithParser(a.parser())
	reloader, err := source.NewReloader(ctx, src, engineCfg, a.logger)
	if err != nil {
		return cli.NewCommandError("watch", err)
	}
	reloader.WithEngineOptions(func(e *engine.Engine) *engine.Engine {
		return e.WithObserver(a.metrics)
	})
	reloader.OnReload(func(e *engine.Engine, snap *source.Snapshot) {
		fmt.Fprintf(a.out, "✓ Rules reloaded: %s\n", cli.Plural(len(snap.Set.Rules), "rule", "rules"))
	})

	var c *cache.Cache
	if a.config.Cache.IsEnabled() {
		if c, err = a.openCache(ctx); err != nil {
			return err
		}
		defer c.Close()
		if err := a.refresh(ctx, c, len(a.config.Data.Transactions) > 0); err != nil {
			return err
		}

		scheduler := cache.NewScheduler(a.config.Watch.RebuildSchedule, func(ctx context.Context) error {
			return a.rebuild(ctx, c, nil)
		}, a.logger)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	onChange := func() error {
		_, err := reloader.Reload(ctx)
		a.metrics.RecordReload(err == nil)
		if err == nil && c != nil {
			err = a.refresh(ctx, c, len(a.config.Data.Transactions) > 0)
		}
		if a.config.Metrics.Enabled && a.config.Metrics.TextfilePath != "" {
			if werr := a.metrics.WriteToTextfile(a.config.Metrics.TextfilePath); werr != nil {
				a.logger.Warn("failed to write metrics", "error", werr)
			}
		}
		return err
	}

	watcher, err := source.NewWatcher(&source.WatcherConfig{
		Paths:            append([]string{a.config.Rules.Path}, a.config.Data.Paths()...),
		DebounceInterval: a.config.Watch.Debounce,
	}, a.logger)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	hup := cli.ReloadSignals()
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				a.logger.Info("reload requested by signal")
				if err := onChange(); err != nil {
					a.logger.Error("reload failed", "error", err)
				}
			}
		}
	}()

	fmt.Fprintf(a.out, "Watching %s (Ctrl+C to stop)\n", a.config.Rules.Path)
	return watcher.Watch(ctx, onChange)
}
