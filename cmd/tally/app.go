package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"tally-hq/tally/pkg/cache"
	"tally-hq/tally/pkg/cli"
	"tally-hq/tally/pkg/config"
	"tally-hq/tally/pkg/engine"
	"tally-hq/tally/pkg/rules"
	"tally-hq/tally/pkg/telemetry/logging"
	"tally-hq/tally/pkg/telemetry/metrics"
	"tally-hq/tally/pkg/txn"
)

// current is the state of the running command, set up by the root
// command's pre-run hook.
var current *app

// app holds what every command needs: configuration, logger, metrics and
// the chosen output formatter.
type app struct {
	config  *config.Config
	logger  *slog.Logger
	logOut  io.Closer
	metrics *metrics.Collector
	format  cli.OutputFormat
	out     io.Writer
	errOut  io.Writer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadOptional(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("config", err.Error())
	}
	if rulesPath != "" {
		cfg.Rules.Path = rulesPath
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if metricsFile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.TextfilePath = metricsFile
	}

	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return nil, err
	}

	logOut, err := logging.OpenOutput(cfg.Logging.Output)
	if err != nil {
		return nil, cli.NewConfigError("logging.output", err.Error())
	}
	logCfg := logging.FromConfig(cfg.Logging)
	logCfg.Writer = logOut
	logger, err := logging.New(logCfg)
	if err != nil {
		logOut.Close()
		return nil, cli.NewConfigError("logging", err.Error())
	}

	ctx := logging.WithCommand(cmd.Context(), cmd.CommandPath())
	ctx = logging.WithRulesFile(ctx, cfg.Rules.Path)
	cmd.SetContext(ctx)

	return &app{
		config:  cfg,
		logger:  logger,
		logOut:  logOut,
		metrics: metrics.NewCollector(&cfg.Metrics, prometheus.NewRegistry()),
		format:  format,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
	}, nil
}

func (a *app) close() error {
	var err error
	if a.config.Metrics.Enabled && a.config.Metrics.TextfilePath != "" {
		err = a.metrics.WriteToTextfile(a.config.Metrics.TextfilePath)
	}
	if cerr := a.logOut.Close(); err == nil {
		err = cerr
	}
	return err
}

// print writes data in the selected output format.
func (a *app) print(data any) error {
	return cli.NewFormatter(a.format).FormatTo(a.out, data)
}

func (a *app) engineConfig() (*engine.Config, error) {
	mode, err := engine.ParseMatchMode(a.config.Rules.MatchMode)
	if err != nil {
		return nil, err
	}
	logErrors := a.config.Rules.LogEvaluationErrors == nil || *a.config.Rules.LogEvaluationErrors
	return engine.DefaultConfig().
		WithMatchMode(mode).
		WithLogEvaluationErrors(logErrors), nil
}

func (a *app) parser() *rules.Parser {
	return rules.NewParser().WithMaxFileSize(a.config.Rules.MaxFileSize)
}

// loadEngine parses the configured rule file and builds an engine that
// reports to the metrics collector.
func (a *app) loadEngine() (*engine.Engine, error) {
	set, err := a.parser().ParseFile(a.config.Rules.Path)
	if err != nil {
		return nil, err
	}
	cfg, err := a.engineConfig()
	if err != nil {
		return nil, err
	}
	e, err := engine.New(set, cfg, a.logger)
	if err != nil {
		return nil, err
	}
	return e.WithObserver(a.metrics), nil
}

// loadTransactions reads every file in paths, or the configured
// transaction files when paths is empty.
func (a *app) loadTransactions(paths []string) ([]*txn.Transaction, error) {
	if len(paths) == 0 {
		paths = a.config.Data.Transactions
	}
	var all []*txn.Transaction
	for _, p := range paths {
		ts, err := txn.LoadFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, ts...)
	}
	return all, nil
}

// loadSources reads the configured data sources. Per-source files replace
// same-named entries from the combined sources file.
func (a *app) loadSources() (txn.DataSources, error) {
	sources := txn.DataSources{}
	if f := a.config.Data.SourcesFile; f != "" {
		loaded, err := txn.LoadDataSources(f)
		if err != nil {
			return nil, err
		}
		sources = loaded
	}
	for name, path := range a.config.Data.Sources {
		rows, err := txn.LoadRows(path)
		if err != nil {
			return nil, err
		}
		sources[name] = rows
	}
	return sources, nil
}

func (a *app) cacheConfig() *cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Dir = a.config.Cache.Dir
	cfg.Driver = a.config.Cache.Driver
	cfg.BusyTimeout = a.config.Cache.BusyTimeout
	return cfg
}

func (a *app) openCache(ctx context.Context) (*cache.Cache, error) {
	if !a.config.Cache.IsEnabled() {
		return nil, cli.NewConfigError("cache.enabled", "the rule cache is disabled")
	}
	return cache.Open(ctx, a.cacheConfig(), a.logger)
}

// refresh rebuilds the cache if the rule file or, when requireData is set,
// the data files changed since the last build.
func (a *app) refresh(ctx context.Context, c *cache.Cache, requireData bool) error {
	valid, err := c.IsValid(ctx, a.config.Rules.Path, a.config.Data.Paths(), requireData)
	if err != nil {
		return err
	}
	a.metrics.RecordCacheCheck(valid)
	if valid {
		a.logger.DebugContext(ctx, "rule cache is current")
		return nil
	}
	return a.rebuild(ctx, c, nil)
}

// rebuild replaces the cache contents from the rule file and data files.
// With no transaction files configured only the rules are stored.
func (a *app) rebuild(ctx context.Context, c *cache.Cache, progress cli.ProgressReporter) error {
	e, err := a.loadEngine()
	if err != nil {
		return err
	}
	if len(a.config.Data.Transactions) == 0 {
		return c.RebuildRulesOnly(ctx, a.config.Rules.Path, e)
	}

	txns, err := a.loadTransactions(nil)
	if err != nil {
		return err
	}
	sources, err := a.loadSources()
	if err != nil {
		return err
	}

	b := &cache.Build{
		RulesPath:    a.config.Rules.Path,
		DataPaths:    a.config.Data.Paths(),
		Engine:       e,
		Transactions: txns,
		Sources:      sources,
	}
	if progress != nil {
		progress.Start(int64(len(txns)))
		b.Progress = func(done, _ int) { progress.Update(int64(done)) }
	}

	start := time.Now()
	if err := c.Rebuild(ctx, b); err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return err
	}
	if progress != nil {
		progress.Finish()
	}

	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	a.metrics.RecordCacheRebuild(time.Since(start), st.Rules, st.Transactions, st.Matches)
	return nil
}

// withCache opens the cache, runs fn and closes the cache.
func (a *app) withCache(ctx context.Context, fn func(*cache.Cache) error) error {
	c, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
