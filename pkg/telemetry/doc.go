// Package telemetry groups tally's observability packages.
//
// # Components
//
//   - logging: structured slog logging with redaction of account numbers
//     and other sensitive values in transaction descriptions
//   - metrics: Prometheus counters and histograms for matching, cache
//     builds and rule reloads, written to a node_exporter textfile
//   - health: component checks run by the doctor command
//
// # Usage
//
//	cfg, err := config.LoadOptional(path)
//	if err != nil {
//	    return err
//	}
//
//	logger, err := logging.New(logging.FromConfig(cfg.Logging))
//	if err != nil {
//	    return err
//	}
//
//	collector := metrics.NewCollector(&cfg.Metrics, prometheus.NewRegistry())
//	e = e.WithObserver(collector)
//
//	defer collector.WriteToTextfile(cfg.Metrics.TextfilePath)
//
// tally has no network surface, so metrics are never served over HTTP.
package telemetry
