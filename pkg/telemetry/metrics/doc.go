// Package metrics provides Prometheus metrics for rule matching and the
// rule cache.
//
// A Collector implements engine.Observer, so attaching it to an engine
// records every match, rule hit and evaluation failure:
//
//	collector := metrics.NewCollector(&cfg.Metrics, nil)
//	e = e.WithObserver(collector)
//	...
//	err := collector.WriteToTextfile("/var/lib/node_exporter/tally.prom")
//
// tally is a command-line tool with no listening socket, so metrics are
// exported through the node exporter textfile collector rather than
// scraped over HTTP.
//
// Rule names become label values. At most 1000 distinct names are kept;
// later ones are reported as "other".
package metrics
