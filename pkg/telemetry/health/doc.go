// Package health runs component checks for tally's doctor command.
//
// # Overview
//
// A Checker holds named check functions. Run executes them concurrently,
// each under its own timeout, and returns a Report with one CheckResult per
// check in registration order.
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//
//	checker.RegisterCheck("rules", func(ctx context.Context) error {
//	    _, err := rules.ParseFile(path)
//	    return err
//	})
//	checker.RegisterCheck("cache", func(ctx context.Context) error {
//	    if !enabled {
//	        return health.Skip("cache disabled")
//	    }
//	    return pingCache(ctx)
//	})
//
//	report := checker.Run(ctx)
//	if !report.Healthy() {
//	    os.Exit(1)
//	}
//
// # Statuses
//
// A check is "ok" when it returns nil, "skipped" when its error wraps
// ErrSkipped, and "failed" otherwise or when it times out. A report is
// "unhealthy" if any check failed; skipped checks do not count against it.
package health
