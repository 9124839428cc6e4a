// Package cache stores rule metadata and per-transaction match results in
// SQLite, keyed by a content hash of the rule file.
//
// The cache answers questions that would otherwise need every transaction
// matched again: how often each rule matched, which rules never matched,
// which rules mention a pattern. It also holds enough of each rule to write
// the rule file back out, so rules can be added, edited and deleted through
// the cache and then regenerated to disk.
//
// # Validity
//
// A cache is valid while the stored rule file hash equals the hash of the
// file on disk and, when match data is required, the stored data hash
// equals the combined hash of the data files. Rebuild runs in a single
// transaction, so readers see either the old cache or the new one.
//
// # Storage
//
// Two SQLite drivers are supported: "sqlite" (modernc.org/sqlite, pure Go)
// and "sqlite3" (github.com/mattn/go-sqlite3, cgo). The schema is managed
// with golang-migrate from migrations embedded in the binary.
//
//	c, err := cache.Open(ctx, cache.DefaultConfig(), logger)
//	defer c.Close()
//
//	ok, err := c.IsValid(ctx, "tally.rules", nil, false)
//	if !ok {
//	    err = c.Rebuild(ctx, &cache.Build{RulesPath: "tally.rules", Engine: e, Transactions: txns})
//	}
//	unused, err := c.UnusedRules(ctx)
package cache
