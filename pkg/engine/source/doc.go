// Package source loads rule files for the matching engine and reloads them
// when they change.
//
// # Sources
//
// A Source produces a Snapshot: the parsed rule set plus the SHA-256 of the
// text it was parsed from. FileSource reads a rule file from disk;
// MemorySource serves rule text held in memory and is mostly useful in
// tests.
//
//	src := source.NewFileSource("tally.rules", nil)
//	snap, err := src.Load(ctx)
//
// # Hot-Reload
//
// Watcher follows a set of files with fsnotify and calls back after a quiet
// period, so an editor's write-rename-chmod burst triggers a single reload.
// It watches the parent directory of each file, which keeps it working when
// editors replace a file instead of writing it in place.
//
// Reloader ties a Source to an engine. Reload parses the source again and
// swaps in a new engine only when parsing succeeds; a rule file that fails
// to parse leaves the previous engine in service.
//
//	r, err := source.NewReloader(ctx, src, engine.DefaultConfig(), logger)
//	w, err := source.NewWatcher(&source.WatcherConfig{Paths: []string{"tally.rules"}}, logger)
//	go w.Watch(ctx, func() error { _, err := r.Reload(ctx); return err })
//	res := r.Engine().Match(t, sources)
package source
