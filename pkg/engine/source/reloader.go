package source

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"tally-hq/tally/pkg/engine"
)

// Reloader keeps an engine built from the latest good load of a source.
type Reloader struct {
	source Source
	config *engine.Config
	base   *slog.Logger // Passed to engines
	logger *slog.Logger

	current atomic.Pointer[engine.Engine]

	mu        sync.Mutex // Serializes reloads
	snapshot  *Snapshot
	onReload  []func(*engine.Engine, *Snapshot)
	configure func(*engine.Engine) *engine.Engine
}

// NewReloader loads src once and builds the first engine. It fails if the
// initial load fails.
func NewReloader(ctx context.Context, src Source, config *engine.Config, logger *slog.Logger) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reloader{
		source: src,
		config: config,
		base:   logger,
		logger: logger.With("component", "rules.reload"),
	}
	if _, err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// WithEngineOptions sets a function applied to every engine the reloader
// builds, such as attaching an observer. It rebuilds the current engine.
func (r *Reloader) WithEngineOptions(configure func(*engine.Engine) *engine.Engine) *Reloader {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configure = configure
	if e := r.current.Load(); e != nil && configure != nil {
		r.current.Store(configure(e))
	}
	return r
}

// OnReload registers a callback run after each successful reload that
// changed the rules.
func (r *Reloader) OnReload(fn func(*engine.Engine, *Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = append(r.onReload, fn)
}

// Engine returns the current engine.
func (r *Reloader) Engine() *engine.Engine {
	return r.current.Load()
}

// Snapshot returns the snapshot the current engine was built from.
func (r *Reloader) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// Reload loads the source again. It reports whether the rules changed. On
// error the current engine stays in service.
func (r *Reloader) Reload(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.source.Load(ctx)
	if err != nil {
		r.logger.Error("rule reload failed, keeping previous rules", "error", err)
		return false, err
	}
	if r.snapshot != nil && r.snapshot.Hash == snap.Hash {
		r.logger.Debug("rules unchanged", "hash", snap.Hash)
		return false, nil
	}

	e, err := engine.New(snap.Set, r.config, r.base)
	if err != nil {
		return false, err
	}
	if r.configure != nil {
		e = r.configure(e)
	}

	r.current.Store(e)
	r.snapshot = snap
	r.logger.Info("rules reloaded",
		"hash", snap.Hash,
		"rule_count", len(snap.Set.Rules),
	)

	for _, fn := range r.onReload {
		fn(e, snap)
	}
	return true, nil
}
