package engine

import "sync"

var (
	defaultEngine   *Engine
	defaultEngineMu sync.RWMutex
)

// SetDefault makes e the process-wide default engine.
func SetDefault(e *Engine) {
	defaultEngineMu.Lock()
	defer defaultEngineMu.Unlock()
	defaultEngine = e
}

// Default returns the process-wide default engine, or nil if none is set.
func Default() *Engine {
	defaultEngineMu.RLock()
	defer defaultEngineMu.RUnlock()
	return defaultEngine
}

// ClearDefault removes the process-wide default engine.
func ClearDefault() {
	SetDefault(nil)
}
