package health

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Check statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Overall report statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc checks one component. It returns nil if the component is
// healthy, an error wrapping ErrSkipped if the component is not in use, or
// an error describing the problem.
type CheckFunc func(ctx context.Context) error

var (
	// ErrCheckTimeout is reported when a check runs past the timeout.
	ErrCheckTimeout = errors.New("health check timeout")

	// ErrSkipped marks a check that does not apply, such as the cache
	// check when the cache is disabled.
	ErrSkipped = errors.New("skipped")
)

// Skip returns an error that marks a check as skipped with reason.
func Skip(reason string) error {
	return &skipError{reason: reason}
}

type skipError struct {
	reason string
}

func (e *skipError) Error() string { return e.reason }
func (e *skipError) Unwrap() error { return ErrSkipped }

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report is the outcome of running every registered check.
type Report struct {
	// Status is StatusHealthy unless a check failed.
	Status string `json:"status"`

	// Checks are in registration order.
	Checks []CheckResult `json:"checks"`

	Timestamp time.Time `json:"timestamp"`
}

// Healthy reports whether no check failed.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Checker runs health checks for named components.
type Checker struct {
	mu     sync.RWMutex
	names  []string
	checks map[string]CheckFunc

	// Timeout for individual checks
	checkTimeout time.Duration
}

// New creates a checker with the given per-check timeout.
// If timeout is 0, defaults to 5 seconds per check.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}

	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
	}
}

// RegisterCheck registers a check for a named component. A check
// registered again under the same name replaces the earlier one and keeps
// its position.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.checks[name]; !ok {
		c.names = append(c.names, name)
	}
	c.checks[name] = check
}

// UnregisterCheck removes the check for a named component.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.checks[name]; !ok {
		return
	}
	delete(c.checks, name)
	for i, n := range c.names {
		if n == name {
			c.names = append(c.names[:i], c.names[i+1:]...)
			break
		}
	}
}

// Run executes all registered checks concurrently and returns their
// results in registration order.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := append([]string(nil), c.names...)
	checks := make([]CheckFunc, len(names))
	for i, name := range names {
		checks[i] = c.checks[name]
	}
	c.mu.RUnlock()

	results := make([]CheckResult, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.runCheck(ctx, checks[i])
			results[i].Name = names[i]
		}(i)
	}
	wg.Wait()

	status := StatusHealthy
	for _, r := range results {
		if r.Status == StatusFailed {
			status = StatusUnhealthy
		}
	}

	return Report{
		Status:    status,
		Checks:    results,
		Timestamp: time.Now(),
	}
}

// runCheck executes a single check with timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()

	// Run check in goroutine to support timeout
	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	select {
	case err := <-errChan:
		duration := time.Since(start)
		switch {
		case err == nil:
			return CheckResult{Status: StatusOK, Duration: duration}
		case errors.Is(err, ErrSkipped):
			return CheckResult{Status: StatusSkipped, Message: err.Error(), Duration: duration}
		default:
			return CheckResult{Status: StatusFailed, Message: err.Error(), Duration: duration}
		}

	case <-checkCtx.Done():
		return CheckResult{
			Status:   StatusFailed,
			Message:  ErrCheckTimeout.Error(),
			Duration: time.Since(start),
		}
	}
}

// GetCheck returns the check function for a named component.
// Returns nil if the check doesn't exist.
func (c *Checker) GetCheck(name string) CheckFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.checks[name]
}

// ListChecks returns the names of all registered checks in registration
// order.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]string(nil), c.names...)
}

// CheckCount returns the number of registered checks.
func (c *Checker) CheckCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.checks)
}
