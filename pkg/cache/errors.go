package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleNotFound indicates no cached rule has the requested name or
	// match expression.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrCacheClosed indicates an operation on a closed cache.
	ErrCacheClosed = errors.New("cache is closed")

	// ErrInvalidConfig indicates invalid cache configuration.
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // SQLite driver name
	Operation string // Operation that failed ("rebuild", "rules", ...)
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("cache storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// ValidationError describes a rule the cache refused to store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule %s: %s", e.Field, e.Message)
}
