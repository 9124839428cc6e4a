package cache

import (
	"fmt"
	"path/filepath"
	"time"
)

// Supported SQLite drivers.
const (
	DriverSQLite  = "sqlite"  // modernc.org/sqlite
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3
)

// Config contains configuration for the rule cache.
type Config struct {
	// Dir is the directory holding the cache database.
	// Default: ".tally"
	Dir string

	// FileName is the database file name inside Dir.
	// Default: "cache.db"
	FileName string

	// Driver selects the SQLite driver, DriverSQLite or DriverSQLite3.
	// Default: DriverSQLite
	Driver string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Dir:         ".tally",
		FileName:    "cache.db",
		Driver:      DriverSQLite,
		BusyTimeout: 5 * time.Second,
	}
}

// Path returns the database file path.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, c.FileName)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: dir cannot be empty", ErrInvalidConfig)
	}
	if c.FileName == "" {
		return fmt.Errorf("%w: file name cannot be empty", ErrInvalidConfig)
	}
	switch c.Driver {
	case DriverSQLite, DriverSQLite3:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, c.Driver)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("%w: busy timeout cannot be negative", ErrInvalidConfig)
	}
	return nil
}
