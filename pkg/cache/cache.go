package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"tally-hq/tally/pkg/engine"
	"tally-hq/tally/pkg/rules"
	"tally-hq/tally/pkg/txn"
)

// Matcher is the part of the rules engine the cache needs to record
// matches. *engine.Engine implements it.
type Matcher interface {
	RuleSet() *rules.RuleSet
	Mode() engine.MatchMode
	Match(t *txn.Transaction, sources txn.DataSources) *engine.MatchResult
}

// Cache is a SQLite-backed rule cache.
type Cache struct {
	db     *sql.DB
	config *Config
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open opens the cache database, creating it and applying migrations as
// needed. A nil config uses DefaultConfig.
func Open(ctx context.Context, config *Config, logger *slog.Logger) (*Cache, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rules.cache")

	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, NewStorageError(config.Driver, "create_dir", err)
	}

	path := config.Path()
	if err := migrateSchema(config.Driver, path); err != nil {
		return nil, NewStorageError(config.Driver, "migrate", err)
	}

	db, err := sql.Open(config.Driver, path)
	if err != nil {
		return nil, NewStorageError(config.Driver, "open", err)
	}
	// One connection keeps per-connection pragmas in force for every query.
	db.SetMaxOpenConns(1)

	c := &Cache{db: db, config: config, logger: logger}
	if err := c.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("rule cache opened",
		"path", path,
		"driver", config.Driver,
	)
	return c, nil
}

func (c *Cache) initialize(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", c.config.BusyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := c.db.ExecContext(ctx, p); err != nil {
			return NewStorageError(c.config.Driver, "pragma", err)
		}
	}
	return nil
}

// Close closes the database. Further calls return ErrCacheClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.config.Path()
}

// read runs fn while holding the read lock on an open cache.
func (c *Cache) read(fn func() error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrCacheClosed
	}
	return fn()
}

// write runs fn in a transaction while holding the write lock. The
// transaction commits only if fn returns nil.
func (c *Cache) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError(c.config.Driver, op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		var storageErr *StorageError
		if errors.As(err, &storageErr) || errors.Is(err, ErrRuleNotFound) {
			return err
		}
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return err
		}
		return NewStorageError(c.config.Driver, op, err)
	}
	if err := tx.Commit(); err != nil {
		return NewStorageError(c.config.Driver, op, err)
	}
	return nil
}

// IsValid reports whether the cache was built from the current rule file
// and, when requireData is set, from the current data files. A missing rule
// file is never valid.
func (c *Cache) IsValid(ctx context.Context, rulesPath string, dataPaths []string, requireData bool) (bool, error) {
	if _, err := os.Stat(rulesPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	rulesHash, err := HashFile(rulesPath)
	if err != nil {
		return false, err
	}
	stored, err := c.meta(ctx, metaRulesHash)
	if err != nil {
		return false, err
	}
	if stored != rulesHash {
		return false, nil
	}

	if requireData {
		dataHash, err := HashFiles(dataPaths)
		if err != nil {
			return false, err
		}
		stored, err := c.meta(ctx, metaDataHash)
		if err != nil {
			return false, err
		}
		if stored != dataHash {
			return false, nil
		}
	}
	return true, nil
}

// Rebuild replaces the cache contents: rules, transactions and the rules
// each transaction matched. Hashes are written last, inside the same
// transaction.
func (c *Cache) Rebuild(ctx context.Context, b *Build) error {
	rulesHash, err := HashFile(b.RulesPath)
	if err != nil {
		return fmt.Errorf("hash rules: %w", err)
	}
	dataHash, err := HashFiles(b.DataPaths)
	if err != nil {
		return fmt.Errorf("hash data files: %w", err)
	}

	start := time.Now()
	var matchRows int
	err = c.write(ctx, "rebuild", func(tx *sql.Tx) error {
		if err := clearTables(ctx, tx); err != nil {
			return err
		}
		ids, err := insertRules(ctx, tx, b.Engine.RuleSet().Rules)
		if err != nil {
			return err
		}
		if err := insertTransactions(ctx, tx, b.Transactions); err != nil {
			return err
		}
		if matchRows, err = insertMatches(ctx, tx, b, ids); err != nil {
			return err
		}
		return storeBuildMeta(ctx, tx, b.Engine, rulesHash, dataHash)
	})
	if err != nil {
		return err
	}

	c.logger.Info("rule cache rebuilt",
		"rules", len(b.Engine.RuleSet().Rules),
		"transactions", len(b.Transactions),
		"matches", matchRows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// RebuildRulesOnly replaces the cache contents with rules alone.
func (c *Cache) RebuildRulesOnly(ctx context.Context, rulesPath string, m Matcher) error {
	rulesHash := ""
	if _, err := os.Stat(rulesPath); err == nil {
		if rulesHash, err = HashFile(rulesPath); err != nil {
			return fmt.Errorf("hash rules: %w", err)
		}
	}

	return c.write(ctx, "rebuild_rules", func(tx *sql.Tx) error {
		if err := clearTables(ctx, tx); err != nil {
			return err
		}
		if _, err := insertRules(ctx, tx, m.RuleSet().Rules); err != nil {
			return err
		}
		return storeBuildMeta(ctx, tx, m, rulesHash, "")
	})
}

func clearTables(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"rules", "transactions", "matches", "cache_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func insertRules(ctx context.Context, tx *sql.Tx, rs []*rules.Rule) (map[*rules.Rule]int64, error) {
	stmt, err := tx.PrepareContext(ctx, insertRuleSQL)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make(map[*rules.Rule]int64, len(rs))
	for pos, r := range rs {
		cr := &CachedRule{
			Definition: *r.Definition(),
			Position:   pos,
			SourceLine: r.Line,
			IsComplex:  r.IsComplex(),
		}
		args, err := ruleArgs(cr)
		if err != nil {
			return nil, err
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return nil, err
		}
		if ids[r], err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func insertTransactions(ctx context.Context, tx *sql.Tx, txns []*txn.Transaction) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO transactions (id, description, normalized_desc, amount, date, source)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range txns {
		date := ""
		if !t.Date.IsZero() {
			date = t.Date.Format(txn.DateLayout)
		}
		if _, err := stmt.ExecContext(ctx, t.ID(), t.Raw(), t.Description, t.Amount, date, t.Source); err != nil {
			return err
		}
	}
	return nil
}

func insertMatches(ctx context.Context, tx *sql.Tx, b *Build, ids map[*rules.Rule]int64) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO matches (rule_id, txn_id, match_type) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for i, t := range b.Transactions {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		res := b.Engine.Match(t, b.Sources)
		id := t.ID()
		for _, r := range res.MatchingRules {
			ruleID, ok := ids[r]
			if !ok {
				continue
			}
			mt := MatchCategory
			if r.IsTagOnly() {
				mt = MatchTagOnly
			}
			if _, err := stmt.ExecContext(ctx, ruleID, id, string(mt)); err != nil {
				return 0, err
			}
			n++
		}
		if b.Progress != nil {
			b.Progress(i+1, len(b.Transactions))
		}
	}
	return n, nil
}

func storeBuildMeta(ctx context.Context, tx *sql.Tx, m Matcher, rulesHash, dataHash string) error {
	preamble, err := json.Marshal(m.RuleSet().Preamble())
	if err != nil {
		return err
	}
	meta := [][2]string{
		{metaPreamble, string(preamble)},
		{metaBuildID, uuid.NewString()},
		{metaMatchMode, string(m.Mode())},
		{metaLastComputed, time.Now().UTC().Format(time.RFC3339Nano)},
		{metaDataHash, dataHash},
		{metaRulesHash, rulesHash},
	}
	for _, kv := range meta {
		if err := setMeta(ctx, tx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO cache_meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// meta returns a cache_meta value, or "" when the key is absent.
func (c *Cache) meta(ctx context.Context, key string) (string, error) {
	var value string
	err := c.read(func() error {
		err := c.db.QueryRowContext(ctx, `SELECT value FROM cache_meta WHERE key = ?`, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return "", c.storageError("meta", err)
	}
	return value, nil
}

func (c *Cache) storageError(op string, err error) error {
	if errors.Is(err, ErrCacheClosed) {
		return err
	}
	return NewStorageError(c.config.Driver, op, err)
}

// Rules returns the cached rules in file order.
func (c *Cache) Rules(ctx context.Context) ([]*CachedRule, error) {
	return c.queryRules(ctx, "rules", `SELECT `+ruleColumns+` FROM rules ORDER BY position`)
}

// UnusedRules returns the rules that matched no cached transaction.
func (c *Cache) UnusedRules(ctx context.Context) ([]*CachedRule, error) {
	return c.queryRules(ctx, "unused_rules", `
		SELECT `+qualifiedRuleColumns+`
		FROM rules LEFT JOIN matches ON matches.rule_id = rules.id
		WHERE matches.txn_id IS NULL
		ORDER BY rules.position`)
}

// SearchRules returns the rules whose name or match expression contains
// pattern. The comparison is case-insensitive for ASCII.
func (c *Cache) SearchRules(ctx context.Context, pattern string) ([]*CachedRule, error) {
	like := "%" + pattern + "%"
	return c.queryRules(ctx, "search_rules", `
		SELECT `+ruleColumns+` FROM rules
		WHERE name LIKE ? OR match_expr LIKE ?
		ORDER BY position`, like, like)
}

func (c *Cache) queryRules(ctx context.Context, op, query string, args ...any) ([]*CachedRule, error) {
	var out []*CachedRule
	err := c.read(func() error {
		rows, err := c.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			_, r, err := scanRule(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, c.storageError(op, err)
	}
	return out, nil
}

// MatchCounts returns every rule with the number of transactions it
// matched, in file order.
func (c *Cache) MatchCounts(ctx context.Context) ([]RuleCount, error) {
	var out []RuleCount
	err := c.read(func() error {
		rows, err := c.db.QueryContext(ctx, `
			SELECT rules.name, COUNT(matches.txn_id)
			FROM rules LEFT JOIN matches ON matches.rule_id = rules.id
			GROUP BY rules.id
			ORDER BY rules.position`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rc RuleCount
			if err := rows.Scan(&rc.Name, &rc.Count); err != nil {
				return err
			}
			out = append(out, rc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, c.storageError("match_counts", err)
	}
	return out, nil
}

// Transactions returns the cached transactions.
func (c *Cache) Transactions(ctx context.Context) ([]*CachedTransaction, error) {
	var out []*CachedTransaction
	err := c.read(func() error {
		rows, err := c.db.QueryContext(ctx, `
			SELECT id, description, normalized_desc, amount, date, source
			FROM transactions ORDER BY date, id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t := &CachedTransaction{}
			if err := rows.Scan(&t.ID, &t.RawDescription, &t.Description, &t.Amount, &t.Date, &t.Source); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, c.storageError("transactions", err)
	}
	return out, nil
}

// MatchingRules returns the names of the rules a cached transaction
// matched, in file order.
func (c *Cache) MatchingRules(ctx context.Context, txnID string) ([]string, error) {
	var out []string
	err := c.read(func() error {
		rows, err := c.db.QueryContext(ctx, `
			SELECT rules.name FROM matches JOIN rules ON rules.id = matches.rule_id
			WHERE matches.txn_id = ?
			ORDER BY rules.position`, txnID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			out = append(out, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, c.storageError("matching_rules", err)
	}
	return out, nil
}

// Invalidate clears the cache metadata so the next validity check fails.
// Rules and matches stay in place until the next rebuild.
func (c *Cache) Invalidate(ctx context.Context) error {
	err := c.write(ctx, "invalidate", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM cache_meta`)
		return err
	})
	if err == nil {
		c.logger.Info("rule cache invalidated")
	}
	return err
}

// MarkMatchesStale drops transactions and matches and clears the data
// hash, keeping rule metadata and the preamble.
func (c *Cache) MarkMatchesStale(ctx context.Context) error {
	return c.write(ctx, "mark_matches_stale", func(tx *sql.Tx) error {
		for _, q := range []string{`DELETE FROM matches`, `DELETE FROM transactions`} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
		return setMeta(ctx, tx, metaDataHash, "")
	})
}

// Status summarizes the cache.
func (c *Cache) Status(ctx context.Context) (*Status, error) {
	s := &Status{Path: c.Path()}
	err := c.read(func() error {
		rows, err := c.db.QueryContext(ctx, `SELECT key, value FROM cache_meta`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				return err
			}
			switch k {
			case metaRulesHash:
				s.RulesHash = v
			case metaDataHash:
				s.DataHash = v
			case metaBuildID:
				s.BuildID = v
			case metaMatchMode:
				s.MatchMode = v
			case metaLastComputed:
				s.LastComputed, _ = time.Parse(time.RFC3339Nano, v)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		counts := []struct {
			table string
			dst   *int
		}{
			{"rules", &s.Rules},
			{"transactions", &s.Transactions},
			{"matches", &s.Matches},
		}
		for _, cnt := range counts {
			if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+cnt.table).Scan(cnt.dst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, c.storageError("status", err)
	}
	return s, nil
}
