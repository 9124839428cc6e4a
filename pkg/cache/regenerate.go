package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tally-hq/tally/pkg/rules"
)

// Preamble returns the top-level variable and transform lines stored by the
// last rebuild.
func (c *Cache) Preamble(ctx context.Context) ([]string, error) {
	raw, err := c.meta(ctx, metaPreamble)
	if err != nil || raw == "" {
		return nil, err
	}
	var lines []string
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, NewStorageError(c.config.Driver, "preamble", err)
	}
	return lines, nil
}

// Render returns the rule file text for the cached preamble and rules.
func (c *Cache) Render(ctx context.Context) (string, error) {
	preamble, err := c.Preamble(ctx)
	if err != nil {
		return "", err
	}
	cached, err := c.Rules(ctx)
	if err != nil {
		return "", err
	}
	defs := make([]*rules.Definition, len(cached))
	for i, r := range cached {
		defs[i] = &r.Definition
	}
	return rules.FormatFile(preamble, defs), nil
}

// RegenerateRulesFile writes the cached rules back to path and records the
// new file hash, so the cache stays valid for the file it wrote. The file
// is replaced atomically.
func (c *Cache) RegenerateRulesFile(ctx context.Context, path string) error {
	text, err := c.Render(ctx)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, []byte(text)); err != nil {
		return fmt.Errorf("write rules file: %w", err)
	}

	hash, err := HashFile(path)
	if err != nil {
		return err
	}
	err = c.write(ctx, "regenerate", func(tx *sql.Tx) error {
		return setMeta(ctx, tx, metaRulesHash, hash)
	})
	if err != nil {
		return err
	}

	c.logger.Info("rules file regenerated", "path", path)
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		return err
	}
	return os.Rename(name, path)
}
