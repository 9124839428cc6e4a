package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"tally-hq/tally/pkg/expr"
	"tally-hq/tally/pkg/rules"
)

const ruleColumns = `id, name, match_expr, category, subcategory, merchant, tags, priority,
	position, source_line, is_complex, let_bindings, fields, transform`

const qualifiedRuleColumns = `rules.id, rules.name, rules.match_expr, rules.category,
	rules.subcategory, rules.merchant, rules.tags, rules.priority, rules.position,
	rules.source_line, rules.is_complex, rules.let_bindings, rules.fields, rules.transform`

const insertRuleSQL = `
	INSERT INTO rules (name, match_expr, category, subcategory, merchant, tags, priority,
		position, source_line, is_complex, let_bindings, fields, transform)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (int64, *CachedRule, error) {
	var (
		id                 int64
		r                  CachedRule
		tags, lets, fields string
		isComplex          int
	)
	err := s.Scan(&id, &r.Name, &r.Match, &r.Category, &r.Subcategory, &r.Merchant, &tags,
		&r.Priority, &r.Position, &r.SourceLine, &isComplex, &lets, &fields, &r.Transform)
	if err != nil {
		return 0, nil, err
	}
	r.IsComplex = isComplex != 0
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return 0, nil, err
	}
	if err := json.Unmarshal([]byte(lets), &r.Lets); err != nil {
		return 0, nil, err
	}
	if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
		return 0, nil, err
	}
	return id, &r, nil
}

// ruleArgs returns the insert arguments for r in insertRuleSQL order.
func ruleArgs(r *CachedRule) ([]any, error) {
	tags := slices.Clone(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	slices.Sort(tags)
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	lets, err := marshalAssignments(r.Lets)
	if err != nil {
		return nil, err
	}
	fields, err := marshalAssignments(r.Fields)
	if err != nil {
		return nil, err
	}
	return []any{
		r.Name, r.Match, r.Category, r.Subcategory, r.Merchant, string(tagsJSON), r.Priority,
		r.Position, r.SourceLine, boolInt(r.IsComplex), lets, fields, r.Transform,
	}, nil
}

func marshalAssignments(as []rules.Assignment) (string, error) {
	if as == nil {
		as = []rules.Assignment{}
	}
	b, err := json.Marshal(as)
	return string(b), err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// findRule looks a rule up by case-insensitive name, then by exact match
// expression. Either key may be empty.
func findRule(ctx context.Context, tx *sql.Tx, name, match string) (int64, *CachedRule, error) {
	if name != "" {
		id, r, err := scanRule(tx.QueryRowContext(ctx,
			`SELECT `+ruleColumns+` FROM rules WHERE LOWER(name) = LOWER(?) ORDER BY position LIMIT 1`, name))
		if err == nil {
			return id, r, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, nil, err
		}
	}
	if match != "" {
		id, r, err := scanRule(tx.QueryRowContext(ctx,
			`SELECT `+ruleColumns+` FROM rules WHERE match_expr = ? ORDER BY position LIMIT 1`, match))
		if err == nil {
			return id, r, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, nil, err
		}
	}
	return 0, nil, ErrRuleNotFound
}

func updateRow(ctx context.Context, tx *sql.Tx, id int64, r *CachedRule) error {
	args, err := ruleArgs(r)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE rules SET name = ?, match_expr = ?, category = ?, subcategory = ?, merchant = ?,
			tags = ?, priority = ?, position = ?, source_line = ?, is_complex = ?,
			let_bindings = ?, fields = ?, transform = ?
		WHERE id = ?`, append(args, id)...)
	return err
}

// normalizeTags trims and dedupes tags, lowercasing static ones. Dynamic
// {expression} tags are kept as written.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if !strings.HasPrefix(t, "{") {
			t = strings.ToLower(t)
		}
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// AddOrUpdateRule stores a rule. An existing rule with the same name
// (case-insensitive), or failing that the same match expression, is
// updated with the non-nil fields of change. Otherwise a new rule is
// appended after the last one.
func (c *Cache) AddOrUpdateRule(ctx context.Context, change RuleChange) (*CachedRule, Action, error) {
	change.Name = strings.TrimSpace(change.Name)
	change.Match = strings.TrimSpace(change.Match)
	if change.Match != "" {
		if _, err := expr.Compile(change.Match); err != nil {
			return nil, "", &ValidationError{Field: "match", Message: err.Error()}
		}
	}
	if change.Tags != nil {
		change.Tags = normalizeTags(change.Tags)
	}

	var (
		out    *CachedRule
		action Action
	)
	err := c.write(ctx, "add_or_update_rule", func(tx *sql.Tx) error {
		id, r, err := findRule(ctx, tx, change.Name, change.Match)
		switch {
		case err == nil:
			action = ActionUpdated
			applyChange(r, change)
			if err := validateRule(r); err != nil {
				return err
			}
			if err := updateRow(ctx, tx, id, r); err != nil {
				return err
			}
			out = r
			return nil
		case !errors.Is(err, ErrRuleNotFound):
			return err
		}

		action = ActionAdded
		r, err = newRule(change)
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM rules`).Scan(&r.Position); err != nil {
			return err
		}
		args, err := ruleArgs(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertRuleSQL, args...); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	c.logger.Info("rule stored", "rule", out.Name, "action", string(action))
	return out, action, nil
}

func applyChange(r *CachedRule, change RuleChange) {
	if change.Name != "" && !strings.EqualFold(change.Name, r.Name) {
		if r.Merchant == r.Name && change.Merchant == nil {
			r.Merchant = change.Name
		}
		r.Name = change.Name
	}
	if change.Match != "" {
		r.Match = change.Match
	}
	if change.Category != nil {
		r.Category = *change.Category
	}
	if change.Subcategory != nil {
		r.Subcategory = *change.Subcategory
	}
	if change.Merchant != nil {
		r.Merchant = *change.Merchant
	}
	if change.Tags != nil {
		r.Tags = change.Tags
	}
	if change.Priority != nil {
		r.Priority = *change.Priority
	}
}

func newRule(change RuleChange) (*CachedRule, error) {
	if change.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "required for a new rule"}
	}
	if change.Match == "" {
		return nil, &ValidationError{Field: "match", Message: "required for a new rule"}
	}
	r := &CachedRule{
		Definition: rules.Definition{
			Name:     change.Name,
			Match:    change.Match,
			Merchant: change.Name,
			Tags:     change.Tags,
			Priority: rules.DefaultPriority,
		},
	}
	applyChange(r, RuleChange{
		Category:    change.Category,
		Subcategory: change.Subcategory,
		Merchant:    change.Merchant,
		Priority:    change.Priority,
	})
	if err := validateRule(r); err != nil {
		return nil, err
	}
	return r, nil
}

func validateRule(r *CachedRule) error {
	if r.Category == "" && len(r.Tags) == 0 {
		return &ValidationError{Field: "category", Message: "rule must have a category or tags"}
	}
	return nil
}

// UpdateRule edits the named rule in place. Tags are added and removed as a
// set. It returns ErrRuleNotFound if no rule has that name.
func (c *Cache) UpdateRule(ctx context.Context, name string, patch RulePatch) (*CachedRule, error) {
	var out *CachedRule
	err := c.write(ctx, "update_rule", func(tx *sql.Tx) error {
		id, r, err := findRule(ctx, tx, strings.TrimSpace(name), "")
		if err != nil {
			return err
		}
		if patch.Category != nil {
			r.Category = *patch.Category
		}
		if patch.Subcategory != nil {
			r.Subcategory = *patch.Subcategory
		}
		if patch.Priority != nil {
			r.Priority = *patch.Priority
		}
		if len(patch.AddTags) > 0 || len(patch.RemoveTags) > 0 {
			remove := normalizeTags(patch.RemoveTags)
			tags := normalizeTags(append(slices.Clone(r.Tags), patch.AddTags...))
			r.Tags = slices.DeleteFunc(tags, func(t string) bool { return slices.Contains(remove, t) })
		}
		if err := validateRule(r); err != nil {
			return err
		}
		out = r
		return updateRow(ctx, tx, id, r)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("rule updated", "rule", out.Name)
	return out, nil
}

// DeleteByName deletes the rule with the given name (case-insensitive) and
// its matches. It reports whether a rule was deleted.
func (c *Cache) DeleteByName(ctx context.Context, name string) (bool, error) {
	return c.deleteWhere(ctx, "delete_by_name", `LOWER(name) = LOWER(?)`, strings.TrimSpace(name))
}

// DeleteByMatch deletes every rule with exactly the given match expression
// and their matches. It reports whether any rule was deleted.
func (c *Cache) DeleteByMatch(ctx context.Context, match string) (bool, error) {
	return c.deleteWhere(ctx, "delete_by_match", `match_expr = ?`, strings.TrimSpace(match))
}

func (c *Cache) deleteWhere(ctx context.Context, op, where string, arg string) (bool, error) {
	var deleted int64
	err := c.write(ctx, op, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM matches WHERE rule_id IN (SELECT id FROM rules WHERE `+where+`)`, arg); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE `+where, arg)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	if deleted > 0 {
		c.logger.Info("rule deleted", "key", arg, "count", deleted)
	}
	return deleted > 0, nil
}
