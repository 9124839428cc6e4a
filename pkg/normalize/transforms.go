package normalize

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tally-hq/tally/pkg/expr/eval"
	"tally-hq/tally/pkg/rules"
	"tally-hq/tally/pkg/txn"
)

// RawPrefix prefixes the keys that keep pre-transform values.
const RawPrefix = "_raw_"

// ApplyTransforms runs field transforms against t in order, modifying it in
// place. Each transform sees the result of the ones before it. A transform
// that fails to evaluate, or whose result does not fit the field, is skipped.
//
// It returns the original value of every field a transform touched, keyed
// "_raw_<name>". Only the first original is kept when several transforms
// write the same field.
func ApplyTransforms(t *txn.Transaction, transforms []rules.Binding, sources txn.DataSources, logger *slog.Logger) map[string]string {
	if logger == nil {
		logger = slog.Default()
	}
	raw := make(map[string]string)

	for _, tr := range transforms {
		name := strings.TrimPrefix(tr.Name, "field.")
		v, err := tr.Expr.Eval(&eval.Env{Txn: t, Sources: sources})
		if err != nil {
			logger.Debug("transform evaluation failed",
				"transform", tr.Name,
				"error", err,
			)
			continue
		}

		old := current(t, name)
		if err := assign(t, name, v); err != nil {
			logger.Debug("transform result rejected",
				"transform", tr.Name,
				"error", err,
			)
			continue
		}
		if _, ok := raw[RawPrefix+name]; !ok {
			raw[RawPrefix+name] = old
		}
	}
	return raw
}

func current(t *txn.Transaction, name string) string {
	switch name {
	case "description":
		return t.Description
	case "amount":
		return txn.FormatAmount(t.Amount)
	case "date":
		if t.Date.IsZero() {
			return ""
		}
		return t.Date.Format(txn.DateLayout)
	}
	v, _ := t.Field(name)
	return v
}

func assign(t *txn.Transaction, name string, v any) error {
	switch name {
	case "description":
		t.Description = eval.ToString(v)
	case "amount":
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		t.Amount = f
	case "date":
		switch d := v.(type) {
		case time.Time:
			t.Date = d
		default:
			parsed, err := txn.ParseDate(eval.ToString(v))
			if err != nil {
				return err
			}
			t.Date = parsed
		}
	default:
		if t.Fields == nil {
			t.Fields = make(map[string]string)
		}
		t.Fields[name] = eval.ToString(v)
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("amount %q is not a number", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("amount cannot be %s", eval.TypeName(v))
}
