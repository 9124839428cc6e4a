package eval

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"tally-hq/tally/pkg/txn"
)

// Truthy reports whether v counts as true in a boolean context.
// nil, false, zero, the empty string and empty collections are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case time.Time:
		return !x.IsZero()
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	if f, ok := toNumber(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	}
	return true
}

// toNumber converts numeric Go values to float64. Booleans are not numbers.
func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// ToString renders a value the way it appears in tags and string functions.
// Integral numbers print without a fractional part.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case time.Time:
		return x.Format(txn.DateLayout)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = ToString(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	if f, ok := toNumber(v); ok {
		return formatNumber(f)
	}
	return fmt.Sprint(v)
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// TypeName returns the expression-language name of a value's type.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case bool:
		return "bool"
	case string:
		return "string"
	case time.Time:
		return "date"
	case []any:
		return "list"
	case map[string]any:
		return "row"
	}
	if _, ok := toNumber(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// Equal compares two values. Values of unrelated types are unequal rather
// than an error; a date equals a string holding the same ISO date.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toNumber(a); ok {
		bf, ok := toNumber(b)
		return ok && af == bf
	}

	switch x := a.(type) {
	case string:
		switch y := b.(type) {
		case string:
			return x == y
		case time.Time:
			d, err := txn.ParseDate(x)
			return err == nil && sameDay(d, y)
		}
		return false
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case time.Time:
		switch y := b.(type) {
		case time.Time:
			return sameDay(x, y)
		case string:
			d, err := txn.ParseDate(y)
			return err == nil && sameDay(x, d)
		}
		return false
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// compareOrdered returns -1, 0 or 1. Numbers compare with numbers, strings
// with strings and dates with dates or ISO date strings.
func compareOrdered(a, b any) (int, error) {
	if af, ok := toNumber(a); ok {
		if bf, ok := toNumber(b); ok {
			return compareFloat(af, bf), nil
		}
	}

	switch x := a.(type) {
	case string:
		switch y := b.(type) {
		case string:
			return strings.Compare(x, y), nil
		case time.Time:
			d, err := txn.ParseDate(x)
			if err != nil {
				return 0, err
			}
			return compareTime(d, y), nil
		}
	case time.Time:
		switch y := b.(type) {
		case time.Time:
			return compareTime(x, y), nil
		case string:
			d, err := txn.ParseDate(y)
			if err != nil {
				return 0, err
			}
			return compareTime(x, d), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %s with %s", TypeName(a), TypeName(b))
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareTime compares calendar days, ignoring the time of day.
func compareTime(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return compareFloat(float64(ay*10000+int(am)*100+ad), float64(by*10000+int(bm)*100+bd))
}

// contains implements the "in" operator: needle in haystack.
func contains(needle, haystack any) (bool, error) {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires a string on the left, got %s", TypeName(needle))
		}
		return strings.Contains(h, s), nil
	case []any:
		for _, item := range h {
			if Equal(needle, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		s, ok := needle.(string)
		if !ok {
			return false, nil
		}
		_, found := h[s]
		return found, nil
	}
	return false, fmt.Errorf("argument of type %s is not a container", TypeName(haystack))
}

func arithmetic(op string, a, b any) (any, error) {
	if op == "+" {
		switch x := a.(type) {
		case string:
			if y, ok := b.(string); ok {
				return x + y, nil
			}
		case []any:
			if y, ok := b.([]any); ok {
				out := make([]any, 0, len(x)+len(y))
				return append(append(out, x...), y...), nil
			}
		}
	}

	x, okA := toNumber(a)
	y, okB := toNumber(b)
	if !okA || !okB {
		return nil, fmt.Errorf("unsupported operand types for %s: %s and %s", op, TypeName(a), TypeName(b))
	}
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return x / y, nil
	case "%":
		if y == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		m := math.Mod(x, y)
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

// toList converts list-like values (lists, data-source rows) to []any.
func toList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []txn.Row:
		out := make([]any, len(x))
		for i, row := range x {
			out[i] = row
		}
		return out, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// normalizeValue maps Go values supplied by callers (ints, typed slices) onto
// the evaluator's value set.
func normalizeValue(v any) any {
	if f, ok := toNumber(v); ok {
		return f
	}
	if list, ok := toList(v); ok {
		return list
	}
	return v
}
