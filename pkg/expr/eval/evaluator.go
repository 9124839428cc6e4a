package eval

import (
	"errors"
	"math"
	"strings"
	"time"

	"tally-hq/tally/pkg/expr/ast"
	"tally-hq/tally/pkg/txn"
)

// Env is everything an expression can see.
type Env struct {
	// Txn is the transaction under evaluation. Pattern functions such as
	// contains() read its description.
	Txn *txn.Transaction

	// Vars holds file-level variables and let-bindings, keyed by lowercase
	// name. A nil value is a binding whose evaluation failed.
	Vars map[string]any

	// Sources are the named data sources available to comprehensions.
	Sources txn.DataSources
}

// Eval evaluates node in env.
func Eval(node ast.Node, env *Env) (any, error) {
	if env == nil {
		env = &Env{}
	}
	e := &evaluator{env: env}
	return e.eval(node)
}

// EvalBool evaluates node and reports whether the result is truthy.
func EvalBool(node ast.Node, env *Env) (bool, error) {
	v, err := Eval(node, env)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

type binding struct {
	name  string
	value any
}

type evaluator struct {
	env    *Env
	locals []binding
}

func (e *evaluator) eval(node ast.Node) (any, error) {
	switch n := node.(type) {
	case *ast.Literal:
		return n.Value, nil
	case *ast.Ident:
		return e.lookup(n.Name, n.Offset)
	case *ast.List:
		out := make([]any, 0, len(n.Elems))
		for _, elem := range n.Elems {
			v, err := e.eval(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *ast.Unary:
		return e.evalUnary(n)
	case *ast.Binary:
		x, err := e.eval(n.X)
		if err != nil {
			return nil, err
		}
		y, err := e.eval(n.Y)
		if err != nil {
			return nil, err
		}
		v, err := arithmetic(n.Op, x, y)
		if err != nil {
			return nil, wrapError(n.Offset, err, "invalid %q operation", n.Op)
		}
		return v, nil
	case *ast.Logical:
		x, err := e.eval(n.X)
		if err != nil {
			return nil, err
		}
		if (n.Op == "and") != Truthy(x) {
			return x, nil
		}
		return e.eval(n.Y)
	case *ast.Compare:
		return e.evalCompare(n)
	case *ast.Attr:
		return e.evalAttr(n)
	case *ast.Index:
		return e.evalIndex(n)
	case *ast.Call:
		return e.call(n)
	case *ast.Conditional:
		test, err := e.eval(n.Test)
		if err != nil {
			return nil, err
		}
		if Truthy(test) {
			return e.eval(n.Then)
		}
		return e.eval(n.Else)
	case *ast.Comprehension:
		return e.evalComprehension(n)
	case nil:
		return nil, errorf(0, "empty expression")
	}
	return nil, errorf(node.Pos(), "unsupported expression %T", node)
}

func (e *evaluator) evalUnary(n *ast.Unary) (any, error) {
	x, err := e.eval(n.X)
	if err != nil {
		return nil, err
	}
	if n.Op == "not" {
		return !Truthy(x), nil
	}
	f, ok := toNumber(x)
	if !ok {
		return nil, errorf(n.Offset, "bad operand type for unary %s: %s", n.Op, TypeName(x))
	}
	if n.Op == "-" {
		return -f, nil
	}
	return f, nil
}

func (e *evaluator) evalCompare(n *ast.Compare) (any, error) {
	left, err := e.eval(n.Operands[0])
	if err != nil {
		return nil, err
	}
	for i, op := range n.Ops {
		right, err := e.eval(n.Operands[i+1])
		if err != nil {
			return nil, err
		}
		ok, err := compareValues(op, left, right)
		if err != nil {
			return nil, wrapError(n.Operands[i].Pos(), err, "invalid comparison %q", op)
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func compareValues(op string, a, b any) (bool, error) {
	switch op {
	case "==":
		return Equal(a, b), nil
	case "!=":
		return !Equal(a, b), nil
	case "in":
		return contains(a, b)
	case "not in":
		in, err := contains(a, b)
		return !in, err
	}
	c, err := compareOrdered(a, b)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, errors.New("unknown comparison operator")
}

// lookup resolves a bare name: comprehension variables, then variables and
// let-bindings, then transaction fields, then data sources.
func (e *evaluator) lookup(name string, offset int) (any, error) {
	key := strings.ToLower(name)
	for i := len(e.locals) - 1; i >= 0; i-- {
		if e.locals[i].name == key {
			return e.locals[i].value, nil
		}
	}
	if v, ok := e.env.Vars[key]; ok {
		return normalizeValue(v), nil
	}
	if v, ok, err := e.txnField(key, offset); ok {
		return v, err
	}
	if rows, ok := e.source(name); ok {
		list, _ := toList(rows)
		return list, nil
	}
	return nil, errorf(offset, "unknown identifier %q", name)
}

func (e *evaluator) source(name string) ([]txn.Row, bool) {
	if rows, ok := e.env.Sources[name]; ok {
		return rows, true
	}
	for k, rows := range e.env.Sources {
		if strings.EqualFold(k, name) {
			return rows, true
		}
	}
	return nil, false
}

// txnField returns a built-in transaction field. ok is false when name is not
// a transaction field at all.
func (e *evaluator) txnField(name string, offset int) (v any, ok bool, err error) {
	switch name {
	case "description", "raw_description", "amount", "date", "month", "year", "day", "weekday", "source":
	default:
		return nil, false, nil
	}

	t := e.env.Txn
	if t == nil {
		return nil, true, errorf(offset, "no transaction in scope for %q", name)
	}
	switch name {
	case "description":
		return t.Description, true, nil
	case "raw_description":
		return t.Raw(), true, nil
	case "amount":
		return t.Amount, true, nil
	case "source":
		return t.Source, true, nil
	}

	if t.Date.IsZero() {
		return nil, true, errorf(offset, "transaction has no date")
	}
	switch name {
	case "month":
		return float64(t.Date.Month()), true, nil
	case "year":
		return float64(t.Date.Year()), true, nil
	case "day":
		return float64(t.Date.Day()), true, nil
	case "weekday":
		// Monday is 0.
		return float64((int(t.Date.Weekday()) + 6) % 7), true, nil
	}
	return t.Date, true, nil
}

// customField resolves field.<name>: custom fields first, then the
// top-level transaction fields of the same name.
func (e *evaluator) customField(name string, offset int) (any, error) {
	if e.env.Txn == nil {
		return nil, errorf(offset, "no transaction in scope for field.%s", name)
	}
	if v, ok := e.env.Txn.Field(name); ok {
		return v, nil
	}
	if v, ok, err := e.txnField(strings.ToLower(name), offset); ok {
		return v, err
	}
	return nil, errorf(offset, "transaction has no field %q", name)
}

func (e *evaluator) evalAttr(n *ast.Attr) (any, error) {
	if id, ok := n.X.(*ast.Ident); ok {
		switch strings.ToLower(id.Name) {
		case "txn":
			v, ok, err := e.txnField(strings.ToLower(n.Name), n.Offset)
			if !ok {
				if e.env.Txn != nil {
					if f, found := e.env.Txn.Field(n.Name); found {
						return f, nil
					}
				}
				return nil, errorf(n.Offset, "transaction has no attribute %q", n.Name)
			}
			return v, err
		case "field":
			return e.customField(n.Name, n.Offset)
		}
	}

	x, err := e.eval(n.X)
	if err != nil {
		return nil, err
	}
	return attribute(x, n.Name, n.Offset)
}

func attribute(x any, name string, offset int) (any, error) {
	switch v := x.(type) {
	case map[string]any:
		if val, ok := v[name]; ok {
			return normalizeValue(val), nil
		}
		for k, val := range v {
			if strings.EqualFold(k, name) {
				return normalizeValue(val), nil
			}
		}
		return nil, errorf(offset, "row has no attribute %q", name)
	case time.Time:
		switch name {
		case "year":
			return float64(v.Year()), nil
		case "month":
			return float64(v.Month()), nil
		case "day":
			return float64(v.Day()), nil
		case "weekday":
			return float64((int(v.Weekday()) + 6) % 7), nil
		}
	case nil:
		return nil, errorf(offset, "cannot read attribute %q of None", name)
	}
	return nil, errorf(offset, "%s has no attribute %q", TypeName(x), name)
}

func (e *evaluator) evalIndex(n *ast.Index) (any, error) {
	x, err := e.eval(n.X)
	if err != nil {
		return nil, err
	}
	idx, err := e.eval(n.Index)
	if err != nil {
		return nil, err
	}

	switch v := x.(type) {
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, errorf(n.Offset, "row keys must be strings, got %s", TypeName(idx))
		}
		return attribute(v, key, n.Offset)
	case []any:
		i, err := index(idx, len(v), n.Offset)
		if err != nil {
			return nil, err
		}
		return v[i], nil
	case string:
		runes := []rune(v)
		i, err := index(idx, len(runes), n.Offset)
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	}
	return nil, errorf(n.Offset, "%s is not subscriptable", TypeName(x))
}

func index(idx any, length, offset int) (int, error) {
	f, ok := toNumber(idx)
	if !ok || f != math.Trunc(f) {
		return 0, errorf(offset, "indices must be integers, got %s", TypeName(idx))
	}
	i := int(f)
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, errorf(offset, "index %d out of range", int(f))
	}
	return i, nil
}

func (e *evaluator) evalComprehension(n *ast.Comprehension) (any, error) {
	out := []any{}
	err := e.iterate(n, func(v any) bool {
		out = append(out, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// iterate evaluates n one element at a time and stops early when yield
// returns false. Elements after that point are never evaluated.
func (e *evaluator) iterate(n *ast.Comprehension, yield func(any) bool) error {
	src, err := e.eval(n.Iter)
	if err != nil {
		return err
	}
	items, ok := toList(src)
	if !ok {
		return errorf(n.Iter.Pos(), "cannot iterate over %s", TypeName(src))
	}

	for _, item := range items {
		e.locals = append(e.locals, binding{name: n.Var, value: normalizeValue(item)})
		v, keep, err := e.project(n)
		e.locals = e.locals[:len(e.locals)-1]
		if err != nil {
			return err
		}
		if keep && !yield(v) {
			return nil
		}
	}
	return nil
}

func (e *evaluator) project(n *ast.Comprehension) (any, bool, error) {
	for _, cond := range n.Conds {
		ok, err := e.eval(cond)
		if err != nil {
			return nil, false, err
		}
		if !Truthy(ok) {
			return nil, false, nil
		}
	}
	v, err := e.eval(n.Elem)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
