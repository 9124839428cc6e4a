package expr

import (
	"fmt"

	"github.com/agnivade/levenshtein"

	"tally-hq/tally/pkg/expr/ast"
	"tally-hq/tally/pkg/expr/eval"
	"tally-hq/tally/pkg/expr/parser"
)

// Expression is a compiled expression.
type Expression struct {
	Source string
	Root   ast.Node
}

// UnknownFunctionError is returned by Compile when an expression calls a
// function that does not exist.
type UnknownFunctionError struct {
	Name       string
	Offset     int
	Suggestion string // Closest builtin name, if any is close enough
}

func (e *UnknownFunctionError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown function %q at column %d (did you mean %q?)", e.Name, e.Offset+1, e.Suggestion)
	}
	return fmt.Sprintf("unknown function %q at column %d", e.Name, e.Offset+1)
}

// Compile parses src and checks that every called function exists.
func Compile(src string) (*Expression, error) {
	root, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	var unknown *UnknownFunctionError
	ast.Inspect(root, func(n ast.Node) bool {
		if unknown != nil {
			return false
		}
		if call, ok := n.(*ast.Call); ok && !eval.IsFunction(call.Func) {
			unknown = &UnknownFunctionError{
				Name:       call.Func,
				Offset:     call.Offset,
				Suggestion: Suggest(call.Func, eval.Functions()),
			}
		}
		return true
	})
	if unknown != nil {
		return nil, unknown
	}
	return &Expression{Source: src, Root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expression {
	x, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return x
}

// Eval evaluates the expression.
func (x *Expression) Eval(env *eval.Env) (any, error) {
	return eval.Eval(x.Root, env)
}

// EvalBool evaluates the expression and reports whether the result is truthy.
func (x *Expression) EvalBool(env *eval.Env) (bool, error) {
	return eval.EvalBool(x.Root, env)
}

func (x *Expression) String() string {
	return x.Source
}

// Suggest returns the candidate closest to name by edit distance, or "" when
// none is within a third of name's length.
func Suggest(name string, candidates []string) string {
	best := ""
	bestDist := len(name)/3 + 1
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
