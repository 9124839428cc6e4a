// Package expr is the entry point to the rule expression language.
//
// Compile parses and validates an expression once; the resulting Expression
// is evaluated many times, once per transaction:
//
//	x, err := expr.Compile(`contains("STORE") and amount > 100`)
//	if err != nil {
//		return err // syntax error or unknown function
//	}
//	ok, err := x.EvalBool(&eval.Env{Txn: t})
//
// Subpackages:
//   - ast: syntax tree
//   - parser: lexer and parser
//   - eval: evaluator and builtin functions
package expr
