// Package eval evaluates expression trees against a transaction.
//
// Evaluation is a side-effect-free walk over an ast.Node with an Env holding
// the transaction, the variables in scope and the named data sources. Values
// are plain Go types:
//
//	nil        None / null
//	bool       true / false
//	float64    every number
//	string     text
//	time.Time  dates (transaction date, date-valued fields)
//	[]any      lists and comprehension results
//	map[string]any  data-source rows
//
// Any runtime failure (unknown identifier, type mismatch, bad regex, missing
// row attribute) is returned as a *Error. Callers in the engine treat such an
// error as "contributes nothing" for the expression that raised it.
package eval
