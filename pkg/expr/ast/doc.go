// Package ast defines the abstract syntax tree of the rule expression language.
//
// Expressions are small: literals, identifiers, operators, calls to builtin
// functions and list comprehensions over caller-supplied data sources. Every
// node records the byte offset where it starts in the expression source so
// that syntax and evaluation errors can point at the offending column.
//
// Trees are produced by package parser and consumed by package eval. They are
// immutable once built and safe to share between goroutines.
package ast
