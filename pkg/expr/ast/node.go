package ast

import (
	"strconv"
	"strings"
)

// Node is implemented by every expression node.
type Node interface {
	// Pos returns the byte offset of the node in the expression source.
	Pos() int
	// String renders the node back to expression syntax.
	String() string
}

// Literal is a constant: nil, bool, float64 or string.
type Literal struct {
	Offset int
	Value  any
}

// Ident is a bare name such as amount, description or a let-bound variable.
type Ident struct {
	Offset int
	Name   string
}

// List is a list literal: [a, b, c].
type List struct {
	Offset int
	Elems  []Node
}

// Unary is a prefix operator: "-", "+" or "not".
type Unary struct {
	Offset int
	Op     string
	X      Node
}

// Binary is an arithmetic operator: "+", "-", "*", "/" or "%".
type Binary struct {
	Offset int
	Op     string
	X, Y   Node
}

// Logical is a short-circuit "and" / "or".
type Logical struct {
	Offset int
	Op     string
	X, Y   Node
}

// Compare is a possibly chained comparison such as 10 < amount <= 20.
// Operands has exactly len(Ops)+1 entries. Ops are "==", "!=", "<", "<=",
// ">", ">=", "in" and "not in".
type Compare struct {
	Offset   int
	Ops      []string
	Operands []Node
}

// Attr is attribute access: X.Name.
type Attr struct {
	Offset int
	X      Node
	Name   string
}

// Index is subscript access: X[Index].
type Index struct {
	Offset int
	X      Node
	Index  Node
}

// Keyword is a named call argument: threshold=0.9.
type Keyword struct {
	Name  string
	Value Node
}

// Call invokes a builtin function by name.
type Call struct {
	Offset   int
	Func     string
	Args     []Node
	Keywords []Keyword
}

// Conditional is the ternary form: Then if Test else Else.
type Conditional struct {
	Offset int
	Then   Node
	Test   Node
	Else   Node
}

// Comprehension iterates a list-valued expression, binding each element to
// Var, keeping elements for which every condition holds and projecting them
// through Elem. Generator marks the parenthesized or call-argument form; it
// evaluates identically.
type Comprehension struct {
	Offset    int
	Elem      Node
	Var       string
	Iter      Node
	Conds     []Node
	Generator bool
}

func (n *Literal) Pos() int       { return n.Offset }
func (n *Ident) Pos() int         { return n.Offset }
func (n *List) Pos() int          { return n.Offset }
func (n *Unary) Pos() int         { return n.Offset }
func (n *Binary) Pos() int        { return n.Offset }
func (n *Logical) Pos() int       { return n.Offset }
func (n *Compare) Pos() int       { return n.Offset }
func (n *Attr) Pos() int          { return n.Offset }
func (n *Index) Pos() int         { return n.Offset }
func (n *Call) Pos() int          { return n.Offset }
func (n *Conditional) Pos() int   { return n.Offset }
func (n *Comprehension) Pos() int { return n.Offset }

func (n *Literal) String() string {
	switch v := n.Value.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return strconv.Quote(v)
	}
	return "?"
}

func (n *Ident) String() string { return n.Name }

func (n *List) String() string {
	return "[" + joinNodes(n.Elems) + "]"
}

func (n *Unary) String() string {
	if n.Op == "not" {
		return "not " + n.X.String()
	}
	return n.Op + n.X.String()
}

func (n *Binary) String() string {
	return "(" + n.X.String() + " " + n.Op + " " + n.Y.String() + ")"
}

func (n *Logical) String() string {
	return "(" + n.X.String() + " " + n.Op + " " + n.Y.String() + ")"
}

func (n *Compare) String() string {
	var b strings.Builder
	b.WriteString(n.Operands[0].String())
	for i, op := range n.Ops {
		b.WriteString(" " + op + " ")
		b.WriteString(n.Operands[i+1].String())
	}
	return b.String()
}

func (n *Attr) String() string { return n.X.String() + "." + n.Name }

func (n *Index) String() string { return n.X.String() + "[" + n.Index.String() + "]" }

func (n *Call) String() string {
	args := joinNodes(n.Args)
	for _, kw := range n.Keywords {
		if args != "" {
			args += ", "
		}
		args += kw.Name + "=" + kw.Value.String()
	}
	return n.Func + "(" + args + ")"
}

func (n *Conditional) String() string {
	return "(" + n.Then.String() + " if " + n.Test.String() + " else " + n.Else.String() + ")"
}

func (n *Comprehension) String() string {
	var b strings.Builder
	b.WriteString(n.Elem.String())
	b.WriteString(" for " + n.Var + " in " + n.Iter.String())
	for _, c := range n.Conds {
		b.WriteString(" if " + c.String())
	}
	if n.Generator {
		return "(" + b.String() + ")"
	}
	return "[" + b.String() + "]"
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}
