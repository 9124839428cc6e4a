package ast

// Inspect traverses the tree rooted at node in depth-first order. It calls
// fn for each node; if fn returns false, the children of that node are
// skipped.
func Inspect(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	for _, child := range children(node) {
		Inspect(child, fn)
	}
}

// Calls returns the names of all functions called anywhere in the tree,
// in traversal order, with duplicates.
func Calls(node Node) []string {
	var names []string
	Inspect(node, func(n Node) bool {
		if c, ok := n.(*Call); ok {
			names = append(names, c.Func)
		}
		return true
	})
	return names
}

func children(node Node) []Node {
	switch n := node.(type) {
	case *List:
		return n.Elems
	case *Unary:
		return []Node{n.X}
	case *Binary:
		return []Node{n.X, n.Y}
	case *Logical:
		return []Node{n.X, n.Y}
	case *Compare:
		return n.Operands
	case *Attr:
		return []Node{n.X}
	case *Index:
		return []Node{n.X, n.Index}
	case *Call:
		out := append([]Node{}, n.Args...)
		for _, kw := range n.Keywords {
			out = append(out, kw.Value)
		}
		return out
	case *Conditional:
		return []Node{n.Then, n.Test, n.Else}
	case *Comprehension:
		out := []Node{n.Iter, n.Elem}
		return append(out, n.Conds...)
	}
	return nil
}
