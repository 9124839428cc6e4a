// Package parser turns expression source text into an ast.Node.
//
// The grammar is a small, closed subset of a Python-like expression syntax:
//
//	expr        = or_expr [ "if" or_expr "else" expr ]
//	or_expr     = and_expr { "or" and_expr }
//	and_expr    = not_expr { "and" not_expr }
//	not_expr    = "not" not_expr | comparison
//	comparison  = sum { comp_op sum }
//	comp_op     = "==" | "!=" | "<" | "<=" | ">" | ">=" | "in" | "not" "in"
//	sum         = term { ("+" | "-") term }
//	term        = unary { ("*" | "/" | "%") unary }
//	unary       = ("-" | "+") unary | postfix
//	postfix     = primary { "." ident | "[" expr "]" | "(" args ")" }
//	primary     = number | string | ident | "(" expr [comp_for] ")" | "[" [list | expr comp_for] "]"
//	comp_for    = "for" ident "in" or_expr { "if" or_expr }
//
// A "#" outside a string starts a comment that runs to the end of the
// expression.
//
// Parsing happens once, when a rule file is loaded. Any error is reported as
// a *SyntaxError carrying the byte offset of the offending token.
package parser
