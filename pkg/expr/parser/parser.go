package parser

import (
	"fmt"
	"slices"
	"strings"

	"tally-hq/tally/pkg/expr/ast"
)

// reserved words cannot be used as identifiers.
var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "in": true,
	"if": true, "else": true, "for": true,
}

var constants = map[string]any{
	"true": true, "True": true,
	"false": false, "False": false,
	"None": nil, "none": nil, "null": nil,
}

// Parse parses a single expression.
func Parse(src string) (ast.Node, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if tokens[0].kind == tokEOF {
		return nil, &SyntaxError{Expr: src, Message: "empty expression"}
	}

	p := &parser{src: src, tokens: tokens}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %q", tok.text)
	}
	return node, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constants.
func MustParse(src string) ast.Node {
	node, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return node
}

type parser struct {
	src    string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(text string) bool {
	tok := p.peek()
	return tok.kind == tokOp && tok.text == text
}

func (p *parser) isKeyword(word string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && tok.text == word
}

func (p *parser) expectOp(text string) error {
	if !p.isOp(text) {
		return p.errorf(p.peek(), "expected %q, found %s", text, describe(p.peek()))
	}
	p.advance()
	return nil
}

func (p *parser) expectKeyword(word string) error {
	if !p.isKeyword(word) {
		return p.errorf(p.peek(), "expected %q, found %s", word, describe(p.peek()))
	}
	p.advance()
	return nil
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &SyntaxError{Expr: p.src, Offset: tok.pos, Message: fmt.Sprintf(format, args...)}
}

func describe(tok token) string {
	if tok.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", tok.text)
}

func (p *parser) parseExpr() (ast.Node, error) {
	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("if") {
		return x, nil
	}
	p.advance()
	test, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("else"); err != nil {
		return nil, err
	}
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Conditional{Offset: x.Pos(), Then: x, Test: test, Else: els}, nil
}

func (p *parser) parseOr() (ast.Node, error) {
	return p.parseLogical("or", p.parseAnd)
}

func (p *parser) parseAnd() (ast.Node, error) {
	return p.parseLogical("and", p.parseNot)
}

func (p *parser) parseLogical(op string, operand func() (ast.Node, error)) (ast.Node, error) {
	x, err := operand()
	if err != nil {
		return nil, err
	}
	for p.isKeyword(op) {
		p.advance()
		y, err := operand()
		if err != nil {
			return nil, err
		}
		x = &ast.Logical{Offset: x.Pos(), Op: op, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseNot() (ast.Node, error) {
	if p.isKeyword("not") {
		tok := p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Offset: tok.pos, Op: "not", X: x}, nil
	}
	return p.parseComparison()
}

// compOp consumes a comparison operator if one is next.
func (p *parser) compOp() (string, bool) {
	tok := p.peek()
	switch {
	case tok.kind == tokOp:
		switch tok.text {
		case "==", "!=", "<", "<=", ">", ">=":
			p.advance()
			return tok.text, true
		}
	case tok.kind == tokIdent && tok.text == "in":
		p.advance()
		return "in", true
	case tok.kind == tokIdent && tok.text == "not":
		next := p.peekAt(1)
		if next.kind == tokIdent && next.text == "in" {
			p.advance()
			p.advance()
			return "not in", true
		}
	}
	return "", false
}

func (p *parser) parseComparison() (ast.Node, error) {
	first, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	cmp := &ast.Compare{Offset: first.Pos(), Operands: []ast.Node{first}}
	for {
		op, ok := p.compOp()
		if !ok {
			break
		}
		y, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		cmp.Ops = append(cmp.Ops, op)
		cmp.Operands = append(cmp.Operands, y)
	}
	if len(cmp.Ops) == 0 {
		return first, nil
	}
	return cmp, nil
}

func (p *parser) parseSum() (ast.Node, error) {
	return p.parseBinary([]string{"+", "-"}, p.parseTerm)
}

func (p *parser) parseTerm() (ast.Node, error) {
	return p.parseBinary([]string{"*", "/", "%"}, p.parseUnary)
}

func (p *parser) parseBinary(ops []string, operand func() (ast.Node, error)) (ast.Node, error) {
	x, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp || !slices.Contains(ops, tok.text) {
			return x, nil
		}
		p.advance()
		y, err := operand()
		if err != nil {
			return nil, err
		}
		x = &ast.Binary{Offset: x.Pos(), Op: tok.text, X: x, Y: y}
	}
}

func (p *parser) parseUnary() (ast.Node, error) {
	if p.isOp("-") || p.isOp("+") {
		tok := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Offset: tok.pos, Op: tok.text, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			p.advance()
			name := p.peek()
			if name.kind != tokIdent {
				return nil, p.errorf(name, "expected attribute name, found %s", describe(name))
			}
			p.advance()
			x = &ast.Attr{Offset: x.Pos(), X: x, Name: name.text}
		case p.isOp("["):
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			x = &ast.Index{Offset: x.Pos(), X: x, Index: idx}
		case p.isOp("("):
			ident, ok := x.(*ast.Ident)
			if !ok {
				return nil, p.errorf(p.peek(), "only named functions can be called")
			}
			p.advance()
			x, err = p.parseCall(ident)
			if err != nil {
				return nil, err
			}
		default:
			return x, nil
		}
	}
}

func (p *parser) parseCall(fn *ast.Ident) (ast.Node, error) {
	call := &ast.Call{Offset: fn.Offset, Func: strings.ToLower(fn.Name)}
	for !p.isOp(")") {
		if len(call.Args)+len(call.Keywords) > 0 {
			if err := p.expectOp(","); err != nil {
				return nil, err
			}
			if p.isOp(")") {
				break
			}
		}

		// name=value
		if tok, next := p.peek(), p.peekAt(1); tok.kind == tokIdent && next.kind == tokOp && next.text == "=" {
			p.advance()
			p.advance()
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Keywords = append(call.Keywords, ast.Keyword{Name: strings.ToLower(tok.text), Value: val})
			continue
		}
		if len(call.Keywords) > 0 {
			return nil, p.errorf(p.peek(), "positional argument follows keyword argument")
		}

		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.isKeyword("for") {
			if len(call.Args) > 0 {
				return nil, p.errorf(p.peek(), "generator must be the first argument")
			}
			arg, err = p.parseComprehension(arg, true)
			if err != nil {
				return nil, err
			}
		}
		call.Args = append(call.Args, arg)
	}
	p.advance()
	return call, nil
}

func (p *parser) parsePrimary() (ast.Node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokNumber, tokString:
		p.advance()
		return &ast.Literal{Offset: tok.pos, Value: tok.value}, nil

	case tokIdent:
		if v, ok := constants[tok.text]; ok {
			p.advance()
			return &ast.Literal{Offset: tok.pos, Value: v}, nil
		}
		if reserved[tok.text] {
			return nil, p.errorf(tok, "unexpected keyword %q", tok.text)
		}
		p.advance()
		return &ast.Ident{Offset: tok.pos, Name: tok.text}, nil

	case tokOp:
		switch tok.text {
		case "(":
			p.advance()
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.isKeyword("for") {
				if x, err = p.parseComprehension(x, true); err != nil {
					return nil, err
				}
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			return p.parseList()
		}
	case tokEOF:
		return nil, p.errorf(tok, "unexpected end of expression")
	}
	return nil, p.errorf(tok, "unexpected %q", tok.text)
}

func (p *parser) parseList() (ast.Node, error) {
	open := p.advance()
	list := &ast.List{Offset: open.pos}
	if p.isOp("]") {
		p.advance()
		return list, nil
	}

	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("for") {
		comp, err := p.parseComprehension(first, false)
		if err != nil {
			return nil, err
		}
		comp.(*ast.Comprehension).Offset = open.pos
		if err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return comp, nil
	}

	list.Elems = append(list.Elems, first)
	for p.isOp(",") {
		p.advance()
		if p.isOp("]") {
			break
		}
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list.Elems = append(list.Elems, elem)
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return list, nil
}

// parseComprehension parses the "for v in src if cond" tail that follows elem.
// The iterable and filters are or-expressions so that "if" is free to start
// the next filter.
func (p *parser) parseComprehension(elem ast.Node, generator bool) (ast.Node, error) {
	if err := p.expectKeyword("for"); err != nil {
		return nil, err
	}
	v := p.peek()
	if v.kind != tokIdent || reserved[v.text] {
		return nil, p.errorf(v, "expected loop variable, found %s", describe(v))
	}
	p.advance()
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	iter, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	comp := &ast.Comprehension{
		Offset:    elem.Pos(),
		Elem:      elem,
		Var:       strings.ToLower(v.text),
		Iter:      iter,
		Generator: generator,
	}
	for p.isKeyword("if") {
		p.advance()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		comp.Conds = append(comp.Conds, cond)
	}
	if p.isKeyword("for") {
		return nil, p.errorf(p.peek(), "nested comprehension clauses are not supported")
	}
	return comp, nil
}
