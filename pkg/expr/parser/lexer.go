package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
)

type token struct {
	kind  tokenKind
	text  string
	value any
	pos   int
}

// Two-character operators must be listed before their one-character prefixes.
var operators = []string{
	"==", "!=", "<=", ">=",
	"<", ">", "+", "-", "*", "/", "%",
	"(", ")", "[", "]", ",", ".", "=",
}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

func tokenize(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) || l.src[l.pos] == '#' {
			l.tokens = append(l.tokens, token{kind: tokEOF, pos: l.pos})
			return l.tokens, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Expr: l.src, Offset: pos, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) next() error {
	start := l.pos
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])

	switch {
	case r == '"' || r == '\'':
		return l.lexString(byte(r))
	case isDigit(r) || (r == '.' && l.pos+1 < len(l.src) && isDigit(rune(l.src[l.pos+1]))):
		return l.lexNumber()
	case r == '_' || unicode.IsLetter(r):
		for l.pos < len(l.src) {
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			l.pos += size
		}
		l.tokens = append(l.tokens, token{kind: tokIdent, text: l.src[start:l.pos], pos: start})
		return nil
	}

	for _, op := range operators {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += len(op)
			l.tokens = append(l.tokens, token{kind: tokOp, text: op, pos: start})
			return nil
		}
	}
	return l.errorf(start, "unexpected character %q", r)
}

func (l *lexer) lexNumber() error {
	start := l.pos
	seenDot := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '.' && !seenDot && l.pos+1 < len(l.src) && isDigit(rune(l.src[l.pos+1])) {
			seenDot = true
		} else if !isDigit(rune(c)) && c != '_' {
			break
		}
		l.pos++
	}
	text := l.src[start:l.pos]
	v, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil {
		return l.errorf(start, "invalid number %q", text)
	}
	l.tokens = append(l.tokens, token{kind: tokNumber, text: text, value: v, pos: start})
	return nil
}

// lexString reads a quoted string. Recognized escapes are \\ \" \' \n \t and
// \r; any other backslash sequence is kept verbatim so regex classes such as
// \s and \d survive.
func (l *lexer) lexString(quote byte) error {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			l.tokens = append(l.tokens, token{kind: tokString, text: l.src[start:l.pos], value: b.String(), pos: start})
			return nil
		case c == '\\' && l.pos+1 < len(l.src):
			esc := l.src[l.pos+1]
			switch esc {
			case '\\', '"', '\'':
				b.WriteByte(esc)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
			l.pos += 2
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return l.errorf(start, "unterminated string")
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
