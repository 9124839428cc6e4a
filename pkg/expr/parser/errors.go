package parser

import "fmt"

// SyntaxError describes an expression that could not be parsed.
type SyntaxError struct {
	Expr    string // Full expression source
	Offset  int    // Byte offset of the offending token
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at column %d: %s", e.Offset+1, e.Message)
}

// Column returns the 1-based column of the error within the expression.
func (e *SyntaxError) Column() int {
	return e.Offset + 1
}
