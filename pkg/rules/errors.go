package rules

import (
	"fmt"
	"strings"
)

// ErrorType categorizes a rule file error.
type ErrorType string

const (
	ErrorTypeSyntax     ErrorType = "syntax"     // Expression failed to parse
	ErrorTypeStructural ErrorType = "structural" // Malformed rule block or property
	ErrorTypeIO         ErrorType = "io"         // File could not be read
)

// Location is a position in a rule file.
type Location struct {
	File   string // Path to the rule file, empty for in-memory text
	Line   int    // 1-based line number
	Column int    // 1-based column, 0 when unknown
}

// String returns "file:line", "file:line:column" or "line N".
func (l Location) String() string {
	switch {
	case l.File == "" && l.Line == 0:
		return "<unknown>"
	case l.File == "":
		return fmt.Sprintf("line %d", l.Line)
	case l.Column > 0:
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	case l.Line > 0:
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
	return l.File
}

// Error is a rule file error with location, surrounding context and an
// optional suggested fix.
type Error struct {
	Type       ErrorType
	Message    string
	Rule       string // Name of the enclosing rule, if any
	Location   Location
	Context    string // Surrounding lines, rendered with line numbers
	Suggestion string
	Err        error // Underlying expression or I/O error
}

// Error returns a one-line summary followed, when available, by the source
// context and the suggestion.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Location.String())
	sb.WriteString(": ")
	if e.Rule != "" {
		fmt.Fprintf(&sb, "rule %q: ", e.Rule)
	}
	sb.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if e.Context != "" {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimRight(e.Context, "\n"))
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&sb, "\n  = suggestion: %s", e.Suggestion)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Line returns the line number of the error.
func (e *Error) Line() int {
	return e.Location.Line
}

// extractContext renders up to contextLines lines on either side of line,
// marking the offending one.
func extractContext(lines []string, line, column, contextLines int) string {
	if line < 1 || line > len(lines) {
		return ""
	}
	start := max(line-1-contextLines, 0)
	end := min(line-1+contextLines, len(lines)-1)
	width := len(fmt.Sprintf("%d", end+1))

	var sb strings.Builder
	for i := start; i <= end; i++ {
		prefix := "  "
		if i == line-1 {
			prefix = "->"
		}
		fmt.Fprintf(&sb, "%s %*d | %s\n", prefix, width, i+1, lines[i])
		if i == line-1 && column > 0 {
			fmt.Fprintf(&sb, "   %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", column-1))
		}
	}
	return sb.String()
}
