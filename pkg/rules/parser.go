package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"tally-hq/tally/pkg/expr"
	"tally-hq/tally/pkg/expr/parser"
)

var (
	// name = expr or field.name = expr, outside any rule.
	topLevelAssignment = regexp.MustCompile(`^(field\.[a-zA-Z_][a-zA-Z0-9_]*|[a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*(.+)$`)

	// name = expr, the value of let: and field: properties.
	namedAssignment = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*(.+)$`)
)

var knownProperties = []string{
	"match", "category", "subcategory", "merchant", "transform", "priority", "let", "field", "tags",
}

// Parser parses rule files.
type Parser struct {
	maxFileSize  int64 // Maximum file size in bytes (default: 10MB)
	contextLines int   // Lines of context shown around errors (default: 2)
}

// NewParser creates a parser with default limits.
func NewParser() *Parser {
	return &Parser{
		maxFileSize:  10 * 1024 * 1024,
		contextLines: 2,
	}
}

// WithMaxFileSize sets the maximum rule file size.
func (p *Parser) WithMaxFileSize(size int64) *Parser {
	p.maxFileSize = size
	return p
}

// WithContextLines sets how many lines of context errors include.
func (p *Parser) WithContextLines(n int) *Parser {
	p.contextLines = n
	return p
}

// ParseFile reads and parses the rule file at path.
func (p *Parser) ParseFile(path string) (*RuleSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Type: ErrorTypeIO, Message: "failed to access rule file", Location: Location{File: path}, Err: err}
	}
	if info.Size() > p.maxFileSize {
		return nil, &Error{
			Type:     ErrorTypeIO,
			Message:  fmt.Sprintf("file size %d exceeds maximum %d bytes", info.Size(), p.maxFileSize),
			Location: Location{File: path},
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Type: ErrorTypeIO, Message: "failed to read rule file", Location: Location{File: path}, Err: err}
	}
	return p.parse(path, string(data))
}

// ParseBytes parses rule file content already read from file. The file name
// is used only in error locations.
func (p *Parser) ParseBytes(file string, data []byte) (*RuleSet, error) {
	if int64(len(data)) > p.maxFileSize {
		return nil, &Error{
			Type:     ErrorTypeIO,
			Message:  fmt.Sprintf("file size %d exceeds maximum %d bytes", len(data), p.maxFileSize),
			Location: Location{File: file},
		}
	}
	return p.parse(file, string(data))
}

// Parse parses rule file text held in memory.
func (p *Parser) Parse(text string) (*RuleSet, error) {
	return p.parse("", text)
}

// Parse parses rule file text with a default Parser.
func Parse(text string) (*RuleSet, error) {
	return NewParser().Parse(text)
}

// ParseFile parses the rule file at path with a default Parser.
func ParseFile(path string) (*RuleSet, error) {
	return NewParser().ParseFile(path)
}

// pending holds a rule block while its lines are read. Expressions are
// compiled when the block ends.
type pending struct {
	rule      *Rule
	match     string
	matchLine int
	hasMatch  bool
	tags      []string
	tagsLine  int
	transform string
	transLine int
	lets      []rawAssignment
	fields    []rawAssignment
}

type rawAssignment struct {
	name string
	src  string
	line int
}

type parseState struct {
	p     *Parser
	file  string
	lines []string
	set   *RuleSet
	cur   *pending
}

func (p *Parser) parse(file, text string) (*RuleSet, error) {
	s := &parseState{
		p:     p,
		file:  file,
		lines: strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"),
		set:   &RuleSet{File: file},
	}

	for i, raw := range s.lines {
		lineNum := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if err := s.finish(); err != nil {
				return nil, err
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, s.errorAt(ErrorTypeStructural, lineNum, "empty rule name")
			}
			s.cur = &pending{rule: &Rule{Name: name, Priority: DefaultPriority, Line: lineNum}}
			continue
		}

		if s.cur == nil {
			if err := s.topLevel(line, lineNum); err != nil {
				return nil, err
			}
			continue
		}
		if err := s.property(line, lineNum); err != nil {
			return nil, err
		}
	}

	if err := s.finish(); err != nil {
		return nil, err
	}
	return s.set, nil
}

func (s *parseState) topLevel(line string, lineNum int) error {
	m := topLevelAssignment.FindStringSubmatch(line)
	if m == nil {
		s.set.Ignored = append(s.set.Ignored, Ignored{Line: lineNum, Text: line})
		return nil
	}
	name, src := m[1], strings.TrimSpace(m[2])
	x, err := s.compile(src, lineNum, s.lines[lineNum-1])
	if err != nil {
		return err
	}

	if strings.HasPrefix(name, "field.") {
		s.set.Transforms = append(s.set.Transforms, Binding{Name: name, Expr: x, Line: lineNum})
		return nil
	}
	s.set.Variables = append(s.set.Variables, Binding{Name: strings.ToLower(name), Expr: x, Line: lineNum})
	return nil
}

func (s *parseState) property(line string, lineNum int) error {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return s.ruleError(ErrorTypeStructural, lineNum, fmt.Sprintf("unexpected content in rule: %s", line))
	}
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	cur := s.cur

	switch key {
	case "match":
		cur.match, cur.matchLine, cur.hasMatch = value, lineNum, true
	case "category":
		cur.rule.Category = value
	case "subcategory":
		cur.rule.Subcategory = value
	case "merchant":
		cur.rule.Merchant = value
	case "transform":
		cur.transform, cur.transLine = value, lineNum
	case "priority":
		n, err := strconv.Atoi(value)
		if err != nil {
			return s.ruleError(ErrorTypeStructural, lineNum, fmt.Sprintf("invalid priority %q: must be an integer", value))
		}
		cur.rule.Priority = n
	case "tags":
		cur.tags, cur.tagsLine = splitTags(value), lineNum
	case "let", "field":
		m := namedAssignment.FindStringSubmatch(value)
		if m == nil {
			err := s.ruleError(ErrorTypeStructural, lineNum, fmt.Sprintf("invalid %s syntax", key))
			err.Suggestion = fmt.Sprintf("expected '%s: name = expression'", key)
			return err
		}
		a := rawAssignment{name: strings.ToLower(m[1]), src: strings.TrimSpace(m[2]), line: lineNum}
		if key == "let" {
			cur.lets = append(cur.lets, a)
		} else {
			cur.fields = append(cur.fields, a)
		}
	default:
		err := s.ruleError(ErrorTypeStructural, lineNum, fmt.Sprintf("unknown property %q", key))
		if guess := expr.Suggest(key, knownProperties); guess != "" {
			err.Suggestion = fmt.Sprintf("did you mean %q?", guess)
		}
		return err
	}
	return nil
}

// finish validates the current rule block, compiles its expressions and
// appends it to the rule set.
func (s *parseState) finish() error {
	cur := s.cur
	if cur == nil {
		return nil
	}
	s.cur = nil
	r := cur.rule

	if !cur.hasMatch || cur.match == "" {
		return s.blockError(r, "missing 'match:' expression")
	}
	if r.Category == "" && len(cur.tags) == 0 {
		return s.blockError(r, "rule must have a category or tags")
	}
	if r.Merchant == "" {
		r.Merchant = r.Name
	}

	var err error
	if r.Match, err = s.compileIn(r, cur.match, cur.matchLine, "match"); err != nil {
		return err
	}
	for _, a := range cur.lets {
		x, err := s.compileIn(r, a.src, a.line, "let")
		if err != nil {
			return err
		}
		r.Lets = append(r.Lets, Binding{Name: a.name, Expr: x, Line: a.line})
	}
	for _, a := range cur.fields {
		x, err := s.compileIn(r, a.src, a.line, "field")
		if err != nil {
			return err
		}
		r.Fields = append(r.Fields, Binding{Name: a.name, Expr: x, Line: a.line})
	}
	if cur.transform != "" {
		if r.Transform, err = s.compileIn(r, cur.transform, cur.transLine, "transform"); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(cur.tags))
	for _, text := range cur.tags {
		if seen[text] {
			continue
		}
		seen[text] = true
		tag := Tag{Text: text}
		if src, ok := dynamicTagSource(text); ok {
			if src == "" {
				continue
			}
			if tag.Expr, err = s.compileIn(r, src, cur.tagsLine, "tag"); err != nil {
				return err
			}
		}
		r.Tags = append(r.Tags, tag)
	}

	s.set.Rules = append(s.set.Rules, r)
	return nil
}

func (s *parseState) compileIn(r *Rule, src string, lineNum int, what string) (*expr.Expression, error) {
	x, err := s.compile(src, lineNum, s.lines[lineNum-1])
	if err != nil {
		var ruleErr *Error
		if errors.As(err, &ruleErr) {
			ruleErr.Rule = r.Name
			ruleErr.Message = fmt.Sprintf("invalid %s expression", what)
		}
		return nil, err
	}
	return x, nil
}

// compile compiles an expression found on lineNum, translating expression
// offsets into rule file columns.
func (s *parseState) compile(src string, lineNum int, line string) (*expr.Expression, error) {
	x, err := expr.Compile(src)
	if err == nil {
		return x, nil
	}

	column := 0
	if start := strings.Index(line, src); start >= 0 {
		column = start + 1
	}
	e := &Error{
		Type:     ErrorTypeSyntax,
		Message:  "invalid expression",
		Location: Location{File: s.file, Line: lineNum},
		Err:      err,
	}

	var syntaxErr *parser.SyntaxError
	var unknownErr *expr.UnknownFunctionError
	switch {
	case errors.As(err, &syntaxErr) && column > 0:
		e.Location.Column = column + syntaxErr.Offset
	case errors.As(err, &unknownErr):
		if column > 0 {
			e.Location.Column = column + unknownErr.Offset
		}
		if unknownErr.Suggestion != "" {
			e.Suggestion = fmt.Sprintf("did you mean %s()?", unknownErr.Suggestion)
		}
	}
	e.Context = extractContext(s.lines, lineNum, e.Location.Column, s.p.contextLines)
	return nil, e
}

func (s *parseState) errorAt(t ErrorType, lineNum int, msg string) *Error {
	return &Error{
		Type:     t,
		Message:  msg,
		Location: Location{File: s.file, Line: lineNum},
		Context:  extractContext(s.lines, lineNum, 0, s.p.contextLines),
	}
}

func (s *parseState) ruleError(t ErrorType, lineNum int, msg string) *Error {
	e := s.errorAt(t, lineNum, msg)
	e.Rule = s.cur.rule.Name
	return e
}

// blockError reports a rule-level problem at the rule's header line.
func (s *parseState) blockError(r *Rule, msg string) *Error {
	e := s.errorAt(ErrorTypeStructural, r.Line, msg)
	e.Rule = r.Name
	return e
}
