package eval

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tally-hq/tally/pkg/expr/ast"
)

// callContext carries the evaluated arguments of a builtin call.
type callContext struct {
	e      *evaluator
	call   *ast.Call
	args   []any
	kwargs map[string]any
	gen    *ast.Comprehension // unevaluated first argument of a stream builtin
}

type builtin struct {
	minArgs  int
	maxArgs  int // -1 for variadic
	keywords []string
	// lazy builtins receive unevaluated arguments and evaluate them
	// themselves through callContext.e.
	lazy bool
	// stream builtins take a generator first argument unevaluated and
	// consume it through callContext.each.
	stream bool
	fn     func(c *callContext) (any, error)
}

var builtins map[string]*builtin

func init() {
	builtins = map[string]*builtin{
		// Pattern functions. The one-argument form matches against the
		// transaction description; the two-argument form takes the text first.
		"contains":   {minArgs: 1, maxArgs: 2, fn: fnContains},
		"regex":      {minArgs: 1, maxArgs: 2, fn: fnRegex},
		"normalized": {minArgs: 1, maxArgs: 2, fn: fnNormalized},
		"startswith": {minArgs: 1, maxArgs: 2, fn: fnStartsWith},
		"endswith":   {minArgs: 1, maxArgs: 2, fn: fnEndsWith},
		"anyof":      {minArgs: 1, maxArgs: -1, fn: fnAnyOf},
		"fuzzy":      {minArgs: 1, maxArgs: 2, keywords: []string{"threshold"}, fn: fnFuzzy},

		// String and value functions.
		"regex_replace": {minArgs: 3, maxArgs: 3, fn: fnRegexReplace},
		"extract":       {minArgs: 1, maxArgs: 2, fn: fnExtract},
		"trim":          {minArgs: 1, maxArgs: 1, fn: stringFunc(strings.TrimSpace)},
		"uppercase":     {minArgs: 1, maxArgs: 1, fn: stringFunc(strings.ToUpper)},
		"upper":         {minArgs: 1, maxArgs: 1, fn: stringFunc(strings.ToUpper)},
		"lowercase":     {minArgs: 1, maxArgs: 1, fn: stringFunc(strings.ToLower)},
		"lower":         {minArgs: 1, maxArgs: 1, fn: stringFunc(strings.ToLower)},
		"split":         {minArgs: 1, maxArgs: 3, fn: fnSplit},
		"substring":     {minArgs: 2, maxArgs: 3, fn: fnSubstring},
		"strip_prefix":  {minArgs: 2, maxArgs: 2, fn: fnStripPrefix},
		"strip_suffix":  {minArgs: 2, maxArgs: 2, fn: fnStripSuffix},
		"exists":        {minArgs: 1, maxArgs: 1, lazy: true, fn: fnExists},
		"str":           {minArgs: 1, maxArgs: 1, fn: fnStr},
		"float":         {minArgs: 1, maxArgs: 1, fn: fnFloat},
		"int":           {minArgs: 1, maxArgs: 1, fn: fnInt},
		"abs":           {minArgs: 1, maxArgs: 1, fn: fnAbs},
		"round":         {minArgs: 1, maxArgs: 2, fn: fnRound},

		// Aggregates over lists and generators.
		"any":  {minArgs: 1, maxArgs: 1, stream: true, fn: fnAny},
		"all":  {minArgs: 1, maxArgs: 1, stream: true, fn: fnAll},
		"sum":  {minArgs: 1, maxArgs: 1, fn: fnSum},
		"len":  {minArgs: 1, maxArgs: 1, fn: fnLen},
		"next": {minArgs: 1, maxArgs: 2, stream: true, fn: fnNext},
		"min":  {minArgs: 1, maxArgs: -1, fn: func(c *callContext) (any, error) { return extreme(c, -1) }},
		"max":  {minArgs: 1, maxArgs: -1, fn: func(c *callContext) (any, error) { return extreme(c, 1) }},
	}
}

// IsFunction reports whether name is a builtin function.
func IsFunction(name string) bool {
	_, ok := builtins[strings.ToLower(name)]
	return ok
}

// Functions returns the sorted names of all builtin functions.
func Functions() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *evaluator) call(n *ast.Call) (any, error) {
	fn, ok := builtins[n.Func]
	if !ok {
		return nil, errorf(n.Offset, "unknown function %q", n.Func)
	}
	if len(n.Args) < fn.minArgs || (fn.maxArgs >= 0 && len(n.Args) > fn.maxArgs) {
		return nil, errorf(n.Offset, "%s() takes %s, got %d", n.Func, arity(fn), len(n.Args))
	}

	c := &callContext{e: e, call: n}
	if fn.lazy {
		return fn.fn(c)
	}

	c.args = make([]any, len(n.Args))
	for i, arg := range n.Args {
		if gen, ok := arg.(*ast.Comprehension); ok && i == 0 && fn.stream && gen.Generator {
			c.gen = gen
			continue
		}
		v, err := e.eval(arg)
		if err != nil {
			return nil, err
		}
		c.args[i] = v
	}
	if len(n.Keywords) > 0 {
		c.kwargs = make(map[string]any, len(n.Keywords))
		for _, kw := range n.Keywords {
			if !slices.Contains(fn.keywords, kw.Name) {
				return nil, errorf(n.Offset, "%s() got an unexpected keyword argument %q", n.Func, kw.Name)
			}
			v, err := e.eval(kw.Value)
			if err != nil {
				return nil, err
			}
			c.kwargs[kw.Name] = v
		}
	}

	v, err := fn.fn(c)
	if err != nil {
		var evalErr *Error
		if errors.As(err, &evalErr) {
			return nil, err
		}
		return nil, wrapError(n.Offset, err, "%s() failed", n.Func)
	}
	return v, nil
}

func arity(fn *builtin) string {
	switch {
	case fn.maxArgs < 0:
		return fmt.Sprintf("at least %d arguments", fn.minArgs)
	case fn.minArgs == fn.maxArgs:
		return fmt.Sprintf("%d arguments", fn.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", fn.minArgs, fn.maxArgs)
}

// each calls yield for every element of the first argument until yield
// returns false. A generator argument is evaluated element by element.
func (c *callContext) each(yield func(any) bool) error {
	if c.gen != nil {
		return c.e.iterate(c.gen, yield)
	}
	items, err := c.list(0)
	if err != nil {
		return err
	}
	for _, item := range items {
		if !yield(item) {
			return nil
		}
	}
	return nil
}

func (c *callContext) errorf(format string, args ...any) error {
	return errorf(c.call.Offset, "%s(): "+format, append([]any{c.call.Func}, args...)...)
}

// str returns argument i as a string. Numbers and dates are formatted;
// None is rejected.
func (c *callContext) str(i int) (string, error) {
	switch v := c.args[i].(type) {
	case string:
		return v, nil
	case nil:
		return "", c.errorf("argument %d must be a string, got None", i+1)
	case []any, map[string]any:
		return "", c.errorf("argument %d must be a string, got %s", i+1, TypeName(v))
	}
	return ToString(c.args[i]), nil
}

func (c *callContext) number(i int) (float64, error) {
	f, ok := toNumber(c.args[i])
	if !ok {
		return 0, c.errorf("argument %d must be a number, got %s", i+1, TypeName(c.args[i]))
	}
	return f, nil
}

func (c *callContext) list(i int) ([]any, error) {
	l, ok := toList(c.args[i])
	if !ok {
		return nil, c.errorf("argument %d must be a list, got %s", i+1, TypeName(c.args[i]))
	}
	return l, nil
}

func (c *callContext) description() (string, error) {
	if c.e.env.Txn == nil {
		return "", c.errorf("no transaction in scope")
	}
	return c.e.env.Txn.Description, nil
}

// subjectAndPattern resolves the (text, pattern) pair of a pattern function.
func (c *callContext) subjectAndPattern() (string, string, error) {
	if len(c.args) == 2 {
		text, err := c.str(0)
		if err != nil {
			return "", "", err
		}
		pattern, err := c.str(1)
		return text, pattern, err
	}
	text, err := c.description()
	if err != nil {
		return "", "", err
	}
	pattern, err := c.str(0)
	return text, pattern, err
}

func fnContains(c *callContext) (any, error) {
	text, pattern, err := c.subjectAndPattern()
	if err != nil {
		return nil, err
	}
	return containsFold(text, pattern), nil
}

func fnRegex(c *callContext) (any, error) {
	text, pattern, err := c.subjectAndPattern()
	if err != nil {
		return nil, err
	}
	return regexMatch(pattern, text)
}

func fnNormalized(c *callContext) (any, error) {
	text, pattern, err := c.subjectAndPattern()
	if err != nil {
		return nil, err
	}
	return normalizedMatch(text, pattern), nil
}

func fnStartsWith(c *callContext) (any, error) {
	text, prefix, err := c.subjectAndPattern()
	if err != nil {
		return nil, err
	}
	return hasPrefixFold(text, prefix), nil
}

func fnEndsWith(c *callContext) (any, error) {
	text, suffix, err := c.subjectAndPattern()
	if err != nil {
		return nil, err
	}
	return strings.HasSuffix(strings.ToUpper(text), strings.ToUpper(suffix)), nil
}

func fnAnyOf(c *callContext) (any, error) {
	text, err := c.description()
	if err != nil {
		return nil, err
	}
	for i, arg := range c.args {
		patterns, ok := toList(arg)
		if !ok {
			patterns = []any{arg}
		}
		for _, p := range patterns {
			s, ok := p.(string)
			if !ok {
				return nil, c.errorf("argument %d must be a string, got %s", i+1, TypeName(p))
			}
			if containsFold(text, s) {
				return true, nil
			}
		}
	}
	return false, nil
}

func fnFuzzy(c *callContext) (any, error) {
	text, err := c.description()
	if err != nil {
		return nil, err
	}
	pattern, err := c.str(0)
	if err != nil {
		return nil, err
	}

	threshold := DefaultFuzzyThreshold
	if len(c.args) == 2 {
		if threshold, err = c.number(1); err != nil {
			return nil, err
		}
	}
	if v, ok := c.kwargs["threshold"]; ok {
		f, isNum := toNumber(v)
		if !isNum {
			return nil, c.errorf("threshold must be a number, got %s", TypeName(v))
		}
		threshold = f
	}
	return FuzzyScore(pattern, text) >= threshold, nil
}

func fnRegexReplace(c *callContext) (any, error) {
	text, err := c.str(0)
	if err != nil {
		return nil, err
	}
	pattern, err := c.str(1)
	if err != nil {
		return nil, err
	}
	repl, err := c.str(2)
	if err != nil {
		return nil, err
	}
	return regexReplace(text, pattern, repl)
}

func fnExtract(c *callContext) (any, error) {
	text, pattern, err := c.subjectAndPattern()
	if err != nil {
		return nil, err
	}
	return regexExtract(pattern, text)
}

func stringFunc(f func(string) string) func(c *callContext) (any, error) {
	return func(c *callContext) (any, error) {
		s, err := c.str(0)
		if err != nil {
			return nil, err
		}
		return f(s), nil
	}
}

// fnSplit implements split(s[, sep[, index]]). Without a separator the
// string splits on whitespace. With an index it returns that part, or ""
// when the index is out of range.
func fnSplit(c *callContext) (any, error) {
	s, err := c.str(0)
	if err != nil {
		return nil, err
	}
	var parts []string
	if len(c.args) >= 2 && c.args[1] != nil {
		sep, err := c.str(1)
		if err != nil {
			return nil, err
		}
		if sep == "" {
			return nil, c.errorf("empty separator")
		}
		parts = strings.Split(s, sep)
	} else {
		parts = strings.Fields(s)
	}

	if len(c.args) < 3 {
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}
	f, err := c.number(2)
	if err != nil {
		return nil, err
	}
	i := int(f)
	if i < 0 {
		i += len(parts)
	}
	if i < 0 || i >= len(parts) {
		return "", nil
	}
	return parts[i], nil
}

// fnSubstring implements substring(s, start[, end]) with slice semantics:
// negative positions count from the end and bounds are clamped.
func fnSubstring(c *callContext) (any, error) {
	s, err := c.str(0)
	if err != nil {
		return nil, err
	}
	runes := []rune(s)
	n := len(runes)

	start, err := c.number(1)
	if err != nil {
		return nil, err
	}
	end := float64(n)
	if len(c.args) == 3 && c.args[2] != nil {
		if end, err = c.number(2); err != nil {
			return nil, err
		}
	}
	from, to := clampIndex(int(start), n), clampIndex(int(end), n)
	if from >= to {
		return "", nil
	}
	return string(runes[from:to]), nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return max(0, min(i, n))
}

func fnStripPrefix(c *callContext) (any, error) {
	s, err := c.str(0)
	if err != nil {
		return nil, err
	}
	prefix, err := c.str(1)
	if err != nil {
		return nil, err
	}
	if n, ok := foldPrefixLen(s, prefix); ok {
		return s[n:], nil
	}
	return s, nil
}

func fnStripSuffix(c *callContext) (any, error) {
	s, err := c.str(0)
	if err != nil {
		return nil, err
	}
	suffix, err := c.str(1)
	if err != nil {
		return nil, err
	}
	if n, ok := foldSuffixLen(s, suffix); ok {
		return s[:len(s)-n], nil
	}
	return s, nil
}

// fnExists is true when its argument evaluates without error to a value
// other than None or the empty string.
func fnExists(c *callContext) (any, error) {
	v, err := c.e.eval(c.call.Args[0])
	if err != nil {
		return false, nil
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != "", nil
	}
	return v != nil, nil
}

func fnStr(c *callContext) (any, error) {
	return ToString(c.args[0]), nil
}

func fnFloat(c *callContext) (any, error) {
	if s, ok := c.args[0].(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", "")), 64)
		if err != nil {
			return nil, c.errorf("invalid number %q", s)
		}
		return f, nil
	}
	return c.number(0)
}

func fnInt(c *callContext) (any, error) {
	v, err := fnFloat(c)
	if err != nil {
		return nil, err
	}
	return math.Trunc(v.(float64)), nil
}

func fnAbs(c *callContext) (any, error) {
	f, err := c.number(0)
	if err != nil {
		return nil, err
	}
	return math.Abs(f), nil
}

// fnRound rounds half to even, like banker's rounding on statements.
func fnRound(c *callContext) (any, error) {
	f, err := c.number(0)
	if err != nil {
		return nil, err
	}
	places := 0.0
	if len(c.args) == 2 {
		if places, err = c.number(1); err != nil {
			return nil, err
		}
	}
	return decimal.NewFromFloat(f).RoundBank(int32(places)).InexactFloat64(), nil
}

func fnAny(c *callContext) (any, error) {
	found := false
	err := c.each(func(item any) bool {
		found = Truthy(item)
		return !found
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func fnAll(c *callContext) (any, error) {
	ok := true
	err := c.each(func(item any) bool {
		ok = Truthy(item)
		return ok
	})
	if err != nil {
		return nil, err
	}
	return ok, nil
}

// fnSum adds amounts in decimal so that 0.1 + 0.2 sums to 0.3.
func fnSum(c *callContext) (any, error) {
	items, err := c.list(0)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, item := range items {
		f, ok := toNumber(item)
		if !ok {
			return nil, c.errorf("cannot add %s", TypeName(item))
		}
		total = total.Add(decimal.NewFromFloat(f))
	}
	return total.InexactFloat64(), nil
}

func fnLen(c *callContext) (any, error) {
	switch v := c.args[0].(type) {
	case string:
		return float64(len([]rune(v))), nil
	case map[string]any:
		return float64(len(v)), nil
	}
	items, err := c.list(0)
	if err != nil {
		return nil, err
	}
	return float64(len(items)), nil
}

// fnNext returns the first element, or the default (None when absent) for an
// empty sequence.
func fnNext(c *callContext) (any, error) {
	var first any
	found := false
	err := c.each(func(item any) bool {
		first, found = item, true
		return false
	})
	if err != nil {
		return nil, err
	}
	if found {
		return first, nil
	}
	if len(c.args) == 2 {
		return c.args[1], nil
	}
	return nil, nil
}

func extreme(c *callContext, sign int) (any, error) {
	items := c.args
	if len(c.args) == 1 {
		var err error
		if items, err = c.list(0); err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		return nil, c.errorf("empty sequence")
	}
	best := items[0]
	for _, item := range items[1:] {
		cmp, err := compareOrdered(item, best)
		if err != nil {
			return nil, c.errorf("%v", err)
		}
		if cmp*sign > 0 {
			best = item
		}
	}
	return best, nil
}
