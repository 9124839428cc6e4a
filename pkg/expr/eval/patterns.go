package eval

import (
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/dlclark/regexp2"
)

// DefaultFuzzyThreshold is the similarity fuzzy() requires when no threshold
// is given.
const DefaultFuzzyThreshold = 0.80

// regexTimeout bounds a single regex match so that a pathological pattern
// cannot stall matching.
const regexTimeout = time.Second

var regexCache sync.Map

// compileRegex compiles and caches a pattern. regexp2 is used for its
// lookaround support (e.g. "UBER(?!.*EATS)").
func compileRegex(pattern string, ignoreCase bool) (*regexp2.Regexp, error) {
	key := "s\x00" + pattern
	opts := regexp2.None
	if ignoreCase {
		key = "i\x00" + pattern
		opts = regexp2.IgnoreCase
	}
	if re, ok := regexCache.Load(key); ok {
		return re.(*regexp2.Regexp), nil
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = regexTimeout
	regexCache.Store(key, re)
	return re, nil
}

func regexMatch(pattern, text string) (bool, error) {
	re, err := compileRegex(pattern, true)
	if err != nil {
		return false, err
	}
	return re.MatchString(text)
}

// regexExtract returns the first capture group of the first match, or the
// whole match when the pattern has no groups. No match yields "".
func regexExtract(pattern, text string) (string, error) {
	re, err := compileRegex(pattern, true)
	if err != nil {
		return "", err
	}
	m, err := re.FindStringMatch(text)
	if err != nil || m == nil {
		return "", err
	}
	if groups := m.Groups(); len(groups) > 1 {
		return groups[1].String(), nil
	}
	return m.String(), nil
}

// regexReplace replaces every match. The replacement accepts \1 and \g<name>
// group references.
func regexReplace(text, pattern, replacement string) (string, error) {
	re, err := compileRegex(pattern, false)
	if err != nil {
		return "", err
	}
	return re.Replace(text, convertReplacement(replacement), -1, -1)
}

func convertReplacement(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		switch {
		case c == '$':
			b.WriteString("$$")
		case c == '\\' && i+1 < len(repl):
			next := repl[i+1]
			switch {
			case next >= '0' && next <= '9':
				j := i + 1
				for j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
					j++
				}
				b.WriteString("${" + repl[i+1:j] + "}")
				i = j - 1
			case next == 'g' && i+2 < len(repl) && repl[i+2] == '<':
				end := strings.IndexByte(repl[i+3:], '>')
				if end < 0 {
					b.WriteByte(c)
					continue
				}
				b.WriteString("${" + repl[i+3:i+3+end] + "}")
				i += 3 + end
			case next == '\\':
				b.WriteByte('\\')
				i++
			default:
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func containsFold(text, pattern string) bool {
	return strings.Contains(strings.ToUpper(text), strings.ToUpper(pattern))
}

func hasPrefixFold(text, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(text), strings.ToUpper(prefix))
}

// foldPrefixLen reports whether s starts with prefix under simple case
// folding and returns the byte length of the matching part of s, which can
// differ from len(prefix) ("ſ" folds to "S").
func foldPrefixLen(s, prefix string) (int, bool) {
	n := 0
	for prefix != "" {
		if n >= len(s) {
			return 0, false
		}
		a, sizeA := utf8.DecodeRuneInString(s[n:])
		b, sizeB := utf8.DecodeRuneInString(prefix)
		if !equalFoldRune(a, b) {
			return 0, false
		}
		n += sizeA
		prefix = prefix[sizeB:]
	}
	return n, true
}

// foldSuffixLen is foldPrefixLen for the end of s.
func foldSuffixLen(s, suffix string) (int, bool) {
	n := 0
	for suffix != "" {
		if n >= len(s) {
			return 0, false
		}
		a, sizeA := utf8.DecodeLastRuneInString(s[:len(s)-n])
		b, sizeB := utf8.DecodeLastRuneInString(suffix)
		if !equalFoldRune(a, b) {
			return 0, false
		}
		n += sizeA
		suffix = suffix[:len(suffix)-sizeB]
	}
	return n, true
}

func equalFoldRune(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}

// normalizeText keeps letters and digits only, upper-cased, so that
// "UBER-EATS", "Uber Eats" and "UBER*EATS" all become "UBEREATS".
func normalizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func normalizedMatch(text, pattern string) bool {
	p := normalizeText(pattern)
	return p != "" && strings.Contains(normalizeText(text), p)
}

// FuzzyScore returns the best similarity between pattern and text, in [0, 1].
//
// Both sides are upper-cased and split into alphanumeric words. The pattern
// is compared against the whole text and against every window of the text
// with one word fewer, the same number of words, or one word more than the
// pattern. Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)).
func FuzzyScore(pattern, text string) float64 {
	pWords := words(pattern)
	tWords := words(text)
	if len(pWords) == 0 || len(tWords) == 0 {
		return 0
	}
	p := strings.Join(pWords, " ")
	t := strings.Join(tWords, " ")
	if strings.Contains(t, p) {
		return 1
	}

	best := similarity(p, t)
	for size := len(pWords) - 1; size <= len(pWords)+1; size++ {
		if size < 1 || size > len(tWords) {
			continue
		}
		for i := 0; i+size <= len(tWords); i++ {
			window := strings.Join(tWords[i:i+size], " ")
			if s := similarity(p, window); s > best {
				best = s
			}
			// "NET FLIX" should still meet "NETFLIX".
			if s := similarity(strings.ReplaceAll(p, " ", ""), strings.ReplaceAll(window, " ", "")); s > best {
				best = s
			}
		}
	}
	return best
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
