package rules

import "strings"

// splitTags splits a tags value on top-level commas. Commas nested in
// parentheses, brackets or braces belong to the tag, as do commas in quoted
// strings inside them.
func splitTags(value string) []string {
	var (
		tags  []string
		depth int
		quote rune
		start int
	)
	for i, r := range value {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case depth > 0 && (r == '"' || r == '\''):
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			tags = append(tags, value[start:i])
			start = i + 1
		}
	}
	tags = append(tags, value[start:])

	out := tags[:0]
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// dynamicTagSource returns the expression inside a {expression} tag.
func dynamicTagSource(tag string) (string, bool) {
	if len(tag) >= 2 && strings.HasPrefix(tag, "{") && strings.HasSuffix(tag, "}") {
		return strings.TrimSpace(tag[1 : len(tag)-1]), true
	}
	return "", false
}
