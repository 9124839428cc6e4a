package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

	titleCaser = cases.Title(language.Und)
)

// CleanDescription collapses runs of whitespace and trims the result.
func CleanDescription(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// MerchantName derives a display name from a description no rule matched:
// its first three words with punctuation removed, in title case.
func MerchantName(description string) string {
	words := strings.Fields(punctuation.ReplaceAllString(CleanDescription(description), " "))
	if len(words) == 0 {
		return Unknown
	}
	if len(words) > 3 {
		words = words[:3]
	}
	return titleCaser.String(strings.Join(words, " "))
}
