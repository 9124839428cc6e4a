package logging

import (
	"fmt"
	"regexp"
	"strings"

	"tally-hq/tally/pkg/config"
)

// Redactor masks sensitive values in log attributes.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternAccountNumber = "account_number"
	PatternEmail         = "email"
)

// Runs of 12 to 19 digits, optionally split by single spaces or dashes.
// Dates and phone numbers are shorter.
var accountNumber = regexp.MustCompile(`\b\d(?:[ -]?\d){11,18}\b`)

var email = regexp.MustCompile(`\b([a-zA-Z0-9._%+-])[a-zA-Z0-9._%+-]*@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})\b`)

// NewRedactor creates a Redactor with the built-in patterns plus custom
// ones. Custom patterns run after the built-ins, in order.
func NewRedactor(custom []config.RedactPattern) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range custom {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p.Name, err)
		}
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}
	return r, nil
}

// RedactString masks account numbers, keeping the last four digits, and
// email local parts, then applies custom patterns.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}

	redacted := accountNumber.ReplaceAllStringFunc(value, MaskDigits)
	redacted = email.ReplaceAllString(redacted, "$1***@$2")
	for _, p := range r.patterns {
		redacted = p.regex.ReplaceAllString(redacted, p.replacement)
	}
	return redacted
}

// MaskDigits replaces every digit except the last four with '*'. Other
// characters are kept.
func MaskDigits(s string) string {
	digits := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits++
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	seen := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			seen++
			if seen <= digits-4 {
				b.WriteByte('*')
				continue
			}
		}
		b.WriteRune(c)
	}
	return b.String()
}

// isSensitiveKey reports whether a key name indicates a value that must be
// hidden entirely.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	sensitiveKeys := []string{
		"password", "passwd", "secret", "token",
		"api_key", "apikey", "authorization",
		"ssn", "routing_number",
	}
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// redactValue hides a sensitive value, keeping a short hint of a string.
func redactValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "***"
	}
	return v[:4] + "***"
}
