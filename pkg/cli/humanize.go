package cli

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

// Count formats n with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}

// Ago formats t relative to now ("3 minutes ago"), or "never" for the
// zero time.
func Ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// Bytes formats a size in bytes ("1.2 MB").
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Plural returns singular or plural by n, prefixed with the count:
// Plural(1, "rule", "rules") is "1 rule".
func Plural(n int, singular, plural string) string {
	return humanize.Comma(int64(n)) + " " + english.PluralWord(n, singular, plural)
}
