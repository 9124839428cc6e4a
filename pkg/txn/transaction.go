package txn

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical date format used in rule expressions and
// transaction identifiers.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
}

// Transaction is a single bank or card transaction.
type Transaction struct {
	Description    string            `json:"description"`
	RawDescription string            `json:"raw_description,omitempty"`
	Amount         float64           `json:"amount"`
	Date           time.Time         `json:"date"`
	Source         string            `json:"source,omitempty"`
	Fields         map[string]string `json:"fields,omitempty"`
}

// Row is one record of a data source, typically decoded from JSON.
type Row = map[string]any

// DataSources maps a source name to its rows.
type DataSources map[string][]Row

// Field returns a custom field. Names are matched exactly first, then
// case-insensitively.
func (t *Transaction) Field(name string) (string, bool) {
	if v, ok := t.Fields[name]; ok {
		return v, true
	}
	for k, v := range t.Fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Raw returns the raw description, falling back to the description.
func (t *Transaction) Raw() string {
	if t.RawDescription != "" {
		return t.RawDescription
	}
	return t.Description
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Fields = maps.Clone(t.Fields)
	return &c
}

// ID returns a stable identifier: the SHA-256 of date|raw description|amount|source.
func (t *Transaction) ID() string {
	date := ""
	if !t.Date.IsZero() {
		date = t.Date.Format(DateLayout)
	}
	key := fmt.Sprintf("%s|%s|%s|%s", date, t.Raw(), FormatAmount(t.Amount), t.Source)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// FormatAmount renders an amount with at least one decimal digit, so 200
// becomes "200.0" and 45.99 stays "45.99".
func FormatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// ParseDate parses the date formats accepted in transaction records and
// expression literals.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
