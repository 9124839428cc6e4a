package txn

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type record struct {
	Description    string         `json:"description"`
	RawDescription string         `json:"raw_description"`
	Amount         float64        `json:"amount"`
	Date           string         `json:"date"`
	Source         string         `json:"source"`
	Fields         map[string]any `json:"fields"`
}

func (r *record) toTransaction() (*Transaction, error) {
	t := &Transaction{
		Description:    r.Description,
		RawDescription: r.RawDescription,
		Amount:         r.Amount,
		Source:         r.Source,
	}
	if t.RawDescription == "" {
		t.RawDescription = r.Description
	}
	if r.Date != "" {
		d, err := ParseDate(r.Date)
		if err != nil {
			return nil, err
		}
		t.Date = d
	}
	if len(r.Fields) > 0 {
		t.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			t.Fields[k] = stringify(v)
		}
	}
	return t, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// LoadFile reads transactions from a JSON array or a JSON Lines file.
func LoadFile(path string) ([]*Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	txns, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return txns, nil
}

// Decode parses transactions from a JSON array or JSON Lines.
func Decode(data []byte) ([]*Transaction, error) {
	trimmed := bytes.TrimSpace(data)
	var records []record

	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("invalid transaction array: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			b := bytes.TrimSpace(scanner.Bytes())
			if len(b) == 0 {
				continue
			}
			var r record
			if err := json.Unmarshal(b, &r); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			records = append(records, r)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	txns := make([]*Transaction, 0, len(records))
	for i := range records {
		t, err := records[i].toTransaction()
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i+1, err)
		}
		txns = append(txns, t)
	}
	return txns, nil
}

// LoadDataSources reads a JSON object mapping source names to row arrays.
func LoadDataSources(path string) (DataSources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data sources: %w", err)
	}
	var sources DataSources
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("%s: invalid data sources: %w", path, err)
	}
	return sources, nil
}

// LoadRows reads a single data source stored as a JSON array of objects.
func LoadRows(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data source: %w", err)
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%s: invalid data source: %w", path, err)
	}
	return rows, nil
}
