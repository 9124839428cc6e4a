package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const fixtureRules = `budget = 100

[Coffee]
match: contains("COFFEE")
category: Food
subcategory: Coffee
tags: caffeine

[Big]
match: amount > budget
tags: large

[Never]
match: contains("ZZZNOPE")
category: Misc
`

const fixtureTransactions = `{"description": "BLUE COFFEE", "amount": 5, "date": "2024-03-01"}
{"description": "APPLE STORE", "amount": 500, "date": "2024-03-02"}
`

// workspace is a directory holding a config file, rule file and
// transactions for one test.
type workspace struct {
	dir    string
	config string
	rules  string
	txns   string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:    dir,
		config: filepath.Join(dir, "tally.yaml"),
		rules:  filepath.Join(dir, "tally.rules"),
		txns:   filepath.Join(dir, "txns.jsonl"),
	}
	writeFile(t, w.rules, fixtureRules)
	writeFile(t, w.txns, fixtureTransactions)
	writeFile(t, w.config, `rules:
  path: `+w.rules+`
data:
  transactions:
    - `+w.txns+`
cache:
  dir: `+filepath.Join(dir, ".tally")+`
logging:
  level: error
`)
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

// tally runs the command line against w's config and returns stdout.
func (w *workspace) tally(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"--config", w.config}, args...), &stdout, &stderr)
	return stdout.String(), err
}

// resetFlags returns every flag to its default between runs, since cobra
// keeps parsed values on the command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else if f.Value.Type() != "stringToString" {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
