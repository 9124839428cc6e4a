package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tally-hq/tally/pkg/cli"
	"tally-hq/tally/pkg/normalize"
	"tally-hq/tally/pkg/txn"
)

var testFlags struct {
	testsFile string
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run rule unit tests",
	Long: `Match example transactions and compare the outcome with expectations.

Test Case Format (YAML):
  tests:
    - name: "Coffee shop"
      transaction:
        description: "BLUE BOTTLE COFFEE #12"
        amount: 5.50
        date: "2024-03-01"
        source: "amex"
      expect:
        merchant: "Blue Bottle"
        category: "Food"
        subcategory: "Coffee"
        tags: ["coffee"]

Only the expectations given are checked. "matched: false" asserts that no
category rule matches.

Examples:
  # Run rule tests against the configured rule file
  tally test --tests rules_test.yaml

  # Against another rule file
  tally test --rules draft.rules --tests rules_test.yaml`,
	RunE: runRuleTests,
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVarP(&testFlags.testsFile, "tests", "t", "", "test case file")

	// Mark required flags - panic if this fails as it's a programming error
	if err := testCmd.MarkFlagRequired("tests"); err != nil {
		panic(fmt.Sprintf("failed to mark tests flag as required: %v", err))
	}
}

// TestSuite represents a collection of rule test cases.
type TestSuite struct {
	Tests []TestCase `yaml:"tests"`
}

// TestCase represents a single rule test case.
type TestCase struct {
	Name        string          `yaml:"name"`
	Transaction TestTransaction `yaml:"transaction"`
	Expect      TestExpectation `yaml:"expect"`
}

// TestTransaction is the transaction under test.
type TestTransaction struct {
	Description string            `yaml:"description"`
	Amount      float64           `yaml:"amount"`
	Date        string            `yaml:"date"`
	Source      string            `yaml:"source"`
	Fields      map[string]string `yaml:"fields"`
}

// TestExpectation represents the expected result of a test case.
type TestExpectation struct {
	Matched     *bool    `yaml:"matched"`
	Rule        string   `yaml:"rule"`
	Merchant    string   `yaml:"merchant"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`
	Tags        []string `yaml:"tags"` // Each must be present
}

// TestResult represents the result of executing a single test case.
type TestResult struct {
	TestName string        `json:"name"`
	Passed   bool          `json:"passed"`
	Failures []string      `json:"failures,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

func loadTestCases(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &suite, nil
}

func runRuleTests(cmd *cobra.Command, args []string) error {
	a := current

	suite, err := loadTestCases(testFlags.testsFile)
	if err != nil {
		return cli.NewCommandError("test", fmt.Errorf("failed to load test cases: %w", err))
	}
	if len(suite.Tests) == 0 {
		return fmt.Errorf("no test cases found in %s", testFlags.testsFile)
	}

	e, err := a.loadEngine()
	if err != nil {
		return cli.NewCommandError("test", err)
	}
	sources, err := a.loadSources()
	if err != nil {
		return cli.NewCommandError("test", err)
	}
	n := normalize.New(e, a.logger)

	results := make([]TestResult, 0, len(suite.Tests))
	failed := 0
	for _, tc := range suite.Tests {
		r := runTestCase(n, sources, tc)
		if !r.Passed {
			failed++
		}
		results = append(results, r)
	}

	if a.format == cli.FormatJSON {
		if err := a.print(results); err != nil {
			return err
		}
	} else {
		writeTestText(a.out, results, failed)
	}

	if failed > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func runTestCase(n *normalize.Normalizer, sources txn.DataSources, tc TestCase) TestResult {
	start := time.Now()
	result := TestResult{TestName: tc.Name}

	t := &txn.Transaction{
		Description:    tc.Transaction.Description,
		RawDescription: tc.Transaction.Description,
		Amount:         tc.Transaction.Amount,
		Source:         tc.Transaction.Source,
		Fields:         tc.Transaction.Fields,
	}
	if tc.Transaction.Date != "" {
		d, err := txn.ParseDate(tc.Transaction.Date)
		if err != nil {
			result.Error = err.Error()
			result.Duration = time.Since(start)
			return result
		}
		t.Date = d
	}

	norm, err := n.Normalize(t, sources)
	if err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	result.Duration = time.Since(start)

	var (
		matched bool
		rule    string
		tags    []string
	)
	if info := norm.Info; info != nil {
		matched = info.Source == normalize.SourceRule
		rule = info.Rule
		tags = info.Tags
	}

	want := tc.Expect
	check := func(field, want, got string) {
		if want != "" && want != got {
			result.Failures = append(result.Failures, fmt.Sprintf("%s = %q, want %q", field, got, want))
		}
	}
	if want.Matched != nil && *want.Matched != matched {
		result.Failures = append(result.Failures, fmt.Sprintf("matched = %v, want %v", matched, *want.Matched))
	}
	check("rule", want.Rule, rule)
	check("merchant", want.Merchant, norm.Merchant)
	check("category", want.Category, norm.Category)
	check("subcategory", want.Subcategory, norm.Subcategory)
	for _, tag := range want.Tags {
		if !slices.Contains(tags, strings.ToLower(tag)) {
			result.Failures = append(result.Failures, fmt.Sprintf("missing tag %q (have %v)", tag, tags))
		}
	}

	result.Passed = len(result.Failures) == 0
	return result
}

func writeTestText(w io.Writer, results []TestResult, failed int) {
	fmt.Fprintln(w, "Running rule tests...")
	fmt.Fprintln(w)

	for _, r := range results {
		if r.Passed {
			fmt.Fprintf(w, "✓ %s (%.1fms)\n", r.TestName, r.Duration.Seconds()*1000)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", r.TestName)
		if r.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", r.Error)
		}
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  %d tests run, %d passed, %d failed\n", len(results), len(results)-failed, failed)
}
