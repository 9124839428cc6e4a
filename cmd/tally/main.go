// Tally categorizes bank and card transactions with a plain-text rule file.
//
// Each rule names a match expression and the merchant, category and tags
// it assigns. Matches are cached in SQLite so reports over large
// transaction histories stay fast.
//
// Usage:
//
//	# Check a rule file for errors
//	tally lint --rules tally.rules
//
//	# Categorize transactions
//	tally match --transactions 2024.jsonl
//
//	# Show why a description matched
//	tally explain "BLUE BOTTLE COFFEE #12" --amount 5.50
//
//	# Rules that never matched anything
//	tally rules unused
//
//	# Re-run matching when the rule file changes
//	tally watch
package main

func main() {
	Execute()
}
