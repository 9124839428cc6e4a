// Package engine matches transactions against a parsed rule set.
//
// # Matching
//
// Every rule is evaluated for every transaction; there is no short circuit.
// For each rule, its let-bindings are evaluated in order on top of the
// file-level variables, then its match expression. A rule whose match
// expression fails to evaluate is skipped for that transaction and the
// failure is logged.
//
// Tags are collected in two passes. Matching rules without a category
// contribute their tags as they match. After categorization, the winning
// category rule adds its own tags. The first rule to contribute a tag is
// recorded as its source.
//
// # Conflict resolution
//
// In FirstMatch mode, the first matching rule in file order that sets a
// category wins merchant, category and subcategory. In MostSpecific mode the
// three fields are resolved independently: among the matching rules that set
// the field, the rule with the greatest Specificity wins, ties going to the
// earlier rule.
//
// Only the winning category rule has its field directives and transform
// evaluated.
//
// # Concurrency
//
// An Engine is immutable after New and may be shared between goroutines.
// The package-level default engine (SetDefault / Default) exists for helpers
// that want to reuse a loaded engine opportunistically; code that needs
// deterministic results should pass an *Engine explicitly.
package engine
