// Package rules parses rule files into ordered rule records.
//
// # File format
//
// A rule file is line oriented. Blank lines and lines starting with "#" are
// ignored. Before the first rule, two kinds of assignment are allowed:
//
//	is_large = amount > 500                                        # variable
//	field.description = regex_replace(field.description, "^SQ\s*\*", "")  # transform
//
// Each rule starts with a bracketed header followed by "key: value"
// properties:
//
//	[Uber Rides]
//	priority: 60
//	let: fare = amount * 1.0
//	match: regex("UBER\s(?!EATS)") and fare > 5
//	merchant: Uber
//	category: Transportation
//	subcategory: Rideshare
//	field: trip_kind = "ride"
//	transform: regex_replace(description, "\*TRIP", "")
//	tags: travel, {lower(source)}
//
// "match" is required, and a rule needs a category, tags, or both. "let" and
// "field" may repeat and keep their order. Tags are comma separated; commas
// inside parentheses, brackets, braces or quotes do not split, so
// {split(field.cardholder, ",", 0)} stays a single dynamic tag.
//
// # Errors
//
// Parsing fails closed: the first structural problem or unparseable
// expression aborts the load with an *Error that carries the line number.
// Partial rule sets are never returned.
package rules
