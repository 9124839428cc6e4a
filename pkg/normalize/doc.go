// Package normalize turns a transaction into merchant, category and
// subcategory using a matching engine, with a readable fallback for
// transactions no rule categorizes.
//
// Before matching, the rule file's top-level field transforms run against a
// copy of the transaction:
//
//	field.description = regex_replace(field.description, "^APLPAY\s+", "")
//
// The value each transform replaced is kept in RawValues under "_raw_<name>".
package normalize
