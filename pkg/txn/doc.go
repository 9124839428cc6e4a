// Package txn defines the transaction record consumed by the rule engine and
// the named data sources that expressions can query.
//
// Statement parsing lives outside this module; callers build Transaction
// values themselves or load them from JSON with LoadFile. The engine never
// mutates a Transaction.
package txn
