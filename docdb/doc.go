// Package docdb implements the MVCC read path of the document store: row
// reconstruction at a read timestamp (TableReader), range scans over
// materialized rows (RowIterator), and the supporting schema and projection
// plumbing.
//
// The package consumes an intent-aware iterator — a low-level cursor that
// merges committed records with provisional records from open transactions —
// through the IntentAwareIterator interface and owns nothing below it.
package docdb
