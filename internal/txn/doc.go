// Package txn carries the repository transaction through a context.
//
// A Transaction is created by the node service when an operation starts
// outside any transaction and is shared by every nested operation and every
// behaviour that runs inside it. It holds:
//
//   - an id from a Generator (UUIDv7 in production, fixed in tests)
//   - named resources bound for the transaction's lifetime (the dispatch
//     filter, the first-event log, the commit queue, the SQL transaction)
//   - before-commit hooks, run until none remain
//   - the set of nodes whose cascade delete is in progress
//
// Transactions are confined to the goroutine running the operation.
package txn
