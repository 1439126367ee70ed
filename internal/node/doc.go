// Package node implements the node service: the mutation and read API of
// the repository.
//
// Each mutation performs its structural effect in a store transaction and
// fires the matching policy events through a policy.Dispatcher, so
// behaviours see the node as the operation leaves it and run inside the
// same transaction. A behaviour error aborts the operation and rolls the
// transaction back.
//
// The service enforces the graph rules the store alone cannot:
//
//   - deleting a node deletes its primary subtree depth first, then removes
//     its secondary and peer associations
//   - a node may not become its own ancestor
//   - adding an aspect adds the aspects it mandates, transitively, and fills
//     absent properties with defaults
//   - removing an aspect removes the properties and associations it declares
//   - names are unique, case-insensitively, under association types that
//     forbid duplicates
//
// Nodes being cascade-deleted are tracked on the transaction; creating or
// linking nodes under them fails with SUBTREE_PENDING_DELETION.
package node
