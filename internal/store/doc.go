// Package store provides SQLite-backed durable storage for the node
// repository: stores, nodes, aspects, properties, child associations and
// peer associations.
//
// All access goes through a Tx. The store enforces only row-level
// integrity:
//   - one primary parent association per child (partial UNIQUE index)
//   - unique folded child names per (parent, type) for association types
//     that forbid duplicates
//   - one peer association per (source, target, type)
//   - rows owned by a node are removed with it (ON DELETE CASCADE) and
//     follow it when its ref changes (ON UPDATE CASCADE)
//
// Cascade deletion of primary children, cycle checks and aspect
// composition are the node service's job.
//
// # Deterministic Results
//
// Child associations are returned ORDER BY idx, id; peer associations
// and stores in insertion order; aspects and properties sorted by name.
//
// # Connection
//
// Open sets WAL journaling, synchronous=NORMAL, a 5s busy timeout and
// foreign key enforcement, then brings the schema up to the latest
// user_version.
//
// Property values are stored as the tagged canonical JSON produced by
// ir.EncodeValue.
package store
