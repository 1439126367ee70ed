// Package policy implements behaviour dispatch for repository lifecycle
// events.
//
// ARCHITECTURE:
//
// Extensions bind Behaviours to a policy (a named event contract such as
// OnCreateNode) and a class QName (a type, an aspect, or AnyQName). Class
// scoped policies live in a ClassRegistry; association scoped policies in an
// AssociationRegistry, keyed additionally by association type.
//
// Registries are flat: they know nothing about inheritance. The Dispatcher
// expands a node's type and aspects into an ordered effective qname set
// (EffectiveQNameGroups), applies store exclusion and the transaction's
// Filter, resolves behaviours and invokes them synchronously.
//
// Dispatch order:
//  1. Class-bound behaviours, by qname set order then registration order
//  2. AnyQName behaviours, by registration order
//
// A behaviour reachable through several qnames fires once per event.
//
// Frequencies:
//   - EveryEvent: fires on every matching event
//   - FirstEvent: fires once per (behaviour, event arguments) per transaction
//   - TransactionCommit: queued and fired once before the transaction commits
//
// Behaviour errors are returned unchanged and abort the calling operation.
package policy
