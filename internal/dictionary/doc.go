// Package dictionary compiles CUE model documents into the class lattice
// that drives behaviour dispatch and node composition.
//
// A model declares namespaces, types and aspects. Types and aspects form
// two single-parent hierarchies. Every class may declare properties (with
// optional defaults), mandatory aspects and associations. Two bootstrap
// models are embedded: sys (store roots, archive bookkeeping) and cm
// (named objects, folders, content and common aspects).
//
// The Dictionary answers the lattice questions the rest of the system
// asks: ancestors of a class, its mandatory aspects, its default property
// values, and property and association definitions.
package dictionary
