// Package ir provides the foundational value types for noderepo.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - QNames are structural values rendered in Clark notation ({uri}local)
//   - Property values form a sealed set with no floats
//   - Stored values and execution keys use RFC 8785 canonical JSON
package ir
