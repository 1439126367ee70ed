package policy

import (
	"slices"

	"github.com/roach88/noderepo/internal/ir"
)

// AncestorSource supplies a class's ancestor chain, most specific first,
// excluding the class itself.
type AncestorSource interface {
	AncestorsOf(q ir.QName) []ir.QName
}

// Group is one key class of a node (its type or one of its aspects) with
// the class's ancestor chain. Chain[0] is Key.
type Group struct {
	Key   ir.QName
	Chain []ir.QName
}

// EffectiveQNameGroups returns the key-class groups of a node: the type
// group first (when typ is not zero), then one group per aspect in
// CompareQNames order. Duplicate aspects are ignored.
func EffectiveQNameGroups(l AncestorSource, typ ir.QName, aspects []ir.QName) []Group {
	groups := make([]Group, 0, len(aspects)+1)
	if !typ.IsZero() {
		groups = append(groups, groupOf(l, typ))
	}
	sorted := slices.Clone(aspects)
	ir.SortQNames(sorted)
	sorted = slices.Compact(sorted)
	for _, a := range sorted {
		if a.IsZero() || a == typ {
			continue
		}
		groups = append(groups, groupOf(l, a))
	}
	return groups
}

func groupOf(l AncestorSource, key ir.QName) Group {
	return Group{Key: key, Chain: append([]ir.QName{key}, l.AncestorsOf(key)...)}
}

// Flatten concatenates group chains, keeping the first occurrence of each
// QName.
func Flatten(groups []Group) []ir.QName {
	seen := make(map[ir.QName]bool)
	var out []ir.QName
	for _, g := range groups {
		for _, q := range g.Chain {
			if !seen[q] {
				seen[q] = true
				out = append(out, q)
			}
		}
	}
	return out
}

// EffectiveQNames returns the effective qname set of a node with the given
// type and aspects: the type and its ancestors, then each aspect (sorted)
// followed by its ancestors, without duplicates.
func EffectiveQNames(l AncestorSource, typ ir.QName, aspects []ir.QName) []ir.QName {
	return Flatten(EffectiveQNameGroups(l, typ, aspects))
}
