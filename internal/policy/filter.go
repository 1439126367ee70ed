package policy

import (
	"context"

	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/txn"
)

// Filter disables behaviours for the rest of a transaction. Disable and
// Enable calls nest: a class disabled twice needs two enables.
//
// The filter is evaluated per key class of the event's subject (its type
// and each aspect, or the explicit class of type- and aspect-keyed events):
// a disabled key class removes that class's whole ancestor chain from the
// dispatch. AnyQName behaviours are only affected by DisableAll and
// DisableNode.
//
// Thread-safety: a Filter belongs to one transaction and is not safe for
// concurrent use.
type Filter struct {
	all         int
	classes     map[ir.QName]*classRule
	nodes       map[ir.NodeRef]int
	nodeClasses map[nodeClassKey]int
}

type classRule struct {
	count      int
	subClasses int
}

type nodeClassKey struct {
	node  ir.NodeRef
	class ir.QName
}

// NewFilter returns a filter with everything enabled.
func NewFilter() *Filter {
	return &Filter{
		classes:     make(map[ir.QName]*classRule),
		nodes:       make(map[ir.NodeRef]int),
		nodeClasses: make(map[nodeClassKey]int),
	}
}

type filterKey struct{}

// FilterFor returns the filter of the transaction carried by ctx, creating
// it on first use.
func FilterFor(ctx context.Context) (*Filter, error) {
	t, ok := txn.FromContext(ctx)
	if !ok {
		return nil, noTransaction("behaviour filter")
	}
	return txn.Bind(t, filterKey{}, NewFilter), nil
}

// existingFilter returns the transaction's filter without creating one.
func existingFilter(ctx context.Context) *Filter {
	t, ok := txn.FromContext(ctx)
	if !ok {
		return nil
	}
	v, ok := t.Resource(filterKey{})
	if !ok {
		return nil
	}
	return v.(*Filter)
}

// DisableAll disables every behaviour.
func (f *Filter) DisableAll() { f.all++ }

// EnableAll undoes one DisableAll.
func (f *Filter) EnableAll() {
	if f.all > 0 {
		f.all--
	}
}

// DisableClass disables behaviours keyed by class. With subClasses, key
// classes that descend from class are disabled too.
func (f *Filter) DisableClass(class ir.QName, subClasses bool) {
	r := f.classes[class]
	if r == nil {
		r = &classRule{}
		f.classes[class] = r
	}
	r.count++
	if subClasses {
		r.subClasses++
	}
}

// EnableClass undoes one DisableClass. The most recent subclass disable is
// undone first.
func (f *Filter) EnableClass(class ir.QName) {
	r := f.classes[class]
	if r == nil {
		return
	}
	r.count--
	if r.subClasses > r.count {
		r.subClasses = r.count
	}
	if r.count <= 0 {
		delete(f.classes, class)
	}
}

// DisableNode disables every behaviour whose event subject is node.
func (f *Filter) DisableNode(node ir.NodeRef) { f.nodes[node]++ }

// EnableNode undoes one DisableNode.
func (f *Filter) EnableNode(node ir.NodeRef) { decrement(f.nodes, node) }

// DisableNodeClass disables behaviours keyed by class for events whose
// subject is node.
func (f *Filter) DisableNodeClass(node ir.NodeRef, class ir.QName) {
	f.nodeClasses[nodeClassKey{node, class}]++
}

// EnableNodeClass undoes one DisableNodeClass.
func (f *Filter) EnableNodeClass(node ir.NodeRef, class ir.QName) {
	decrement(f.nodeClasses, nodeClassKey{node, class})
}

func decrement[K comparable](m map[K]int, k K) {
	if m[k] <= 1 {
		delete(m, k)
		return
	}
	m[k]--
}

// IsEnabled reports whether anything may fire for events about node.
func (f *Filter) IsEnabled(node ir.NodeRef) bool {
	if f == nil {
		return true
	}
	return f.all == 0 && f.nodes[node] == 0
}

// IsClassEnabled reports whether behaviours keyed by class may fire for
// events about node.
func (f *Filter) IsClassEnabled(l Lattice, node ir.NodeRef, class ir.QName) bool {
	if !f.IsEnabled(node) {
		return false
	}
	if f == nil {
		return true
	}
	if f.nodeClasses[nodeClassKey{node, class}] > 0 {
		return false
	}
	if r := f.classes[class]; r != nil && r.count > 0 {
		return false
	}
	for q, r := range f.classes {
		if r.subClasses > 0 && l.IsSubClass(class, q) {
			return false
		}
	}
	return true
}

// apply drops the groups whose key class is disabled for node.
func (f *Filter) apply(l Lattice, node ir.NodeRef, groups []Group) []Group {
	if f == nil {
		return groups
	}
	out := groups[:0:0]
	for _, g := range groups {
		if f.IsClassEnabled(l, node, g.Key) {
			out = append(out, g)
		}
	}
	return out
}
