package policy

import (
	"fmt"
	"sync"

	"github.com/roach88/noderepo/internal/ir"
)

// Lattice is the part of the class dictionary the policy package consumes.
type Lattice interface {
	AncestorSource
	IsSubClass(class, of ir.QName) bool
	IsDefined(q ir.QName) bool
}

// behaviourTable is a flat map from key to behaviours in registration order.
//
// Thread-safety: all methods are safe for concurrent use. Bindings are
// expected during startup only; Seal rejects later ones.
type behaviourTable[K comparable] struct {
	mu      sync.RWMutex
	entries map[K][]*Behaviour
	sealed  bool
}

func (t *behaviourTable[K]) add(k K, b *Behaviour) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return false
	}
	if t.entries == nil {
		t.entries = make(map[K][]*Behaviour)
	}
	t.entries[k] = append(t.entries[k], b)
	return true
}

func (t *behaviourTable[K]) get(k K) []*Behaviour {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[k]
}

func (t *behaviourTable[K]) seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

func (t *behaviourTable[K]) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, bs := range t.entries {
		n += len(bs)
	}
	return n
}

// resolver accumulates behaviours, keeping first occurrences only.
type resolver struct {
	seen map[*Behaviour]bool
	out  []*Behaviour
}

func (r *resolver) add(bs []*Behaviour) {
	for _, b := range bs {
		if r.seen == nil {
			r.seen = make(map[*Behaviour]bool)
		}
		if !r.seen[b] {
			r.seen[b] = true
			r.out = append(r.out, b)
		}
	}
}

func validateBinding(l Lattice, p Name, want Kind, b *Behaviour, qnames ...ir.QName) error {
	if p.Kind() != want {
		return &RuntimeError{
			Code:    ErrCodeWrongPolicyKind,
			Message: fmt.Sprintf("policy is not %s scoped", want),
			Policy:  p,
		}
	}
	if b == nil || b.Handle == nil {
		return &RuntimeError{
			Code:    ErrCodeInvalidBehaviour,
			Message: "behaviour and its handler must not be nil",
			Policy:  p,
		}
	}
	for _, q := range qnames {
		if q.IsAny() || l.IsDefined(q) {
			continue
		}
		return &RuntimeError{
			Code:    ErrCodeUnknownQName,
			Message: fmt.Sprintf("cannot bind behaviour %s to undefined qname", b.ID),
			Policy:  p,
			QName:   q,
		}
	}
	return nil
}

func sealedError(p Name, q ir.QName) error {
	return &RuntimeError{
		Code:    ErrCodeRegistrySealed,
		Message: "registry is sealed",
		Policy:  p,
		QName:   q,
	}
}

type classKey struct {
	policy Name
	class  ir.QName
}

// ClassRegistry maps (class scoped policy, class QName) to behaviours.
type ClassRegistry struct {
	lattice Lattice
	table   behaviourTable[classKey]
}

// NewClassRegistry creates an empty registry validating bindings against l.
func NewClassRegistry(l Lattice) *ClassRegistry {
	return &ClassRegistry{lattice: l}
}

// Bind registers b for policy p on class. class may be ir.AnyQName.
func (r *ClassRegistry) Bind(p Name, class ir.QName, b *Behaviour) error {
	if err := validateBinding(r.lattice, p, ClassScoped, b, class); err != nil {
		return err
	}
	if !r.table.add(classKey{p, class}, b) {
		return sealedError(p, class)
	}
	return nil
}

// Resolve returns the behaviours bound for p on each member of qnames, in
// qnames order then registration order, followed by AnyQName behaviours.
// Each behaviour appears once.
func (r *ClassRegistry) Resolve(p Name, qnames []ir.QName) []*Behaviour {
	var res resolver
	r.resolveExact(&res, p, qnames)
	res.add(r.table.get(classKey{p, ir.AnyQName}))
	return res.out
}

func (r *ClassRegistry) resolveExact(res *resolver, p Name, qnames []ir.QName) {
	for _, q := range qnames {
		res.add(r.table.get(classKey{p, q}))
	}
}

// Seal rejects further bindings.
func (r *ClassRegistry) Seal() { r.table.seal() }

// Len returns the number of bindings.
func (r *ClassRegistry) Len() int { return r.table.count() }

type assocKey struct {
	policy Name
	class  ir.QName
	assoc  ir.QName
}

// AssociationRegistry maps (association scoped policy, class QName,
// association type) to behaviours. There is no association-type
// inheritance; ir.AnyQName as the association type matches every type.
type AssociationRegistry struct {
	lattice Lattice
	table   behaviourTable[assocKey]
}

// NewAssociationRegistry creates an empty registry validating bindings
// against l.
func NewAssociationRegistry(l Lattice) *AssociationRegistry {
	return &AssociationRegistry{lattice: l}
}

// Bind registers b for policy p on class and association type assocType.
// Either may be ir.AnyQName.
func (r *AssociationRegistry) Bind(p Name, class, assocType ir.QName, b *Behaviour) error {
	if err := validateBinding(r.lattice, p, AssociationScoped, b, class, assocType); err != nil {
		return err
	}
	if !r.table.add(assocKey{p, class, assocType}, b) {
		return sealedError(p, class)
	}
	return nil
}

// Resolve returns the behaviours bound for p on each member of qnames for
// assocType (exact type first, then any type), followed by AnyQName class
// behaviours. Each behaviour appears once.
func (r *AssociationRegistry) Resolve(p Name, qnames []ir.QName, assocType ir.QName) []*Behaviour {
	var res resolver
	r.resolveExact(&res, p, qnames, assocType)
	res.add(r.table.get(assocKey{p, ir.AnyQName, assocType}))
	res.add(r.table.get(assocKey{p, ir.AnyQName, ir.AnyQName}))
	return res.out
}

func (r *AssociationRegistry) resolveExact(res *resolver, p Name, qnames []ir.QName, assocType ir.QName) {
	for _, q := range qnames {
		res.add(r.table.get(assocKey{p, q, assocType}))
		res.add(r.table.get(assocKey{p, q, ir.AnyQName}))
	}
}

// Seal rejects further bindings.
func (r *AssociationRegistry) Seal() { r.table.seal() }

// Len returns the number of bindings.
func (r *AssociationRegistry) Len() int { return r.table.count() }
