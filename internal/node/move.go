package node

import (
	"context"
	"errors"

	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/policy"
	"github.com/roach88/noderepo/internal/store"
)

// MoveNode makes newParent the node's primary parent and returns the new
// primary association. Moving into another store moves the node's whole
// primary subtree there; ids are kept.
//
// Moving a node under itself or one of its primary descendants fails with
// CYCLIC_CHILD_RELATIONSHIP before anything is changed. Moving into, out of
// or the root of a subtree being deleted fails with
// SUBTREE_PENDING_DELETION.
//
// Events within a store: BeforeMoveNode, BeforeDeleteChildAssociation,
// BeforeCreateChildAssociation, BeforeUpdateNode for the old and new
// parent, OnCreateChildAssociation(isNewNode=false),
// OnDeleteChildAssociation, OnUpdateNode for both parents, OnMoveNode.
// Across stores: BeforeMoveNode, BeforeDeleteNode, BeforeCreateNode,
// OnDeleteNode(isArchived=true), OnCreateNode, OnMoveNode.
func (s *Service) MoveNode(ctx context.Context, ref, newParent ir.NodeRef, assocType, assocQName ir.QName) (ir.ChildAssocRef, error) {
	def, err := s.requireAssoc(assocType, true)
	if err != nil {
		return ir.ChildAssocRef{}, err
	}
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (ir.ChildAssocRef, error) {
		rec, err := requireNode(ctx, tx, ref)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		if _, err := requireNode(ctx, tx, newParent); err != nil {
			return ir.ChildAssocRef{}, err
		}
		old, err := tx.PrimaryParent(ctx, ref)
		if errors.Is(err, store.ErrNotFound) {
			return ir.ChildAssocRef{}, &Error{Code: ErrCodeRootNode, Message: "a store root cannot be moved", Node: ref}
		}
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		// Nodes cannot leave or enter a subtree whose delete is running.
		for _, n := range []ir.NodeRef{newParent, old.Parent, ref} {
			if err := checkNotPending(ctx, n); err != nil {
				return ir.ChildAssocRef{}, err
			}
		}
		cyclic, err := isAncestor(ctx, tx, ref, newParent, true)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		if cyclic {
			return ir.ChildAssocRef{}, cycle(ref, newParent)
		}

		props, err := tx.Properties(ctx, ref)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		moved := ir.NewNodeRef(newParent.Store, ref.ID)
		name := childName(moved, props, def)
		if name.Unique {
			existing, err := tx.ChildByName(ctx, newParent, assocType, name.Key)
			if err == nil && existing.Child != ref {
				return ir.ChildAssocRef{}, duplicateName(newParent, assocType, name.Display)
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return ir.ChildAssocRef{}, err
			}
		}
		proposed := ir.ChildAssocRef{
			Type:    assocType,
			Parent:  newParent,
			QName:   assocQName,
			Child:   moved,
			Primary: true,
		}

		if newParent.Store == ref.Store {
			return s.moveWithinStore(ctx, tx, old, proposed, name, def.Class)
		}
		return s.moveAcrossStores(ctx, tx, rec, old, proposed, name, def.Class)
	})
}

func (s *Service) moveWithinStore(ctx context.Context, tx *store.Tx, old, proposed ir.ChildAssocRef, name store.ChildName, assocClass ir.QName) (ir.ChildAssocRef, error) {
	if err := s.dispatch.BeforeMoveNode(ctx, old, proposed); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if err := s.dispatch.BeforeDeleteChildAssociation(ctx, old); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if err := s.dispatch.BeforeCreateChildAssociation(ctx, proposed, false); err != nil {
		return ir.ChildAssocRef{}, err
	}
	parents := []ir.NodeRef{old.Parent}
	if proposed.Parent != old.Parent {
		parents = append(parents, proposed.Parent)
	}
	for _, p := range parents {
		if err := s.dispatch.BeforeUpdateNode(ctx, p); err != nil {
			return ir.ChildAssocRef{}, err
		}
	}

	if _, err := tx.DeleteChildAssoc(ctx, old); err != nil {
		return ir.ChildAssocRef{}, err
	}
	moved, err := tx.InsertChildAssoc(ctx, proposed, name)
	if errors.Is(err, store.ErrDuplicateName) {
		return ir.ChildAssocRef{}, duplicateName(proposed.Parent, proposed.Type, name.Display)
	}
	if err != nil {
		return ir.ChildAssocRef{}, err
	}
	if err := s.ensureAssocAspect(ctx, tx, proposed.Parent, assocClass); err != nil {
		return ir.ChildAssocRef{}, err
	}

	if err := s.dispatch.OnCreateChildAssociation(ctx, moved, false); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if err := s.dispatch.OnDeleteChildAssociation(ctx, old); err != nil {
		return ir.ChildAssocRef{}, err
	}
	for _, p := range parents {
		if err := s.dispatch.OnUpdateNode(ctx, p); err != nil {
			return ir.ChildAssocRef{}, err
		}
	}
	if err := s.dispatch.OnMoveNode(ctx, old, moved); err != nil {
		return ir.ChildAssocRef{}, err
	}
	return moved, nil
}

func (s *Service) moveAcrossStores(ctx context.Context, tx *store.Tx, rec store.NodeRecord, old, proposed ir.ChildAssocRef, name store.ChildName, assocClass ir.QName) (ir.ChildAssocRef, error) {
	ref := rec.Ref
	if err := s.dispatch.BeforeMoveNode(ctx, old, proposed); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if err := s.dispatch.BeforeDeleteNode(ctx, ref); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if err := s.dispatch.BeforeCreateNode(ctx, proposed.Parent, proposed.Type, proposed.QName, rec.Type); err != nil {
		return ir.ChildAssocRef{}, err
	}

	subtree, err := primarySubtree(ctx, tx, ref)
	if err != nil {
		return ir.ChildAssocRef{}, err
	}
	if _, err := tx.DeleteChildAssoc(ctx, old); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if err := relocate(ctx, tx, subtree, proposed.Parent.Store); err != nil {
		return ir.ChildAssocRef{}, err
	}
	moved, err := tx.InsertChildAssoc(ctx, proposed, name)
	if errors.Is(err, store.ErrDuplicateName) {
		return ir.ChildAssocRef{}, duplicateName(proposed.Parent, proposed.Type, name.Display)
	}
	if err != nil {
		return ir.ChildAssocRef{}, err
	}
	if err := s.ensureAssocAspect(ctx, tx, proposed.Parent, assocClass); err != nil {
		return ir.ChildAssocRef{}, err
	}

	classes := policy.Classes{Type: rec.Type, Aspects: rec.Aspects}
	if err := s.dispatch.OnDeleteNode(ctx, old, classes, true); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if err := s.dispatch.OnCreateNode(ctx, moved); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if err := s.dispatch.OnMoveNode(ctx, old, moved); err != nil {
		return ir.ChildAssocRef{}, err
	}
	s.logger.Debug("node moved across stores",
		"from", ref.String(),
		"to", moved.Child.String(),
		"subtree", len(subtree))
	return moved, nil
}

// isAncestor reports whether candidate is start or one of its ancestors,
// following primary parent associations only or all of them.
func isAncestor(ctx context.Context, tx *store.Tx, candidate, start ir.NodeRef, primaryOnly bool) (bool, error) {
	seen := map[ir.NodeRef]bool{}
	queue := []ir.NodeRef{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == candidate {
			return true, nil
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		parents, err := tx.ParentAssocs(ctx, n)
		if err != nil {
			return false, err
		}
		for _, a := range parents {
			if a.Primary || !primaryOnly {
				queue = append(queue, a.Parent)
			}
		}
	}
	return false, nil
}

func cycle(child, parent ir.NodeRef) *Error {
	return &Error{
		Code:    ErrCodeCyclicChildRelationship,
		Message: "node would become its own ancestor via " + parent.String(),
		Node:    child,
	}
}
