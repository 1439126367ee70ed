package node

import (
	"context"
	"errors"
	"slices"

	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/store"
)

// AddChild links child under parent with a secondary association.
//
// For association types that forbid duplicate names, an existing
// association with the same parent, type, qname and child is returned
// instead of a second one. Linking a node under itself or one of its
// descendants (through any parent association) fails with
// CYCLIC_CHILD_RELATIONSHIP.
//
// Events: BeforeUpdateNode(parent), BeforeCreateChildAssociation,
// OnCreateChildAssociation(isNewNode=false), OnUpdateNode(parent).
func (s *Service) AddChild(ctx context.Context, parent, child ir.NodeRef, assocType, assocQName ir.QName) (ir.ChildAssocRef, error) {
	def, err := s.requireAssoc(assocType, true)
	if err != nil {
		return ir.ChildAssocRef{}, err
	}
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (ir.ChildAssocRef, error) {
		if _, err := requireNode(ctx, tx, parent); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if _, err := requireNode(ctx, tx, child); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := checkNotPending(ctx, parent); err != nil {
			return ir.ChildAssocRef{}, err
		}
		cyclic, err := isAncestor(ctx, tx, child, parent, false)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		if cyclic {
			return ir.ChildAssocRef{}, cycle(child, parent)
		}

		if !def.Duplicate {
			existing, err := tx.ChildAssocs(ctx, parent)
			if err != nil {
				return ir.ChildAssocRef{}, err
			}
			for _, a := range existing {
				if a.Type == assocType && a.QName == assocQName && a.Child == child {
					return a, nil
				}
			}
		}

		props, err := tx.Properties(ctx, child)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		name := childName(child, props, def)
		proposed := ir.ChildAssocRef{Type: assocType, Parent: parent, QName: assocQName, Child: child}

		if err := s.dispatch.BeforeUpdateNode(ctx, parent); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := s.dispatch.BeforeCreateChildAssociation(ctx, proposed, false); err != nil {
			return ir.ChildAssocRef{}, err
		}
		assoc, err := tx.InsertChildAssoc(ctx, proposed, name)
		if errors.Is(err, store.ErrDuplicateName) {
			return ir.ChildAssocRef{}, duplicateName(parent, assocType, name.Display)
		}
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := s.ensureAssocAspect(ctx, tx, parent, def.Class); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := s.dispatch.OnCreateChildAssociation(ctx, assoc, false); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := s.dispatch.OnUpdateNode(ctx, parent); err != nil {
			return ir.ChildAssocRef{}, err
		}
		return assoc, nil
	})
}

// RemoveChild removes every association between parent and child. When
// one of them is child's primary association the child is deleted.
func (s *Service) RemoveChild(ctx context.Context, parent, child ir.NodeRef) error {
	_, err := withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (struct{}, error) {
		if _, err := requireNode(ctx, tx, parent); err != nil {
			return struct{}{}, err
		}
		rec, err := requireNode(ctx, tx, child)
		if err != nil {
			return struct{}{}, err
		}
		assocs, err := tx.ParentAssocs(ctx, child)
		if err != nil {
			return struct{}{}, err
		}
		for _, a := range assocs {
			if a.Parent != parent {
				continue
			}
			if a.Primary {
				return struct{}{}, s.deleteOrArchive(ctx, tx, rec)
			}
			if err := s.unlinkChild(ctx, tx, a); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// RemoveSecondaryChildAssociation removes one secondary association and
// reports whether it existed. A primary association is rejected.
func (s *Service) RemoveSecondaryChildAssociation(ctx context.Context, assoc ir.ChildAssocRef) (bool, error) {
	if assoc.Primary {
		return false, &Error{
			Code:    ErrCodeInvalidAssociation,
			Message: "primary associations are removed by deleting or moving the child",
			Node:    assoc.Child,
			QName:   assoc.Type,
		}
	}
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (bool, error) {
		assocs, err := tx.ParentAssocs(ctx, assoc.Child)
		if err != nil {
			return false, err
		}
		idx := slices.IndexFunc(assocs, func(a ir.ChildAssocRef) bool {
			return !a.Primary && a.Parent == assoc.Parent && a.Type == assoc.Type && a.QName == assoc.QName
		})
		if idx < 0 {
			return false, nil
		}
		return true, s.unlinkChild(ctx, tx, assocs[idx])
	})
}

// ChildAssocs returns the parent's child associations in index order.
func (s *Service) ChildAssocs(ctx context.Context, parent ir.NodeRef) ([]ir.ChildAssocRef, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) ([]ir.ChildAssocRef, error) {
		if _, err := requireNode(ctx, tx, parent); err != nil {
			return nil, err
		}
		return tx.ChildAssocs(ctx, parent)
	})
}

// ChildAssocsByType returns the parent's child associations of assocType.
func (s *Service) ChildAssocsByType(ctx context.Context, parent ir.NodeRef, assocType ir.QName) ([]ir.ChildAssocRef, error) {
	all, err := s.ChildAssocs(ctx, parent)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(a ir.ChildAssocRef) bool { return a.Type != assocType }), nil
}

// ParentAssocs returns the child's parent associations, primary first.
func (s *Service) ParentAssocs(ctx context.Context, child ir.NodeRef) ([]ir.ChildAssocRef, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) ([]ir.ChildAssocRef, error) {
		if _, err := requireNode(ctx, tx, child); err != nil {
			return nil, err
		}
		return tx.ParentAssocs(ctx, child)
	})
}

// PrimaryParent returns the child's primary association. For a store root
// it is an association with only Child set.
func (s *Service) PrimaryParent(ctx context.Context, child ir.NodeRef) (ir.ChildAssocRef, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (ir.ChildAssocRef, error) {
		if _, err := requireNode(ctx, tx, child); err != nil {
			return ir.ChildAssocRef{}, err
		}
		a, err := tx.PrimaryParent(ctx, child)
		if errors.Is(err, store.ErrNotFound) {
			return ir.ChildAssocRef{Child: child}, nil
		}
		return a, err
	})
}

// ChildByName finds the child known as name among the parent's
// associations of assocType. Names compare case-insensitively.
func (s *Service) ChildByName(ctx context.Context, parent ir.NodeRef, assocType ir.QName, name string) (ir.NodeRef, bool, error) {
	a, err := withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (ir.ChildAssocRef, error) {
		if _, err := requireNode(ctx, tx, parent); err != nil {
			return ir.ChildAssocRef{}, err
		}
		return tx.ChildByName(ctx, parent, assocType, FoldName(name))
	})
	if errors.Is(err, store.ErrNotFound) {
		return ir.NodeRef{}, false, nil
	}
	if err != nil {
		return ir.NodeRef{}, false, err
	}
	return a.Child, true, nil
}

// CreateAssociation creates a peer association from source to target.
// Peer associations may form cycles; a duplicate (source, target, type)
// fails with ASSOCIATION_EXISTS.
//
// Events: OnCreateAssociation.
func (s *Service) CreateAssociation(ctx context.Context, source, target ir.NodeRef, assocType ir.QName) (ir.AssocRef, error) {
	def, err := s.requireAssoc(assocType, false)
	if err != nil {
		return ir.AssocRef{}, err
	}
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (ir.AssocRef, error) {
		if _, err := requireNode(ctx, tx, source); err != nil {
			return ir.AssocRef{}, err
		}
		if _, err := requireNode(ctx, tx, target); err != nil {
			return ir.AssocRef{}, err
		}
		a := ir.AssocRef{Source: source, Target: target, Type: assocType}
		if err := tx.InsertAssoc(ctx, a); err != nil {
			if errors.Is(err, store.ErrExists) {
				return ir.AssocRef{}, &Error{
					Code:    ErrCodeAssociationExists,
					Message: "association to " + target.String() + " already exists",
					Node:    source,
					QName:   assocType,
				}
			}
			return ir.AssocRef{}, err
		}
		if err := s.ensureAssocAspect(ctx, tx, source, def.Class); err != nil {
			return ir.AssocRef{}, err
		}
		if err := s.dispatch.OnCreateAssociation(ctx, a); err != nil {
			return ir.AssocRef{}, err
		}
		return a, nil
	})
}

// RemoveAssociation removes a peer association. Removing one that does
// not exist is a no-op.
//
// Events: BeforeDeleteAssociation, OnDeleteAssociation.
func (s *Service) RemoveAssociation(ctx context.Context, assoc ir.AssocRef) error {
	_, err := withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (struct{}, error) {
		targets, err := tx.TargetAssocs(ctx, assoc.Source)
		if err != nil {
			return struct{}{}, err
		}
		if !slices.Contains(targets, assoc) {
			return struct{}{}, nil
		}
		return struct{}{}, s.unlinkAssoc(ctx, tx, assoc)
	})
	return err
}

// TargetAssocs returns the peer associations from source.
func (s *Service) TargetAssocs(ctx context.Context, source ir.NodeRef) ([]ir.AssocRef, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) ([]ir.AssocRef, error) {
		if _, err := requireNode(ctx, tx, source); err != nil {
			return nil, err
		}
		return tx.TargetAssocs(ctx, source)
	})
}

// SourceAssocs returns the peer associations to target.
func (s *Service) SourceAssocs(ctx context.Context, target ir.NodeRef) ([]ir.AssocRef, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) ([]ir.AssocRef, error) {
		if _, err := requireNode(ctx, tx, target); err != nil {
			return nil, err
		}
		return tx.SourceAssocs(ctx, target)
	})
}
