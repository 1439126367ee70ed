package node

import (
	"context"
	"errors"

	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/store"
)

// CreateNode creates a node of nodeType under parent, linked by a primary
// association of assocType named assocQName, and returns that association.
//
// The node receives props, then the defaults of its type where absent,
// then the mandatory aspects of its type and the aspects implied by props
// together with their own mandatory aspects and defaults.
//
// Events: BeforeUpdateNode(parent), BeforeCreateNode, the aspect events,
// OnCreateNode, OnCreateChildAssociation(isNewNode=true),
// OnUpdateNode(parent), OnUpdateProperties.
func (s *Service) CreateNode(ctx context.Context, parent ir.NodeRef, assocType, assocQName, nodeType ir.QName, props ir.PropertyMap) (ir.ChildAssocRef, error) {
	if err := s.requireType(nodeType); err != nil {
		return ir.ChildAssocRef{}, err
	}
	def, err := s.requireAssoc(assocType, true)
	if err != nil {
		return ir.ChildAssocRef{}, err
	}
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (ir.ChildAssocRef, error) {
		if _, err := requireNode(ctx, tx, parent); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := checkNotPending(ctx, parent); err != nil {
			return ir.ChildAssocRef{}, err
		}

		ref := ir.NewNodeRef(parent.Store, s.ids.Generate())
		name := childName(ref, props, def)
		if name.Unique {
			if _, err := tx.ChildByName(ctx, parent, assocType, name.Key); err == nil {
				return ir.ChildAssocRef{}, duplicateName(parent, assocType, name.Display)
			} else if !errors.Is(err, store.ErrNotFound) {
				return ir.ChildAssocRef{}, err
			}
		}

		if err := s.dispatch.BeforeUpdateNode(ctx, parent); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := s.dispatch.BeforeCreateNode(ctx, parent, assocType, assocQName, nodeType); err != nil {
			return ir.ChildAssocRef{}, err
		}
		// A Before behaviour may have created a clashing sibling or started
		// deleting the parent.
		if err := checkNotPending(ctx, parent); err != nil {
			return ir.ChildAssocRef{}, err
		}

		if err := tx.InsertNode(ctx, ref, nodeType); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := tx.ReplaceProperties(ctx, ref, props); err != nil {
			return ir.ChildAssocRef{}, err
		}
		assoc, err := tx.InsertChildAssoc(ctx, ir.ChildAssocRef{
			Type:    assocType,
			Parent:  parent,
			QName:   assocQName,
			Child:   ref,
			Primary: true,
		}, name)
		if errors.Is(err, store.ErrDuplicateName) {
			return ir.ChildAssocRef{}, duplicateName(parent, assocType, name.Display)
		}
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := s.ensureAssocAspect(ctx, tx, parent, def.Class); err != nil {
			return ir.ChildAssocRef{}, err
		}

		if err := s.applyDefaults(ctx, tx, ref, nodeType); err != nil {
			return ir.ChildAssocRef{}, err
		}
		worklist := append(s.dict.MandatoryAspectsOf(nodeType), s.impliedAspects(nil, props)...)
		if _, err := s.addAspects(ctx, tx, ref, worklist); err != nil {
			return ir.ChildAssocRef{}, err
		}

		if err := s.dispatch.OnCreateNode(ctx, assoc); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := s.dispatch.OnCreateChildAssociation(ctx, assoc, true); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := s.dispatch.OnUpdateNode(ctx, parent); err != nil {
			return ir.ChildAssocRef{}, err
		}
		after, err := tx.Properties(ctx, ref)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := s.dispatch.OnUpdateProperties(ctx, ref, ir.PropertyMap{}, after); err != nil {
			return ir.ChildAssocRef{}, err
		}
		s.logger.Debug("node created", "node", ref.String(), "type", s.dict.Prefixed(nodeType))
		return assoc, nil
	})
}

// SetType changes the node's type. The new type's defaults and mandatory
// aspects are added; existing properties and aspects are kept. Setting the
// current type is a no-op.
//
// Events: BeforeUpdateNode, the aspect events, OnSetNodeType, OnUpdateNode,
// and OnUpdateProperties when properties changed.
func (s *Service) SetType(ctx context.Context, ref ir.NodeRef, typ ir.QName) error {
	if err := s.requireType(typ); err != nil {
		return err
	}
	_, err := withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (struct{}, error) {
		rec, err := requireNode(ctx, tx, ref)
		if err != nil {
			return struct{}{}, err
		}
		if rec.Type == typ {
			return struct{}{}, nil
		}
		if err := s.dispatch.BeforeUpdateNode(ctx, ref); err != nil {
			return struct{}{}, err
		}
		before, err := tx.Properties(ctx, ref)
		if err != nil {
			return struct{}{}, err
		}
		if err := tx.SetNodeType(ctx, ref, typ); err != nil {
			return struct{}{}, err
		}
		if err := s.applyDefaults(ctx, tx, ref, typ); err != nil {
			return struct{}{}, err
		}
		if _, err := s.addAspects(ctx, tx, ref, s.dict.MandatoryAspectsOf(typ)); err != nil {
			return struct{}{}, err
		}
		if err := s.dispatch.OnSetNodeType(ctx, ref, rec.Type, typ); err != nil {
			return struct{}{}, err
		}
		if err := s.dispatch.OnUpdateNode(ctx, ref); err != nil {
			return struct{}{}, err
		}
		after, err := tx.Properties(ctx, ref)
		if err != nil {
			return struct{}{}, err
		}
		if !before.Equal(after) {
			return struct{}{}, s.dispatch.OnUpdateProperties(ctx, ref, before, after)
		}
		return struct{}{}, nil
	})
	return err
}
