package node

import (
	"context"
	"errors"
	"maps"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/store"
)

// Properties returns the node's properties.
func (s *Service) Properties(ctx context.Context, ref ir.NodeRef) (ir.PropertyMap, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (ir.PropertyMap, error) {
		if _, err := requireNode(ctx, tx, ref); err != nil {
			return nil, err
		}
		return tx.Properties(ctx, ref)
	})
}

// Property returns one property, or nil when it is not set.
func (s *Service) Property(ctx context.Context, ref ir.NodeRef, name ir.QName) (ir.Value, error) {
	props, err := s.Properties(ctx, ref)
	if err != nil {
		return nil, err
	}
	return props[name], nil
}

// SetProperties replaces all the node's properties with props.
func (s *Service) SetProperties(ctx context.Context, ref ir.NodeRef, props ir.PropertyMap) error {
	return s.mutateProperties(ctx, ref, func(p ir.PropertyMap) {
		maps.DeleteFunc(p, func(ir.QName, ir.Value) bool { return true })
		maps.Copy(p, props)
	})
}

// AddProperties merges props into the node's properties.
func (s *Service) AddProperties(ctx context.Context, ref ir.NodeRef, props ir.PropertyMap) error {
	return s.mutateProperties(ctx, ref, func(p ir.PropertyMap) {
		maps.Copy(p, props)
	})
}

// SetProperty sets one property.
func (s *Service) SetProperty(ctx context.Context, ref ir.NodeRef, name ir.QName, v ir.Value) error {
	return s.AddProperties(ctx, ref, ir.PropertyMap{name: v})
}

// RemoveProperty removes one property. Removing an absent property still
// fires the update events.
func (s *Service) RemoveProperty(ctx context.Context, ref ir.NodeRef, name ir.QName) error {
	return s.mutateProperties(ctx, ref, func(p ir.PropertyMap) {
		delete(p, name)
	})
}

func (s *Service) mutateProperties(ctx context.Context, ref ir.NodeRef, mutate func(ir.PropertyMap)) error {
	_, err := withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (struct{}, error) {
		if _, err := requireNode(ctx, tx, ref); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.updateProperties(ctx, tx, ref, mutate)
	})
	return err
}

// updateProperties applies mutate to a copy of the node's properties and
// persists the result. Properties declared by aspects the node lacks add
// those aspects.
//
// Events: BeforeUpdateNode, the implied aspects' events, OnUpdateNode,
// OnUpdateProperties.
func (s *Service) updateProperties(ctx context.Context, tx *store.Tx, ref ir.NodeRef, mutate func(ir.PropertyMap)) error {
	if err := s.dispatch.BeforeUpdateNode(ctx, ref); err != nil {
		return err
	}
	before, err := tx.Properties(ctx, ref)
	if err != nil {
		return err
	}
	next := before.Clone()
	mutate(next)
	if err := tx.ReplaceProperties(ctx, ref, next); err != nil {
		return err
	}

	present, err := tx.Aspects(ctx, ref)
	if err != nil {
		return err
	}
	if implied := s.impliedAspects(present, next); len(implied) > 0 {
		if _, err := s.addAspects(ctx, tx, ref, implied); err != nil {
			return err
		}
	}
	if err := s.checkRename(ctx, tx, ref, before); err != nil {
		return err
	}

	after, err := tx.Properties(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.dispatch.OnUpdateNode(ctx, ref); err != nil {
		return err
	}
	return s.dispatch.OnUpdateProperties(ctx, ref, before, after)
}

// checkRename re-keys the node's parent associations when its cm:name
// changed from before.
func (s *Service) checkRename(ctx context.Context, tx *store.Tx, ref ir.NodeRef, before ir.PropertyMap) error {
	after, err := tx.Properties(ctx, ref)
	if err != nil {
		return err
	}
	if ir.ValuesEqual(before[dictionary.PropName], after[dictionary.PropName]) {
		return nil
	}
	name := displayName(ref, after)
	if err := tx.RenameChild(ctx, ref, name, FoldName(name)); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			parent, _ := tx.PrimaryParent(ctx, ref)
			return duplicateName(parent.Parent, parent.Type, name)
		}
		return err
	}
	return nil
}
