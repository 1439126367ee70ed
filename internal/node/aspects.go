package node

import (
	"context"
	"slices"

	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/store"
)

// AddAspect adds aspect to the node together with the aspects it mandates,
// transitively, and sets props. Schema defaults fill only properties that
// are still absent afterwards.
//
// Adding an aspect the node already carries fires no aspect events; any
// props are applied as AddProperties would.
//
// Events: BeforeUpdateNode, then per added aspect in worklist order
// BeforeAddAspect and OnAddAspect, then OnUpdateNode, and
// OnUpdateProperties when properties changed.
func (s *Service) AddAspect(ctx context.Context, ref ir.NodeRef, aspect ir.QName, props ir.PropertyMap) error {
	if err := s.requireAspect(aspect); err != nil {
		return err
	}
	_, err := withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (struct{}, error) {
		rec, err := requireNode(ctx, tx, ref)
		if err != nil {
			return struct{}{}, err
		}
		if slices.Contains(rec.Aspects, aspect) {
			if len(props) == 0 {
				return struct{}{}, nil
			}
			return struct{}{}, s.updateProperties(ctx, tx, ref, func(p ir.PropertyMap) {
				for k, v := range props {
					p[k] = v
				}
			})
		}

		if err := s.dispatch.BeforeUpdateNode(ctx, ref); err != nil {
			return struct{}{}, err
		}
		before, err := tx.Properties(ctx, ref)
		if err != nil {
			return struct{}{}, err
		}
		for _, k := range props.SortedKeys() {
			if err := tx.SetProperty(ctx, ref, k, props[k]); err != nil {
				return struct{}{}, err
			}
		}
		worklist := append([]ir.QName{aspect}, s.impliedAspects(rec.Aspects, props)...)
		if _, err := s.addAspects(ctx, tx, ref, worklist); err != nil {
			return struct{}{}, err
		}
		if err := s.checkRename(ctx, tx, ref, before); err != nil {
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

// addAspects adds each aspect in worklist and, breadth first, the aspects
// it mandates. Each aspect is considered once, so mandatory-aspect cycles
// terminate. Aspects the node already carries are skipped along with what
// they mandate. Returns the added aspects in order.
func (s *Service) addAspects(ctx context.Context, tx *store.Tx, ref ir.NodeRef, worklist []ir.QName) ([]ir.QName, error) {
	present, err := tx.Aspects(ctx, ref)
	if err != nil {
		return nil, err
	}
	visited := make(map[ir.QName]bool)
	for _, a := range present {
		visited[a] = true
	}

	var added []ir.QName
	queue := slices.Clone(worklist)
	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		if visited[a] {
			continue
		}
		visited[a] = true

		if err := s.dispatch.BeforeAddAspect(ctx, ref, a); err != nil {
			return nil, err
		}
		if _, err := tx.AddAspect(ctx, ref, a); err != nil {
			return nil, err
		}
		if err := s.applyDefaults(ctx, tx, ref, a); err != nil {
			return nil, err
		}
		if err := s.dispatch.OnAddAspect(ctx, ref, a); err != nil {
			return nil, err
		}
		added = append(added, a)
		queue = append(queue, s.dict.MandatoryAspectsOf(a)...)
	}
	return added, nil
}

// applyDefaults sets class's default properties that the node lacks.
func (s *Service) applyDefaults(ctx context.Context, tx *store.Tx, ref ir.NodeRef, class ir.QName) error {
	defaults := s.dict.DefaultPropertiesOf(class)
	if len(defaults) == 0 {
		return nil
	}
	props, err := tx.Properties(ctx, ref)
	if err != nil {
		return err
	}
	for _, k := range defaults.SortedKeys() {
		if _, set := props[k]; set {
			continue
		}
		if err := tx.SetProperty(ctx, ref, k, defaults[k]); err != nil {
			return err
		}
	}
	return nil
}

// impliedAspects returns the aspects declaring properties in props that
// are not among present, in property name order.
func (s *Service) impliedAspects(present []ir.QName, props ir.PropertyMap) []ir.QName {
	var out []ir.QName
	for _, k := range props.SortedKeys() {
		def, ok := s.dict.Property(k)
		if !ok {
			continue
		}
		if _, isAspect := s.dict.Aspect(def.Class); !isAspect {
			continue
		}
		if slices.Contains(present, def.Class) || slices.Contains(out, def.Class) {
			continue
		}
		out = append(out, def.Class)
	}
	return out
}

// ensureAssocAspect adds the aspect declaring def's association to source
// when it is missing.
func (s *Service) ensureAssocAspect(ctx context.Context, tx *store.Tx, source ir.NodeRef, assocClass ir.QName) error {
	if _, isAspect := s.dict.Aspect(assocClass); !isAspect {
		return nil
	}
	_, err := s.addAspects(ctx, tx, source, []ir.QName{assocClass})
	return err
}

// RemoveAspect removes aspect, the properties it declares, and the
// associations of the association types it declares. Children attached by
// a primary association of such a type are deleted. Removing an aspect the
// node lacks is a no-op.
//
// Events: BeforeUpdateNode, BeforeRemoveAspect, the delete events of the
// removed associations, OnRemoveAspect, OnUpdateNode, and
// OnUpdateProperties when properties changed.
func (s *Service) RemoveAspect(ctx context.Context, ref ir.NodeRef, aspect ir.QName) error {
	if err := s.requireAspect(aspect); err != nil {
		return err
	}
	_, err := withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (struct{}, error) {
		rec, err := requireNode(ctx, tx, ref)
		if err != nil {
			return struct{}{}, err
		}
		if !slices.Contains(rec.Aspects, aspect) {
			return struct{}{}, nil
		}

		if err := s.dispatch.BeforeUpdateNode(ctx, ref); err != nil {
			return struct{}{}, err
		}
		if err := s.dispatch.BeforeRemoveAspect(ctx, ref, aspect); err != nil {
			return struct{}{}, err
		}
		before, err := tx.Properties(ctx, ref)
		if err != nil {
			return struct{}{}, err
		}
		for _, p := range s.dict.PropertiesOf(aspect) {
			if _, err := tx.RemoveProperty(ctx, ref, p.Name); err != nil {
				return struct{}{}, err
			}
		}
		if err := s.removeAspectAssocs(ctx, tx, ref, aspect); err != nil {
			return struct{}{}, err
		}
		if _, err := tx.RemoveAspect(ctx, ref, aspect); err != nil {
			return struct{}{}, err
		}
		if err := s.dispatch.OnRemoveAspect(ctx, ref, aspect); err != nil {
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

func (s *Service) removeAspectAssocs(ctx context.Context, tx *store.Tx, ref ir.NodeRef, aspect ir.QName) error {
	defs := s.dict.AssociationsOf(aspect)
	if len(defs) == 0 {
		return nil
	}
	declared := make(map[ir.QName]bool, len(defs))
	for _, d := range defs {
		declared[d.Name] = true
	}

	children, err := tx.ChildAssocs(ctx, ref)
	if err != nil {
		return err
	}
	for _, a := range children {
		if !declared[a.Type] {
			continue
		}
		if a.Primary {
			if err := s.deleteNode(ctx, tx, a.Child); err != nil {
				return err
			}
			continue
		}
		if err := s.unlinkChild(ctx, tx, a); err != nil {
			return err
		}
	}

	targets, err := tx.TargetAssocs(ctx, ref)
	if err != nil {
		return err
	}
	for _, a := range targets {
		if declared[a.Type] {
			if err := s.unlinkAssoc(ctx, tx, a); err != nil {
				return err
			}
		}
	}
	return nil
}
