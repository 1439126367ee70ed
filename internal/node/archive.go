package node

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/policy"
	"github.com/roach88/noderepo/internal/store"
	"github.com/roach88/noderepo/internal/txn"
)

// archivedAssocs are the associations crossing an archived subtree's
// boundary, recorded on the subtree node they were attached to.
type archivedAssocs struct {
	parents  []string
	children []string
	sources  []string
	targets  []string
}

func (a archivedAssocs) empty() bool {
	return len(a.parents)+len(a.children)+len(a.sources)+len(a.targets) == 0
}

func (a archivedAssocs) properties() ir.PropertyMap {
	props := ir.PropertyMap{}
	set := func(name ir.QName, refs []string) {
		if len(refs) == 0 {
			return
		}
		vals := make(ir.ListValue, len(refs))
		for i, r := range refs {
			vals[i] = ir.Text(r)
		}
		props[name] = vals
	}
	set(dictionary.PropArchivedParentAssocs, a.parents)
	set(dictionary.PropArchivedChildAssocs, a.children)
	set(dictionary.PropArchivedSourceAssocs, a.sources)
	set(dictionary.PropArchivedTargetAssocs, a.targets)
	return props
}

func textList(v ir.Value) []string {
	list, _ := v.(ir.ListValue)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(ir.TextValue); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// primarySubtree returns ref and its primary descendants, parents before
// children.
func primarySubtree(ctx context.Context, tx *store.Tx, ref ir.NodeRef) ([]ir.NodeRef, error) {
	out := []ir.NodeRef{ref}
	for i := 0; i < len(out); i++ {
		children, err := tx.ChildAssocs(ctx, out[i])
		if err != nil {
			return nil, err
		}
		for _, a := range children {
			if a.Primary {
				out = append(out, a.Child)
			}
		}
	}
	return out, nil
}

// archive moves rec's primary subtree under the root of the archive store.
//
// Events: BeforeDeleteNode, the delete events of associations crossing the
// subtree boundary, OnDeleteNode(isArchived=true).
func (s *Service) archive(ctx context.Context, tx *store.Tx, rec store.NodeRecord, archiveStore ir.StoreRef) error {
	ref := rec.Ref
	t, ok := txn.FromContext(ctx)
	if !ok {
		return errNoTransaction
	}
	t.MarkPendingDeletion(ref)
	defer t.ClearPendingDeletion(ref)

	if err := s.dispatch.BeforeDeleteNode(ctx, ref); err != nil {
		return err
	}

	archiveRoot, err := tx.StoreRoot(ctx, archiveStore)
	if errors.Is(err, store.ErrNotFound) {
		archiveRoot, err = s.createStore(ctx, tx, archiveStore)
	}
	if err != nil {
		return err
	}

	subtree, err := primarySubtree(ctx, tx, ref)
	if err != nil {
		return err
	}
	for _, n := range subtree[1:] {
		t.MarkPendingDeletion(n)
		defer t.ClearPendingDeletion(n)
	}
	for _, n := range subtree {
		if err := s.detachBoundary(ctx, tx, n, subtree); err != nil {
			return err
		}
	}

	primary, err := tx.PrimaryParent(ctx, ref)
	if err != nil {
		return err
	}
	name, err := tx.ChildNameOf(ctx, primary)
	if err != nil {
		return err
	}
	if _, err := tx.DeleteChildAssoc(ctx, primary); err != nil {
		return err
	}
	if err := relocate(ctx, tx, subtree, archiveStore); err != nil {
		return err
	}

	archived := ir.NewNodeRef(archiveStore, ref.ID)
	_, err = tx.InsertChildAssoc(ctx, ir.ChildAssocRef{
		Type:    dictionary.AssocChildren,
		Parent:  archiveRoot,
		QName:   primary.QName,
		Child:   archived,
		Primary: true,
	}, store.ChildName{Display: name, Key: FoldName(name)})
	if err != nil {
		return err
	}
	if _, err := tx.AddAspect(ctx, archived, dictionary.AspectArchived); err != nil {
		return err
	}
	if err := tx.SetProperty(ctx, archived, dictionary.PropArchivedOriginalParentAssoc, ir.Text(primary.String())); err != nil {
		return err
	}

	if err := s.dispatch.OnDeleteNode(ctx, primary, policy.Classes{Type: rec.Type, Aspects: rec.Aspects}, true); err != nil {
		return err
	}
	s.logger.Info("node archived",
		"node", ref.String(),
		"archived", archived.String(),
		"subtree", len(subtree))
	return nil
}

// detachBoundary removes n's associations whose other end lies outside
// subtree and records them on n. n's own primary parent association is
// left for the caller.
func (s *Service) detachBoundary(ctx context.Context, tx *store.Tx, n ir.NodeRef, subtree []ir.NodeRef) error {
	var rec archivedAssocs

	parents, err := tx.ParentAssocs(ctx, n)
	if err != nil {
		return err
	}
	for _, a := range parents {
		if a.Primary || slices.Contains(subtree, a.Parent) {
			continue
		}
		rec.parents = append(rec.parents, a.String())
		if err := s.unlinkChild(ctx, tx, a); err != nil {
			return err
		}
	}

	children, err := tx.ChildAssocs(ctx, n)
	if err != nil {
		return err
	}
	for _, a := range children {
		if a.Primary || slices.Contains(subtree, a.Child) {
			continue
		}
		rec.children = append(rec.children, a.String())
		if err := s.unlinkChild(ctx, tx, a); err != nil {
			return err
		}
	}

	targets, err := tx.TargetAssocs(ctx, n)
	if err != nil {
		return err
	}
	for _, a := range targets {
		if slices.Contains(subtree, a.Target) {
			continue
		}
		rec.targets = append(rec.targets, a.String())
		if err := s.unlinkAssoc(ctx, tx, a); err != nil {
			return err
		}
	}

	sources, err := tx.SourceAssocs(ctx, n)
	if err != nil {
		return err
	}
	for _, a := range sources {
		if slices.Contains(subtree, a.Source) {
			continue
		}
		rec.sources = append(rec.sources, a.String())
		if err := s.unlinkAssoc(ctx, tx, a); err != nil {
			return err
		}
	}

	if rec.empty() {
		return nil
	}
	if _, err := tx.AddAspect(ctx, n, dictionary.AspectArchivedAssocs); err != nil {
		return err
	}
	props := rec.properties()
	for _, k := range props.SortedKeys() {
		if err := tx.SetProperty(ctx, n, k, props[k]); err != nil {
			return err
		}
	}
	return nil
}

// relocate moves every node in refs into store, keeping ids.
func relocate(ctx context.Context, tx *store.Tx, refs []ir.NodeRef, to ir.StoreRef) error {
	for _, n := range refs {
		if err := tx.ChangeNodeRef(ctx, n, ir.NewNodeRef(to, n.ID)); err != nil {
			return err
		}
	}
	return nil
}

// RestoreNode moves an archived node and its subtree back out of the
// archive store. Zero destParent, assocType or assocQName default to those
// of the association the node was archived from. Recorded associations are
// re-created when their other end still exists.
//
// Events: the create events of re-created associations, OnRestoreNode.
func (s *Service) RestoreNode(ctx context.Context, ref ir.NodeRef, destParent ir.NodeRef, assocType, assocQName ir.QName) (ir.ChildAssocRef, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (ir.ChildAssocRef, error) {
		rec, err := requireNode(ctx, tx, ref)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		if !slices.Contains(rec.Aspects, dictionary.AspectArchived) {
			return ir.ChildAssocRef{}, &Error{Code: ErrCodeNotArchived, Message: "node is not archived", Node: ref}
		}
		props, err := tx.Properties(ctx, ref)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		raw, _ := props[dictionary.PropArchivedOriginalParentAssoc].(ir.TextValue)
		orig, err := ir.ParseChildAssocRef(string(raw))
		if err != nil {
			return ir.ChildAssocRef{}, fmt.Errorf("restore %s: %w", ref, err)
		}
		if destParent.IsZero() {
			destParent = orig.Parent
		}
		if assocType.IsZero() {
			assocType = orig.Type
		}
		if assocQName.IsZero() {
			assocQName = orig.QName
		}
		def, err := s.requireAssoc(assocType, true)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		if _, err := requireNode(ctx, tx, destParent); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := checkNotPending(ctx, destParent); err != nil {
			return ir.ChildAssocRef{}, err
		}

		subtree, err := primarySubtree(ctx, tx, ref)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		current, err := tx.PrimaryParent(ctx, ref)
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		if _, err := tx.DeleteChildAssoc(ctx, current); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := relocate(ctx, tx, subtree, destParent.Store); err != nil {
			return ir.ChildAssocRef{}, err
		}

		restored := ir.NewNodeRef(destParent.Store, ref.ID)
		name := childName(restored, props, def)
		assoc, err := tx.InsertChildAssoc(ctx, ir.ChildAssocRef{
			Type:    assocType,
			Parent:  destParent,
			QName:   assocQName,
			Child:   restored,
			Primary: true,
		}, name)
		if errors.Is(err, store.ErrDuplicateName) {
			return ir.ChildAssocRef{}, duplicateName(destParent, assocType, name.Display)
		}
		if err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := s.ensureAssocAspect(ctx, tx, destParent, def.Class); err != nil {
			return ir.ChildAssocRef{}, err
		}
		if err := removeSilently(ctx, tx, s.dict, restored, dictionary.AspectArchived); err != nil {
			return ir.ChildAssocRef{}, err
		}

		for _, n := range subtree {
			if err := s.reattach(ctx, tx, ir.NewNodeRef(destParent.Store, n.ID)); err != nil {
				return ir.ChildAssocRef{}, err
			}
		}

		if err := s.dispatch.OnRestoreNode(ctx, assoc); err != nil {
			return ir.ChildAssocRef{}, err
		}
		s.logger.Info("node restored",
			"node", restored.String(),
			"archived", ref.String(),
			"parent", destParent.String())
		return assoc, nil
	})
}

// reattach re-creates the associations recorded on n when it was archived.
func (s *Service) reattach(ctx context.Context, tx *store.Tx, n ir.NodeRef) error {
	aspects, err := tx.Aspects(ctx, n)
	if err != nil {
		return err
	}
	if !slices.Contains(aspects, dictionary.AspectArchivedAssocs) {
		return nil
	}
	props, err := tx.Properties(ctx, n)
	if err != nil {
		return err
	}
	if err := removeSilently(ctx, tx, s.dict, n, dictionary.AspectArchivedAssocs); err != nil {
		return err
	}

	for _, raw := range textList(props[dictionary.PropArchivedParentAssocs]) {
		a, err := ir.ParseChildAssocRef(raw)
		if err != nil {
			return err
		}
		a.Child = n
		if err := s.relink(ctx, tx, a, a.Parent); err != nil {
			return err
		}
	}
	for _, raw := range textList(props[dictionary.PropArchivedChildAssocs]) {
		a, err := ir.ParseChildAssocRef(raw)
		if err != nil {
			return err
		}
		a.Parent = n
		if err := s.relink(ctx, tx, a, a.Child); err != nil {
			return err
		}
	}
	for _, raw := range textList(props[dictionary.PropArchivedTargetAssocs]) {
		a, err := ir.ParseAssocRef(raw)
		if err != nil {
			return err
		}
		a.Source = n
		if err := s.repeer(ctx, tx, a, a.Target); err != nil {
			return err
		}
	}
	for _, raw := range textList(props[dictionary.PropArchivedSourceAssocs]) {
		a, err := ir.ParseAssocRef(raw)
		if err != nil {
			return err
		}
		a.Target = n
		if err := s.repeer(ctx, tx, a, a.Source); err != nil {
			return err
		}
	}
	return nil
}

// relink re-creates a secondary child association when other exists.
func (s *Service) relink(ctx context.Context, tx *store.Tx, a ir.ChildAssocRef, other ir.NodeRef) error {
	exists, err := tx.NodeExists(ctx, other)
	if err != nil || !exists {
		return err
	}
	def, ok := s.dict.Association(a.Type)
	if !ok {
		return nil
	}
	props, err := tx.Properties(ctx, a.Child)
	if err != nil {
		return err
	}
	a.Primary = false
	a, err = tx.InsertChildAssoc(ctx, a, childName(a.Child, props, def))
	if errors.Is(err, store.ErrDuplicateName) || errors.Is(err, store.ErrExists) {
		s.logger.Warn("archived child association not restored", "assoc", a.String(), "err", err)
		return nil
	}
	if err != nil {
		return err
	}
	return s.dispatch.OnCreateChildAssociation(ctx, a, false)
}

// repeer re-creates a peer association when other exists.
func (s *Service) repeer(ctx context.Context, tx *store.Tx, a ir.AssocRef, other ir.NodeRef) error {
	exists, err := tx.NodeExists(ctx, other)
	if err != nil || !exists {
		return err
	}
	if err := tx.InsertAssoc(ctx, a); errors.Is(err, store.ErrExists) {
		return nil
	} else if err != nil {
		return err
	}
	return s.dispatch.OnCreateAssociation(ctx, a)
}

// removeSilently removes a system aspect and its properties without
// firing events.
func removeSilently(ctx context.Context, tx *store.Tx, dict *dictionary.Dictionary, ref ir.NodeRef, aspect ir.QName) error {
	for _, p := range dict.PropertiesOf(aspect) {
		if _, err := tx.RemoveProperty(ctx, ref, p.Name); err != nil {
			return err
		}
	}
	_, err := tx.RemoveAspect(ctx, ref, aspect)
	return err
}
