package node

import (
	"context"
	"errors"
	"slices"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/policy"
	"github.com/roach88/noderepo/internal/store"
	"github.com/roach88/noderepo/internal/txn"
)

// DeleteNode deletes the node and its primary subtree. When the node's
// store has an archive store, its type is archivable and it is not
// sys:temporary, the subtree is archived instead (see RestoreNode).
//
// Descendants are deleted depth first before the node's own secondary and
// peer associations are removed. Nodes at the other end of those
// associations are untouched. Deleting a node whose cascade delete is
// already in progress in this transaction is a no-op.
//
// Events per deleted node: BeforeDeleteNode, the events of its primary
// children, Before/OnDeleteChildAssociation for each secondary child and
// parent association, Before/OnDeleteAssociation for each peer
// association, OnDeleteNode(isArchived=false).
func (s *Service) DeleteNode(ctx context.Context, ref ir.NodeRef) error {
	_, err := withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (struct{}, error) {
		if t, _ := txn.FromContext(ctx); t.IsPendingDeletion(ref) {
			return struct{}{}, nil
		}
		rec, err := requireNode(ctx, tx, ref)
		if err != nil {
			return struct{}{}, err
		}
		root, err := isRoot(ctx, tx, ref)
		if err != nil {
			return struct{}{}, err
		}
		if root {
			return struct{}{}, &Error{Code: ErrCodeRootNode, Message: "a store root cannot be deleted", Node: ref}
		}
		return struct{}{}, s.deleteOrArchive(ctx, tx, rec)
	})
	return err
}

func (s *Service) deleteOrArchive(ctx context.Context, tx *store.Tx, rec store.NodeRecord) error {
	if archive, ok := s.archiveStoreFor(rec); ok {
		return s.archive(ctx, tx, rec, archive)
	}
	return s.deleteNode(ctx, tx, rec.Ref)
}

// archiveStoreFor returns the store rec archives into on delete.
func (s *Service) archiveStoreFor(rec store.NodeRecord) (ir.StoreRef, bool) {
	archive, ok := s.archives[rec.Ref.Store]
	if !ok || !s.dict.IsArchive(rec.Type) || slices.Contains(rec.Aspects, dictionary.AspectTemporary) {
		return ir.StoreRef{}, false
	}
	return archive, true
}

func (s *Service) deleteNode(ctx context.Context, tx *store.Tx, ref ir.NodeRef) error {
	t, ok := txn.FromContext(ctx)
	if !ok {
		return errNoTransaction
	}
	if t.IsPendingDeletion(ref) {
		return nil
	}
	// A behaviour earlier in the cascade may already have removed it.
	if exists, err := tx.NodeExists(ctx, ref); err != nil || !exists {
		return err
	}
	t.MarkPendingDeletion(ref)
	defer t.ClearPendingDeletion(ref)

	if err := s.dispatch.BeforeDeleteNode(ctx, ref); err != nil {
		return err
	}

	children, err := tx.ChildAssocs(ctx, ref)
	if err != nil {
		return err
	}
	for _, a := range children {
		if a.Primary {
			err = s.deletePrimaryChild(ctx, tx, a)
		} else {
			err = s.unlinkChild(ctx, tx, a)
		}
		if err != nil {
			return err
		}
	}

	parents, err := tx.ParentAssocs(ctx, ref)
	if err != nil {
		return err
	}
	var primary ir.ChildAssocRef
	for _, a := range parents {
		if a.Primary {
			primary = a
			continue
		}
		if err := s.unlinkChild(ctx, tx, a); err != nil {
			return err
		}
	}

	if err := s.unlinkPeers(ctx, tx, ref); err != nil {
		return err
	}

	rec, err := tx.Node(ctx, ref)
	if err != nil {
		return err
	}
	if err := tx.DeleteNode(ctx, ref); err != nil {
		return err
	}
	if primary.Child.IsZero() {
		primary = ir.ChildAssocRef{Child: ref}
	}
	if err := s.dispatch.OnDeleteNode(ctx, primary, policy.Classes{Type: rec.Type, Aspects: rec.Aspects}, false); err != nil {
		return err
	}
	s.logger.Debug("node deleted", "node", ref.String(), "type", s.dict.Prefixed(rec.Type))
	return nil
}

// deletePrimaryChild deletes a.Child if a is still its primary parent
// association. Behaviours of earlier siblings may have re-parented it.
func (s *Service) deletePrimaryChild(ctx context.Context, tx *store.Tx, a ir.ChildAssocRef) error {
	current, err := tx.PrimaryParent(ctx, a.Child)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.Parent != a.Parent {
		return nil
	}
	return s.deleteNode(ctx, tx, a.Child)
}

// unlinkPeers removes every peer association the node takes part in.
func (s *Service) unlinkPeers(ctx context.Context, tx *store.Tx, ref ir.NodeRef) error {
	targets, err := tx.TargetAssocs(ctx, ref)
	if err != nil {
		return err
	}
	sources, err := tx.SourceAssocs(ctx, ref)
	if err != nil {
		return err
	}
	for _, a := range sources {
		if a.Source != ref {
			targets = append(targets, a)
		}
	}
	for _, a := range targets {
		if err := s.unlinkAssoc(ctx, tx, a); err != nil {
			return err
		}
	}
	return nil
}

// unlinkChild removes a secondary child association. An association a
// cascade has already removed is skipped.
func (s *Service) unlinkChild(ctx context.Context, tx *store.Tx, a ir.ChildAssocRef) error {
	if _, err := tx.ChildNameOf(ctx, a); errors.Is(err, store.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if err := s.dispatch.BeforeDeleteChildAssociation(ctx, a); err != nil {
		return err
	}
	if _, err := tx.DeleteChildAssoc(ctx, a); err != nil {
		return err
	}
	return s.dispatch.OnDeleteChildAssociation(ctx, a)
}

// unlinkAssoc removes a peer association.
func (s *Service) unlinkAssoc(ctx context.Context, tx *store.Tx, a ir.AssocRef) error {
	if err := s.dispatch.BeforeDeleteAssociation(ctx, a); err != nil {
		return err
	}
	if _, err := tx.DeleteAssoc(ctx, a); err != nil {
		return err
	}
	return s.dispatch.OnDeleteAssociation(ctx, a)
}
