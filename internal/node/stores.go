package node

import (
	"context"
	"errors"
	"slices"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/store"
)

// CreateStore creates a store and its root node and returns the root.
//
// Events: BeforeCreateStore (keyed on the store root type), OnCreateStore.
func (s *Service) CreateStore(ctx context.Context, ref ir.StoreRef) (ir.NodeRef, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (ir.NodeRef, error) {
		return s.createStore(ctx, tx, ref)
	})
}

func (s *Service) createStore(ctx context.Context, tx *store.Tx, ref ir.StoreRef) (ir.NodeRef, error) {
	if err := s.dispatch.BeforeCreateStore(ctx, dictionary.TypeStoreRoot, ref); err != nil {
		return ir.NodeRef{}, err
	}
	root := ir.NewNodeRef(ref, s.ids.Generate())
	if err := tx.CreateStore(ctx, ref, root, dictionary.TypeStoreRoot); err != nil {
		if errors.Is(err, store.ErrExists) {
			return ir.NodeRef{}, &Error{Code: ErrCodeStoreExists, Message: "store " + ref.String() + " already exists"}
		}
		return ir.NodeRef{}, err
	}
	for _, a := range s.dict.MandatoryAspectsOf(dictionary.TypeStoreRoot) {
		if _, err := tx.AddAspect(ctx, root, a); err != nil {
			return ir.NodeRef{}, err
		}
	}
	if err := s.dispatch.OnCreateStore(ctx, root); err != nil {
		return ir.NodeRef{}, err
	}
	s.logger.Debug("store created", "store", ref.String(), "root", root.String())
	return root, nil
}

// Stores returns every store in creation order.
func (s *Service) Stores(ctx context.Context) ([]ir.StoreRef, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) ([]ir.StoreRef, error) {
		return tx.Stores(ctx)
	})
}

// StoreExists reports whether ref exists.
func (s *Service) StoreExists(ctx context.Context, ref ir.StoreRef) (bool, error) {
	stores, err := s.Stores(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(stores, ref), nil
}

// RootNode returns the root node of a store.
func (s *Service) RootNode(ctx context.Context, ref ir.StoreRef) (ir.NodeRef, error) {
	return withTx(s, ctx, rootNodeOf(ref))
}

func rootNodeOf(ref ir.StoreRef) func(context.Context, *store.Tx) (ir.NodeRef, error) {
	return func(ctx context.Context, tx *store.Tx) (ir.NodeRef, error) {
		root, err := tx.StoreRoot(ctx, ref)
		if errors.Is(err, store.ErrNotFound) {
			return ir.NodeRef{}, invalidStore(ref)
		}
		return root, err
	}
}

// isRoot reports whether ref is its store's root.
func isRoot(ctx context.Context, tx *store.Tx, ref ir.NodeRef) (bool, error) {
	root, err := tx.StoreRoot(ctx, ref.Store)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return root == ref, nil
}
