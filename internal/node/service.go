package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/policy"
	"github.com/roach88/noderepo/internal/store"
	"github.com/roach88/noderepo/internal/txn"
)

// Service is the node mutation API. Every operation performs its
// structural effect inside a transaction and fires the matching policy
// events through its Dispatcher.
//
// Operations called with a context that already carries a Service
// transaction (for example from inside a behaviour) join it. Otherwise
// each operation runs in its own transaction, committed after the
// transaction_commit behaviours have run.
//
// Thread-safety: a Service is safe for concurrent use; the store
// serialises transactions.
type Service struct {
	store    *store.Store
	dict     *dictionary.Dictionary
	dispatch *policy.Dispatcher
	ids      txn.Generator
	txIDs    txn.Generator
	archives map[ir.StoreRef]ir.StoreRef
	logger   *slog.Logger
}

type config struct {
	ids          txn.Generator
	archives     map[ir.StoreRef]ir.StoreRef
	logger       *slog.Logger
	dispatchOpts []policy.Option
}

// Option configures a Service.
type Option func(*config)

// WithIDGenerator sets the generator for node ids.
//
// Default: txn.UUIDv7Generator
func WithIDGenerator(g txn.Generator) Option {
	return func(c *config) {
		c.ids = g
	}
}

// WithArchiveStore archives nodes deleted from store into archive.
func WithArchiveStore(store, archive ir.StoreRef) Option {
	return func(c *config) {
		c.archives[store] = archive
	}
}

// WithLogger sets the logger of the service and its dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithDispatchOptions configures the Dispatcher the service creates.
func WithDispatchOptions(opts ...policy.Option) Option {
	return func(c *config) {
		c.dispatchOpts = append(c.dispatchOpts, opts...)
	}
}

// New creates a Service over st. Behaviours bound to classes and assocs
// fire for its operations.
func New(st *store.Store, dict *dictionary.Dictionary, classes *policy.ClassRegistry, assocs *policy.AssociationRegistry, opts ...Option) *Service {
	c := &config{
		ids:      txn.UUIDv7Generator{},
		archives: make(map[ir.StoreRef]ir.StoreRef),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	s := &Service{
		store:    st,
		dict:     dict,
		ids:      c.ids,
		txIDs:    txn.UUIDv7Generator{},
		archives: c.archives,
		logger:   c.logger,
	}
	dopts := append([]policy.Option{policy.WithLogger(c.logger)}, c.dispatchOpts...)
	s.dispatch = policy.NewDispatcher(dict, classes, assocs, s, dopts...)
	return s
}

// Dispatcher returns the service's dispatcher.
func (s *Service) Dispatcher() *policy.Dispatcher { return s.dispatch }

// Dictionary returns the service's dictionary.
func (s *Service) Dictionary() *dictionary.Dictionary { return s.dict }

type storeTxKey struct{}

// InTransaction runs fn in a transaction. When ctx already carries one,
// fn joins it. Otherwise a new transaction is committed when fn succeeds
// and the transaction_commit behaviours have run, and rolled back when
// either fails.
func (s *Service) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, err := storeTx(ctx); err == nil {
		return fn(ctx)
	}

	stx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer stx.Rollback()

	t := txn.New(s.txIDs.Generate())
	t.SetResource(storeTxKey{}, stx)
	defer t.Complete()
	ctx = txn.WithTransaction(ctx, t)

	if err := fn(ctx); err != nil {
		return err
	}
	if err := t.RunBeforeCommit(ctx); err != nil {
		return err
	}
	t.Complete()
	return stx.Commit()
}

// withTx runs fn in a transaction and returns its result.
func withTx[T any](s *Service, ctx context.Context, fn func(ctx context.Context, tx *store.Tx) (T, error)) (T, error) {
	var out T
	err := s.InTransaction(ctx, func(ctx context.Context) error {
		tx, err := storeTx(ctx)
		if err != nil {
			return err
		}
		out, err = fn(ctx, tx)
		return err
	})
	return out, err
}

func storeTx(ctx context.Context) (*store.Tx, error) {
	t, ok := txn.FromContext(ctx)
	if !ok || t.Done() {
		return nil, errNoTransaction
	}
	v, ok := t.Resource(storeTxKey{})
	if !ok {
		return nil, errNoTransaction
	}
	return v.(*store.Tx), nil
}

var errNoTransaction = errors.New("no node service transaction in context")

// NodeClasses implements policy.NodeSource.
func (s *Service) NodeClasses(ctx context.Context, ref ir.NodeRef) (policy.Classes, bool, error) {
	tx, err := storeTx(ctx)
	if err != nil {
		return policy.Classes{}, false, err
	}
	rec, err := tx.Node(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return policy.Classes{}, false, nil
	}
	if err != nil {
		return policy.Classes{}, false, err
	}
	return policy.Classes{Type: rec.Type, Aspects: rec.Aspects}, true, nil
}

// requireNode reads ref or returns INVALID_NODE_REF.
func requireNode(ctx context.Context, tx *store.Tx, ref ir.NodeRef) (store.NodeRecord, error) {
	rec, err := tx.Node(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return store.NodeRecord{}, invalidNode(ref)
	}
	return rec, err
}

// checkNotPending fails when ref's cascade delete is in progress.
func checkNotPending(ctx context.Context, ref ir.NodeRef) error {
	if t, ok := txn.FromContext(ctx); ok && t.IsPendingDeletion(ref) {
		return pendingDeletion(ref)
	}
	return nil
}

func (s *Service) requireType(q ir.QName) error {
	if _, ok := s.dict.Type(q); !ok {
		return &Error{Code: ErrCodeInvalidType, Message: "not a type", QName: q}
	}
	return nil
}

func (s *Service) requireAspect(q ir.QName) error {
	if _, ok := s.dict.Aspect(q); !ok {
		return &Error{Code: ErrCodeInvalidAspect, Message: "not an aspect", QName: q}
	}
	return nil
}

// requireAssoc returns the definition of an association type of the given
// kind.
func (s *Service) requireAssoc(q ir.QName, child bool) (*dictionary.AssocDef, error) {
	def, ok := s.dict.Association(q)
	if !ok {
		return nil, &Error{Code: ErrCodeInvalidAssociation, Message: "unknown association type", QName: q}
	}
	if def.Child != child {
		kind := "peer"
		if child {
			kind = "child"
		}
		return nil, &Error{
			Code:    ErrCodeInvalidAssociation,
			Message: fmt.Sprintf("not a %s association type", kind),
			QName:   q,
		}
	}
	return def, nil
}

// Exists reports whether ref exists.
func (s *Service) Exists(ctx context.Context, ref ir.NodeRef) (bool, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (bool, error) {
		return tx.NodeExists(ctx, ref)
	})
}

// Type returns the node's type.
func (s *Service) Type(ctx context.Context, ref ir.NodeRef) (ir.QName, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) (ir.QName, error) {
		rec, err := requireNode(ctx, tx, ref)
		return rec.Type, err
	})
}

// Aspects returns the node's aspects sorted by qname.
func (s *Service) Aspects(ctx context.Context, ref ir.NodeRef) ([]ir.QName, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) ([]ir.QName, error) {
		rec, err := requireNode(ctx, tx, ref)
		return rec.Aspects, err
	})
}

// HasAspect reports whether the node carries aspect.
func (s *Service) HasAspect(ctx context.Context, ref ir.NodeRef, aspect ir.QName) (bool, error) {
	aspects, err := s.Aspects(ctx, ref)
	if err != nil {
		return false, err
	}
	return slices.Contains(aspects, aspect), nil
}
