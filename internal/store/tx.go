package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/noderepo/internal/ir"
)

// Tx is one repository transaction.
//
// Thread-safety: a Tx is used by the goroutine that began it.
type Tx struct {
	tx     *sql.Tx
	closed bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.closed {
		return ErrTransactionClosed
	}
	t.closed = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a closed transaction is a
// no-op, so it is safe to defer.
func (t *Tx) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// CreateStore inserts a store and its root node.
func (t *Tx) CreateStore(ctx context.Context, store ir.StoreRef, root ir.NodeRef, rootType ir.QName) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO stores (ref, root_ref) VALUES (?, ?)`,
		store.String(), root.String())
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("create store %s: %w", store, ErrExists)
		}
		return fmt.Errorf("create store %s: %w", store, err)
	}
	return t.InsertNode(ctx, root, rootType)
}

// Stores returns every store in creation order.
func (t *Tx) Stores(ctx context.Context) ([]ir.StoreRef, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT ref FROM stores ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	stores := []ir.StoreRef{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		ref, err := ir.ParseStoreRef(s)
		if err != nil {
			return nil, err
		}
		stores = append(stores, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return stores, nil
}

// StoreRoot returns the root node of store.
func (t *Tx) StoreRoot(ctx context.Context, store ir.StoreRef) (ir.NodeRef, error) {
	var root string
	err := t.tx.QueryRowContext(ctx,
		`SELECT root_ref FROM stores WHERE ref = ?`, store.String()).Scan(&root)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.NodeRef{}, fmt.Errorf("store %s: %w", store, ErrNotFound)
	}
	if err != nil {
		return ir.NodeRef{}, fmt.Errorf("query store root: %w", err)
	}
	return unmarshalNodeRef(root)
}
