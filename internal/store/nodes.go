package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/noderepo/internal/ir"
)

// NodeRecord is a node's type and aspects.
type NodeRecord struct {
	Ref     ir.NodeRef
	Type    ir.QName
	Aspects []ir.QName
}

// InsertNode inserts a node with no aspects or properties.
func (t *Tx) InsertNode(ctx context.Context, ref ir.NodeRef, typ ir.QName) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO nodes (ref, store, type) VALUES (?, ?, ?)`,
		ref.String(), ref.Store.String(), typ.String())
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("insert node %s: %w", ref, ErrExists)
		}
		return fmt.Errorf("insert node %s: %w", ref, err)
	}
	return nil
}

// Node returns the node's type and sorted aspects.
func (t *Tx) Node(ctx context.Context, ref ir.NodeRef) (NodeRecord, error) {
	var typ string
	err := t.tx.QueryRowContext(ctx,
		`SELECT type FROM nodes WHERE ref = ?`, ref.String()).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return NodeRecord{}, fmt.Errorf("node %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return NodeRecord{}, fmt.Errorf("query node: %w", err)
	}
	q, err := unmarshalQName(typ)
	if err != nil {
		return NodeRecord{}, err
	}
	aspects, err := t.Aspects(ctx, ref)
	if err != nil {
		return NodeRecord{}, err
	}
	return NodeRecord{Ref: ref, Type: q, Aspects: aspects}, nil
}

// NodeExists reports whether ref exists.
func (t *Tx) NodeExists(ctx context.Context, ref ir.NodeRef) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE ref = ?`, ref.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query node exists: %w", err)
	}
	return n > 0, nil
}

// NodesInStore returns every node ref in store.
func (t *Tx) NodesInStore(ctx context.Context, store ir.StoreRef) ([]ir.NodeRef, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT ref FROM nodes WHERE store = ? ORDER BY rowid`, store.String())
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	refs := []ir.NodeRef{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		ref, err := unmarshalNodeRef(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return refs, nil
}

// SetNodeType changes the node's type.
func (t *Tx) SetNodeType(ctx context.Context, ref ir.NodeRef, typ ir.QName) error {
	return t.execOne(ctx, "set node type", ref,
		`UPDATE nodes SET type = ? WHERE ref = ?`, typ.String(), ref.String())
}

// ChangeNodeRef moves a node to a new ref, usually in another store. Its
// aspects, properties and associations follow.
func (t *Tx) ChangeNodeRef(ctx context.Context, from, to ir.NodeRef) error {
	err := t.execOne(ctx, "change node ref", from,
		`UPDATE nodes SET ref = ?, store = ? WHERE ref = ?`,
		to.String(), to.Store.String(), from.String())
	if err != nil && isConstraint(err) {
		return fmt.Errorf("change node ref %s: %w", to, ErrExists)
	}
	return err
}

// DeleteNode removes a node together with its aspects, properties and
// every association it takes part in. Primary children are not touched.
func (t *Tx) DeleteNode(ctx context.Context, ref ir.NodeRef) error {
	return t.execOne(ctx, "delete node", ref,
		`DELETE FROM nodes WHERE ref = ?`, ref.String())
}

func (t *Tx) execOne(ctx context.Context, op string, ref ir.NodeRef, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, ref, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, ref, ErrNotFound)
	}
	return nil
}

// AddAspect records aspect on the node. added is false when it was
// already present.
func (t *Tx) AddAspect(ctx context.Context, ref ir.NodeRef, aspect ir.QName) (added bool, err error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO node_aspects (node, aspect) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		ref.String(), aspect.String())
	if err != nil {
		return false, fmt.Errorf("add aspect %s to %s: %w", aspect, ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add aspect: %w", err)
	}
	return n > 0, nil
}

// RemoveAspect removes aspect from the node. removed is false when it was
// not present.
func (t *Tx) RemoveAspect(ctx context.Context, ref ir.NodeRef, aspect ir.QName) (removed bool, err error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM node_aspects WHERE node = ? AND aspect = ?`,
		ref.String(), aspect.String())
	if err != nil {
		return false, fmt.Errorf("remove aspect %s from %s: %w", aspect, ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove aspect: %w", err)
	}
	return n > 0, nil
}

// Aspects returns the node's aspects sorted by qname.
func (t *Tx) Aspects(ctx context.Context, ref ir.NodeRef) ([]ir.QName, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT aspect FROM node_aspects WHERE node = ?`, ref.String())
	if err != nil {
		return nil, fmt.Errorf("query aspects: %w", err)
	}
	defer rows.Close()

	aspects := []ir.QName{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan aspect: %w", err)
		}
		q, err := unmarshalQName(s)
		if err != nil {
			return nil, err
		}
		aspects = append(aspects, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aspects: %w", err)
	}
	ir.SortQNames(aspects)
	return aspects, nil
}

// Properties returns the node's property map.
func (t *Tx) Properties(ctx context.Context, ref ir.NodeRef) (ir.PropertyMap, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT name, value FROM node_properties WHERE node = ?`, ref.String())
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer rows.Close()

	props := ir.PropertyMap{}
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		q, err := unmarshalQName(name)
		if err != nil {
			return nil, err
		}
		v, err := unmarshalValue(data)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		props[q] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return props, nil
}

// SetProperty inserts or replaces one property value.
func (t *Tx) SetProperty(ctx context.Context, ref ir.NodeRef, name ir.QName, v ir.Value) error {
	data, err := marshalValue(v)
	if err != nil {
		return fmt.Errorf("set property %s: %w", name, err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO node_properties (node, name, value) VALUES (?, ?, ?)
		ON CONFLICT(node, name) DO UPDATE SET value = excluded.value
	`, ref.String(), name.String(), data)
	if err != nil {
		return fmt.Errorf("set property %s on %s: %w", name, ref, err)
	}
	return nil
}

// RemoveProperty deletes one property. removed is false when it was not
// set.
func (t *Tx) RemoveProperty(ctx context.Context, ref ir.NodeRef, name ir.QName) (removed bool, err error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM node_properties WHERE node = ? AND name = ?`,
		ref.String(), name.String())
	if err != nil {
		return false, fmt.Errorf("remove property %s from %s: %w", name, ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove property: %w", err)
	}
	return n > 0, nil
}

// ReplaceProperties replaces the node's whole property map.
func (t *Tx) ReplaceProperties(ctx context.Context, ref ir.NodeRef, props ir.PropertyMap) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM node_properties WHERE node = ?`, ref.String()); err != nil {
		return fmt.Errorf("replace properties on %s: %w", ref, err)
	}
	for _, name := range props.SortedKeys() {
		if err := t.SetProperty(ctx, ref, name, props[name]); err != nil {
			return err
		}
	}
	return nil
}
