package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/noderepo/internal/ir"
)

// ChildName is the name a child is known by under one parent association.
// Key is the folded form compared for uniqueness; Unique is set when the
// association type forbids duplicate names.
type ChildName struct {
	Display string
	Key     string
	Unique  bool
}

const childAssocColumns = `parent, child, type, qname, is_primary, idx`

// InsertChildAssoc inserts a child association at the end of the parent's
// child list and returns it with its index set.
//
// Returns ErrDuplicateName when name is unique and already used, and
// ErrExists when a second primary parent is added.
func (t *Tx) InsertChildAssoc(ctx context.Context, a ir.ChildAssocRef, name ChildName) (ir.ChildAssocRef, error) {
	var idx int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(idx), -1) + 1 FROM child_assocs WHERE parent = ?`,
		a.Parent.String()).Scan(&idx)
	if err != nil {
		return ir.ChildAssocRef{}, fmt.Errorf("next child index: %w", err)
	}
	a.Index = idx

	if name.Unique {
		if _, err := t.ChildByName(ctx, a.Parent, a.Type, name.Key); err == nil {
			return ir.ChildAssocRef{}, fmt.Errorf("insert child %q: %w", name.Display, ErrDuplicateName)
		} else if !errors.Is(err, ErrNotFound) {
			return ir.ChildAssocRef{}, err
		}
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO child_assocs
		(parent, child, type, qname, is_primary, idx, child_name, name_key, unique_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.Parent.String(),
		a.Child.String(),
		a.Type.String(),
		a.QName.String(),
		boolToInt(a.Primary),
		a.Index,
		name.Display,
		name.Key,
		boolToInt(name.Unique),
	)
	if err != nil {
		if isConstraint(err) {
			return ir.ChildAssocRef{}, fmt.Errorf("insert child assoc %s: %w", a.Child, ErrExists)
		}
		return ir.ChildAssocRef{}, fmt.Errorf("insert child assoc: %w", err)
	}
	return a, nil
}

// DeleteChildAssoc removes one association matching a's parent, child,
// type and qname. deleted is false when none matched.
func (t *Tx) DeleteChildAssoc(ctx context.Context, a ir.ChildAssocRef) (deleted bool, err error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM child_assocs WHERE id = (
			SELECT id FROM child_assocs
			WHERE parent = ? AND child = ? AND type = ? AND qname = ?
			ORDER BY is_primary ASC, id ASC
			LIMIT 1
		)
	`, a.Parent.String(), a.Child.String(), a.Type.String(), a.QName.String())
	if err != nil {
		return false, fmt.Errorf("delete child assoc: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete child assoc: %w", err)
	}
	return n > 0, nil
}

// ChildAssocs returns the parent's child associations in index order.
func (t *Tx) ChildAssocs(ctx context.Context, parent ir.NodeRef) ([]ir.ChildAssocRef, error) {
	return t.queryChildAssocs(ctx, `
		SELECT `+childAssocColumns+` FROM child_assocs
		WHERE parent = ? ORDER BY idx ASC, id ASC
	`, parent.String())
}

// ParentAssocs returns the child's parent associations, primary first.
func (t *Tx) ParentAssocs(ctx context.Context, child ir.NodeRef) ([]ir.ChildAssocRef, error) {
	return t.queryChildAssocs(ctx, `
		SELECT `+childAssocColumns+` FROM child_assocs
		WHERE child = ? ORDER BY is_primary DESC, id ASC
	`, child.String())
}

// PrimaryParent returns the child's primary parent association.
func (t *Tx) PrimaryParent(ctx context.Context, child ir.NodeRef) (ir.ChildAssocRef, error) {
	assocs, err := t.queryChildAssocs(ctx, `
		SELECT `+childAssocColumns+` FROM child_assocs
		WHERE child = ? AND is_primary = 1
	`, child.String())
	if err != nil {
		return ir.ChildAssocRef{}, err
	}
	if len(assocs) == 0 {
		return ir.ChildAssocRef{}, fmt.Errorf("primary parent of %s: %w", child, ErrNotFound)
	}
	return assocs[0], nil
}

// ChildByName finds a child by folded name among the parent's associations
// of assocType.
func (t *Tx) ChildByName(ctx context.Context, parent ir.NodeRef, assocType ir.QName, key string) (ir.ChildAssocRef, error) {
	assocs, err := t.queryChildAssocs(ctx, `
		SELECT `+childAssocColumns+` FROM child_assocs
		WHERE parent = ? AND type = ? AND name_key = ?
		ORDER BY idx ASC, id ASC
		LIMIT 1
	`, parent.String(), assocType.String(), key)
	if err != nil {
		return ir.ChildAssocRef{}, err
	}
	if len(assocs) == 0 {
		return ir.ChildAssocRef{}, fmt.Errorf("child %q of %s: %w", key, parent, ErrNotFound)
	}
	return assocs[0], nil
}

// RenameChild updates the name the child is known by on all its parent
// associations. Returns ErrDuplicateName when a unique association already
// has a sibling with the new name.
func (t *Tx) RenameChild(ctx context.Context, child ir.NodeRef, display, key string) error {
	var clashes int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM child_assocs mine
		JOIN child_assocs other
		  ON other.parent = mine.parent AND other.type = mine.type
		 AND other.unique_name = 1 AND other.name_key = ? AND other.child <> mine.child
		WHERE mine.child = ? AND mine.unique_name = 1
	`, key, child.String()).Scan(&clashes)
	if err != nil {
		return fmt.Errorf("rename child %s: %w", child, err)
	}
	if clashes > 0 {
		return fmt.Errorf("rename child %q: %w", display, ErrDuplicateName)
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE child_assocs SET child_name = ?, name_key = ? WHERE child = ?`,
		display, key, child.String())
	if err != nil {
		return fmt.Errorf("rename child %s: %w", child, err)
	}
	return nil
}

// ChildNameOf returns the name the child is known by under a.
func (t *Tx) ChildNameOf(ctx context.Context, a ir.ChildAssocRef) (string, error) {
	var name string
	err := t.tx.QueryRowContext(ctx, `
		SELECT child_name FROM child_assocs
		WHERE parent = ? AND child = ? AND type = ? AND qname = ?
		LIMIT 1
	`, a.Parent.String(), a.Child.String(), a.Type.String(), a.QName.String()).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("child assoc %s: %w", a.Child, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query child name: %w", err)
	}
	return name, nil
}

func (t *Tx) queryChildAssocs(ctx context.Context, query string, args ...any) ([]ir.ChildAssocRef, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query child assocs: %w", err)
	}
	defer rows.Close()

	assocs := []ir.ChildAssocRef{}
	for rows.Next() {
		a, err := scanChildAssoc(rows)
		if err != nil {
			return nil, err
		}
		assocs = append(assocs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate child assocs: %w", err)
	}
	return assocs, nil
}

func scanChildAssoc(rows *sql.Rows) (ir.ChildAssocRef, error) {
	var (
		parent, child, typ, qname string
		primary, idx              int
	)
	if err := rows.Scan(&parent, &child, &typ, &qname, &primary, &idx); err != nil {
		return ir.ChildAssocRef{}, fmt.Errorf("scan child assoc: %w", err)
	}
	var (
		a   = ir.ChildAssocRef{Primary: primary == 1, Index: idx}
		err error
	)
	if a.Parent, err = unmarshalNodeRef(parent); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if a.Child, err = unmarshalNodeRef(child); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if a.Type, err = unmarshalQName(typ); err != nil {
		return ir.ChildAssocRef{}, err
	}
	if a.QName, err = unmarshalQName(qname); err != nil {
		return ir.ChildAssocRef{}, err
	}
	return a, nil
}

// InsertAssoc inserts a peer association. Returns ErrExists for a
// duplicate (source, target, type).
func (t *Tx) InsertAssoc(ctx context.Context, a ir.AssocRef) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO node_assocs (source, target, type) VALUES (?, ?, ?)`,
		a.Source.String(), a.Target.String(), a.Type.String())
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("insert assoc %s: %w", a, ErrExists)
		}
		return fmt.Errorf("insert assoc: %w", err)
	}
	return nil
}

// DeleteAssoc removes a peer association. deleted is false when it did
// not exist.
func (t *Tx) DeleteAssoc(ctx context.Context, a ir.AssocRef) (deleted bool, err error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM node_assocs WHERE source = ? AND target = ? AND type = ?`,
		a.Source.String(), a.Target.String(), a.Type.String())
	if err != nil {
		return false, fmt.Errorf("delete assoc: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete assoc: %w", err)
	}
	return n > 0, nil
}

// TargetAssocs returns the peer associations whose source is source.
func (t *Tx) TargetAssocs(ctx context.Context, source ir.NodeRef) ([]ir.AssocRef, error) {
	return t.queryAssocs(ctx,
		`SELECT source, target, type FROM node_assocs WHERE source = ? ORDER BY id`,
		source.String())
}

// SourceAssocs returns the peer associations whose target is target.
func (t *Tx) SourceAssocs(ctx context.Context, target ir.NodeRef) ([]ir.AssocRef, error) {
	return t.queryAssocs(ctx,
		`SELECT source, target, type FROM node_assocs WHERE target = ? ORDER BY id`,
		target.String())
}

func (t *Tx) queryAssocs(ctx context.Context, query string, args ...any) ([]ir.AssocRef, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assocs: %w", err)
	}
	defer rows.Close()

	assocs := []ir.AssocRef{}
	for rows.Next() {
		var source, target, typ string
		if err := rows.Scan(&source, &target, &typ); err != nil {
			return nil, fmt.Errorf("scan assoc: %w", err)
		}
		var (
			a   ir.AssocRef
			err error
		)
		if a.Source, err = unmarshalNodeRef(source); err != nil {
			return nil, err
		}
		if a.Target, err = unmarshalNodeRef(target); err != nil {
			return nil, err
		}
		if a.Type, err = unmarshalQName(typ); err != nil {
			return nil, err
		}
		assocs = append(assocs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assocs: %w", err)
	}
	return assocs, nil
}
