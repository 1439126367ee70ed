package node

import (
	"context"
	"strings"

	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/store"
)

// Path is a chain of child associations from a store root down to a node.
// The first element stands for the root and has only Child set.
type Path []ir.ChildAssocRef

// Paths returns every path from a store root to the node, following
// secondary parent associations too unless primaryOnly is set. The
// primary path comes first.
func (s *Service) Paths(ctx context.Context, ref ir.NodeRef, primaryOnly bool) ([]Path, error) {
	return withTx(s, ctx, func(ctx context.Context, tx *store.Tx) ([]Path, error) {
		if _, err := requireNode(ctx, tx, ref); err != nil {
			return nil, err
		}
		return s.paths(ctx, tx, ref, primaryOnly, map[ir.NodeRef]bool{})
	})
}

// paths walks up from ref. onPath holds the nodes below ref on the path
// being built; meeting one again means the structure is cyclic.
func (s *Service) paths(ctx context.Context, tx *store.Tx, ref ir.NodeRef, primaryOnly bool, onPath map[ir.NodeRef]bool) ([]Path, error) {
	if onPath[ref] {
		return nil, cycle(ref, ref)
	}
	parents, err := tx.ParentAssocs(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return []Path{{{Child: ref}}}, nil
	}

	onPath[ref] = true
	defer delete(onPath, ref)

	var out []Path
	for _, a := range parents {
		if primaryOnly && !a.Primary {
			continue
		}
		above, err := s.paths(ctx, tx, a.Parent, primaryOnly, onPath)
		if err != nil {
			return nil, err
		}
		for _, p := range above {
			out = append(out, append(p[:len(p):len(p)], a))
		}
	}
	return out, nil
}

// Path returns the node's primary path.
func (s *Service) Path(ctx context.Context, ref ir.NodeRef) (Path, error) {
	paths, err := s.Paths(ctx, ref, true)
	if err != nil {
		return nil, err
	}
	return paths[0], nil
}

// PathString renders p with prefixed association qnames, as in
// /cm:projects/cm:plan. The root alone renders as /.
func (s *Service) PathString(p Path) string {
	if len(p) <= 1 {
		return "/"
	}
	var b strings.Builder
	for _, a := range p[1:] {
		b.WriteByte('/')
		b.WriteString(s.dict.Prefixed(a.QName))
	}
	return b.String()
}
