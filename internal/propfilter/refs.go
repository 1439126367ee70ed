package propfilter

import (
	"context"

	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/node"
)

// NodeChecker reports whether a node exists.
type NodeChecker interface {
	Exists(ctx context.Context, ref ir.NodeRef) (bool, error)
}

// RefFilter hides references to nodes that no longer exist and refuses
// to store new ones.
//
// Read drops noderef values whose target is gone, both single values and
// list elements. Write fails with INVALID_NODE_REF on the first dangling
// reference.
type RefFilter struct {
	nodes NodeChecker
}

// NewRefFilter creates a RefFilter.
func NewRefFilter(nodes NodeChecker) *RefFilter {
	return &RefFilter{nodes: nodes}
}

// Read implements Filter.
func (f *RefFilter) Read(ctx context.Context, _ ir.NodeRef, props ir.PropertyMap) (ir.PropertyMap, error) {
	out := make(ir.PropertyMap, len(props))
	for k, v := range props {
		switch val := v.(type) {
		case ir.RefValue:
			ok, err := f.nodes.Exists(ctx, val.NodeRef())
			if err != nil {
				return nil, err
			}
			if ok {
				out[k] = v
			}
		case ir.ListValue:
			kept := make(ir.ListValue, 0, len(val))
			for _, e := range val {
				if r, isRef := e.(ir.RefValue); isRef {
					ok, err := f.nodes.Exists(ctx, r.NodeRef())
					if err != nil {
						return nil, err
					}
					if !ok {
						continue
					}
				}
				kept = append(kept, e)
			}
			out[k] = kept
		default:
			out[k] = v
		}
	}
	return out, nil
}

// Write implements Filter.
func (f *RefFilter) Write(ctx context.Context, _ ir.NodeRef, _, props ir.PropertyMap) (ir.PropertyMap, error) {
	for _, k := range props.SortedKeys() {
		if err := f.check(ctx, k, props[k]); err != nil {
			return nil, err
		}
	}
	return props, nil
}

func (f *RefFilter) check(ctx context.Context, name ir.QName, v ir.Value) error {
	switch val := v.(type) {
	case ir.RefValue:
		ok, err := f.nodes.Exists(ctx, val.NodeRef())
		if err != nil {
			return err
		}
		if !ok {
			return &node.Error{
				Code:    node.ErrCodeInvalidNodeRef,
				Message: "property references a node that does not exist",
				Node:    val.NodeRef(),
				QName:   name,
			}
		}
	case ir.ListValue:
		for _, e := range val {
			if err := f.check(ctx, name, e); err != nil {
				return err
			}
		}
	}
	return nil
}
