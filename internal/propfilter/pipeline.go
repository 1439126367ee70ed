// Package propfilter wraps a property service in an ordered pipeline of
// filters. Reads pass through the filters in order; writes pass through
// them in reverse, so the filter nearest the store sees a write last.
package propfilter

import (
	"context"

	"github.com/roach88/noderepo/internal/ir"
)

// PropertyService is the part of the node service a Pipeline wraps.
// *node.Service implements it.
type PropertyService interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Properties(ctx context.Context, ref ir.NodeRef) (ir.PropertyMap, error)
	AddProperties(ctx context.Context, ref ir.NodeRef, props ir.PropertyMap) error
	SetProperties(ctx context.Context, ref ir.NodeRef, props ir.PropertyMap) error
}

// Filter transforms properties read from and written to a node.
//
// Read receives the stored properties (as transformed by earlier filters)
// and returns what the caller sees. Write receives the properties being
// written and the node's stored properties, and returns what is passed on
// toward the store. Filters must not modify their input maps.
type Filter interface {
	Read(ctx context.Context, ref ir.NodeRef, props ir.PropertyMap) (ir.PropertyMap, error)
	Write(ctx context.Context, ref ir.NodeRef, stored, props ir.PropertyMap) (ir.PropertyMap, error)
}

// Pipeline applies filters around a PropertyService.
type Pipeline struct {
	svc     PropertyService
	filters []Filter
}

// New creates a pipeline. Filters are listed store side last: filters[0]
// is the outermost.
func New(svc PropertyService, filters ...Filter) *Pipeline {
	return &Pipeline{svc: svc, filters: filters}
}

// Properties reads ref's properties through every filter.
func (p *Pipeline) Properties(ctx context.Context, ref ir.NodeRef) (ir.PropertyMap, error) {
	var out ir.PropertyMap
	err := p.svc.InTransaction(ctx, func(ctx context.Context) error {
		props, err := p.svc.Properties(ctx, ref)
		if err != nil {
			return err
		}
		out, err = p.read(ctx, ref, props)
		return err
	})
	return out, err
}

// Property reads one property, or nil when it is unset or filtered out.
func (p *Pipeline) Property(ctx context.Context, ref ir.NodeRef, name ir.QName) (ir.Value, error) {
	props, err := p.Properties(ctx, ref)
	if err != nil {
		return nil, err
	}
	return props[name], nil
}

// AddProperties merges props into ref's properties after the write
// filters.
func (p *Pipeline) AddProperties(ctx context.Context, ref ir.NodeRef, props ir.PropertyMap) error {
	return p.write(ctx, ref, props, p.svc.AddProperties)
}

// SetProperties replaces ref's properties after the write filters.
func (p *Pipeline) SetProperties(ctx context.Context, ref ir.NodeRef, props ir.PropertyMap) error {
	return p.write(ctx, ref, props, p.svc.SetProperties)
}

// SetProperty writes a single property.
func (p *Pipeline) SetProperty(ctx context.Context, ref ir.NodeRef, name ir.QName, v ir.Value) error {
	return p.AddProperties(ctx, ref, ir.PropertyMap{name: v})
}

func (p *Pipeline) read(ctx context.Context, ref ir.NodeRef, props ir.PropertyMap) (ir.PropertyMap, error) {
	var err error
	for _, f := range p.filters {
		if props, err = f.Read(ctx, ref, props); err != nil {
			return nil, err
		}
	}
	return props, nil
}

func (p *Pipeline) write(ctx context.Context, ref ir.NodeRef, props ir.PropertyMap, apply func(context.Context, ir.NodeRef, ir.PropertyMap) error) error {
	return p.svc.InTransaction(ctx, func(ctx context.Context) error {
		stored, err := p.svc.Properties(ctx, ref)
		if err != nil {
			return err
		}
		for i := len(p.filters) - 1; i >= 0; i-- {
			if props, err = p.filters[i].Write(ctx, ref, stored, props); err != nil {
				return err
			}
		}
		return apply(ctx, ref, props)
	})
}
