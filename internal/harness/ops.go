package harness

import (
	"context"
	"fmt"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
)

// runStep performs one node service call.
func (h *Harness) runStep(ctx context.Context, step Step) error {
	switch step.Op {
	case OpCreateStore:
		ref, err := ir.ParseStoreRef(step.Store)
		if err != nil {
			return err
		}
		root, err := h.svc.CreateStore(ctx, ref)
		if err != nil {
			return err
		}
		h.alias(step.As, root)
		return nil

	case OpCreateNode:
		parent, err := h.ref(step.Parent)
		if err != nil {
			return err
		}
		typ, assocType, qname, err := h.createArgs(step)
		if err != nil {
			return err
		}
		props, err := h.properties(step.Properties)
		if err != nil {
			return err
		}
		a, err := h.svc.CreateNode(ctx, parent, assocType, qname, typ, props)
		if err != nil {
			return err
		}
		h.alias(step.As, a.Child)
		return nil

	case OpDeleteNode:
		ref, err := h.ref(step.Node)
		if err != nil {
			return err
		}
		if err := h.svc.DeleteNode(ctx, ref); err != nil {
			return err
		}
		return h.followArchive(ctx, step.Node, ref)

	case OpRestoreNode:
		ref, err := h.ref(step.Node)
		if err != nil {
			return err
		}
		var parent ir.NodeRef
		if step.Parent != "" {
			if parent, err = h.ref(step.Parent); err != nil {
				return err
			}
		}
		assocType, err := h.optionalQName(step.AssocType)
		if err != nil {
			return err
		}
		qname, err := h.optionalQName(step.QName)
		if err != nil {
			return err
		}
		a, err := h.svc.RestoreNode(ctx, ref, parent, assocType, qname)
		if err != nil {
			return err
		}
		h.alias(step.Node, a.Child)
		return nil

	case OpMoveNode:
		ref, err := h.ref(step.Node)
		if err != nil {
			return err
		}
		parent, err := h.ref(step.Parent)
		if err != nil {
			return err
		}
		assocType, qname, err := h.assocArgs(step, step.Node)
		if err != nil {
			return err
		}
		a, err := h.svc.MoveNode(ctx, ref, parent, assocType, qname)
		if err != nil {
			return err
		}
		h.alias(step.Node, a.Child)
		return nil

	case OpSetType:
		ref, err := h.ref(step.Node)
		if err != nil {
			return err
		}
		typ, err := h.dict.Resolve(step.Type)
		if err != nil {
			return err
		}
		return h.svc.SetType(ctx, ref, typ)

	case OpAddAspect, OpRemoveAspect:
		ref, err := h.ref(step.Node)
		if err != nil {
			return err
		}
		aspect, err := h.dict.Resolve(step.Aspect)
		if err != nil {
			return err
		}
		if step.Op == OpRemoveAspect {
			return h.svc.RemoveAspect(ctx, ref, aspect)
		}
		props, err := h.properties(step.Properties)
		if err != nil {
			return err
		}
		return h.svc.AddAspect(ctx, ref, aspect, props)

	case OpSetProperties, OpAddProperties:
		ref, err := h.ref(step.Node)
		if err != nil {
			return err
		}
		props, err := h.properties(step.Properties)
		if err != nil {
			return err
		}
		if step.Op == OpSetProperties {
			return h.svc.SetProperties(ctx, ref, props)
		}
		return h.svc.AddProperties(ctx, ref, props)

	case OpSetProperty, OpRemoveProperty:
		ref, err := h.ref(step.Node)
		if err != nil {
			return err
		}
		name, err := h.dict.Resolve(step.Property)
		if err != nil {
			return err
		}
		if step.Op == OpRemoveProperty {
			return h.svc.RemoveProperty(ctx, ref, name)
		}
		v, err := h.value(name, step.Value)
		if err != nil {
			return err
		}
		return h.svc.SetProperty(ctx, ref, name, v)

	case OpAddChild, OpRemoveChild:
		parent, err := h.ref(step.Parent)
		if err != nil {
			return err
		}
		child, err := h.ref(step.Child)
		if err != nil {
			return err
		}
		if step.Op == OpRemoveChild {
			return h.svc.RemoveChild(ctx, parent, child)
		}
		assocType, qname, err := h.assocArgs(step, step.Child)
		if err != nil {
			return err
		}
		_, err = h.svc.AddChild(ctx, parent, child, assocType, qname)
		return err

	case OpCreateAssociation, OpRemoveAssociation:
		source, err := h.ref(step.Source)
		if err != nil {
			return err
		}
		target, err := h.ref(step.Target)
		if err != nil {
			return err
		}
		assocType, err := h.dict.Resolve(step.AssocType)
		if err != nil {
			return err
		}
		if step.Op == OpRemoveAssociation {
			return h.svc.RemoveAssociation(ctx, ir.AssocRef{Source: source, Target: target, Type: assocType})
		}
		_, err = h.svc.CreateAssociation(ctx, source, target, assocType)
		return err
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

// ref resolves an alias, or a node ref written out in full.
func (h *Harness) ref(name string) (ir.NodeRef, error) {
	if ref, ok := h.aliases[name]; ok {
		return ref, nil
	}
	ref, err := ir.ParseNodeRef(name)
	if err != nil {
		return ir.NodeRef{}, fmt.Errorf("unknown node alias %q", name)
	}
	return ref, nil
}

// followArchive re-points alias at the archived copy of ref, if any.
func (h *Harness) followArchive(ctx context.Context, alias string, ref ir.NodeRef) error {
	archive, ok := h.archives[ref.Store]
	if !ok {
		return nil
	}
	archived := ir.NewNodeRef(archive, ref.ID)
	exists, err := h.svc.Exists(ctx, archived)
	if err != nil || !exists {
		return err
	}
	h.alias(alias, archived)
	return nil
}

func (h *Harness) optionalQName(s string) (ir.QName, error) {
	if s == "" {
		return ir.QName{}, nil
	}
	return h.dict.Resolve(s)
}

// assocArgs returns the association type and qname of a step. The type
// defaults to sys:children and the qname to cm:<alias>.
func (h *Harness) assocArgs(step Step, alias string) (ir.QName, ir.QName, error) {
	assocType := dictionary.AssocChildren
	if step.AssocType != "" {
		var err error
		if assocType, err = h.dict.Resolve(step.AssocType); err != nil {
			return ir.QName{}, ir.QName{}, err
		}
	}
	qname := ir.NewQName(dictionary.ContentNamespace, alias)
	if step.QName != "" {
		var err error
		if qname, err = h.dict.Resolve(step.QName); err != nil {
			return ir.QName{}, ir.QName{}, err
		}
	}
	return assocType, qname, nil
}

func (h *Harness) createArgs(step Step) (typ, assocType, qname ir.QName, err error) {
	if typ, err = h.dict.Resolve(step.Type); err != nil {
		return
	}
	alias := step.As
	if alias == "" {
		alias = "node"
	}
	assocType, qname, err = h.assocArgs(step, alias)
	return
}

// properties converts scenario property values using the declared
// property types.
func (h *Harness) properties(raw map[string]any) (ir.PropertyMap, error) {
	props := make(ir.PropertyMap, len(raw))
	for k, v := range raw {
		name, err := h.dict.Resolve(k)
		if err != nil {
			return nil, err
		}
		if props[name], err = h.value(name, v); err != nil {
			return nil, fmt.Errorf("property %s: %w", k, err)
		}
	}
	return props, nil
}

// value converts a YAML value for property name. Node references are
// written as aliases. Undeclared properties take the type of the YAML
// value.
func (h *Harness) value(name ir.QName, raw any) (ir.Value, error) {
	if raw == nil {
		return nil, fmt.Errorf("null values are not supported")
	}
	t := ir.TypeAny
	if def, ok := h.dict.Property(name); ok {
		t = def.Type
	}
	switch t {
	case ir.TypeAny:
		return inferValue(raw)
	case ir.TypeNodeRef:
		resolved, err := h.refStrings(raw)
		if err != nil {
			return nil, err
		}
		raw = resolved
	}
	return ir.ValueFromAny(t, raw)
}

func (h *Harness) refStrings(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		ref, err := h.ref(v)
		if err != nil {
			return nil, err
		}
		return ref.String(), nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			s, err := h.refStrings(e)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	}
	return raw, nil
}

// inferValue converts an untyped YAML value. Floats have no property
// value type and are rejected.
func inferValue(raw any) (ir.Value, error) {
	switch v := raw.(type) {
	case string:
		return ir.Text(v), nil
	case int:
		return ir.Int(int64(v)), nil
	case int64:
		return ir.Int(v), nil
	case bool:
		return ir.Bool(v), nil
	case []any:
		list := make(ir.ListValue, len(v))
		for i, e := range v {
			val, err := inferValue(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = val
		}
		return list, nil
	case map[string]any:
		return ir.ValueFromAny(ir.TypeMLText, v)
	}
	return nil, fmt.Errorf("unsupported value type %T", raw)
}
