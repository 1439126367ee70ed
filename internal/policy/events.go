package policy

import (
	"github.com/roach88/noderepo/internal/ir"
)

// Event is the argument of a behaviour invocation. Handlers type-switch on
// the concrete event; Policy tells which contract fired.
type Event interface {
	// Policy is the policy being dispatched.
	Policy() Name

	// Subject is the node whose classes keyed the dispatch. It is the zero
	// NodeRef for BeforeCreateStore.
	Subject() ir.NodeRef

	// Args returns the event arguments in canonical-JSON-ready form. They
	// identify the event for FirstEvent and TransactionCommit de-duplication.
	Args() map[string]any
}

// StoreEvent is passed to BeforeCreateStore (Root is zero) and OnCreateStore.
type StoreEvent struct {
	policy Name
	Store  ir.StoreRef
	Root   ir.NodeRef
}

func (e StoreEvent) Policy() Name        { return e.policy }
func (e StoreEvent) Subject() ir.NodeRef { return e.Root }
func (e StoreEvent) Args() map[string]any {
	return map[string]any{"store": e.Store.String(), "root": e.Root.String()}
}

// BeforeCreateNodeEvent is passed to BeforeCreateNode. The node does not
// exist yet; dispatch is keyed on NodeType and the subject is the parent.
type BeforeCreateNodeEvent struct {
	Parent     ir.NodeRef
	AssocType  ir.QName
	AssocQName ir.QName
	NodeType   ir.QName
}

func (e BeforeCreateNodeEvent) Policy() Name        { return BeforeCreateNode }
func (e BeforeCreateNodeEvent) Subject() ir.NodeRef { return e.Parent }
func (e BeforeCreateNodeEvent) Args() map[string]any {
	return map[string]any{
		"parent":      e.Parent.String(),
		"assoc_type":  e.AssocType.String(),
		"assoc_qname": e.AssocQName.String(),
		"node_type":   e.NodeType.String(),
	}
}

// NodeAssocEvent is passed to OnCreateNode and OnRestoreNode. Assoc is the
// node's primary parent association.
type NodeAssocEvent struct {
	policy Name
	Assoc  ir.ChildAssocRef
}

func (e NodeAssocEvent) Policy() Name        { return e.policy }
func (e NodeAssocEvent) Subject() ir.NodeRef { return e.Assoc.Child }
func (e NodeAssocEvent) Args() map[string]any {
	return map[string]any{"assoc": e.Assoc.String()}
}

// NodeEvent is passed to BeforeUpdateNode, OnUpdateNode and BeforeDeleteNode.
type NodeEvent struct {
	policy Name
	Node   ir.NodeRef
}

func (e NodeEvent) Policy() Name        { return e.policy }
func (e NodeEvent) Subject() ir.NodeRef { return e.Node }
func (e NodeEvent) Args() map[string]any {
	return map[string]any{"node": e.Node.String()}
}

// UpdatePropertiesEvent is passed to OnUpdateProperties.
type UpdatePropertiesEvent struct {
	Node   ir.NodeRef
	Before ir.PropertyMap
	After  ir.PropertyMap
}

func (e UpdatePropertiesEvent) Policy() Name        { return OnUpdateProperties }
func (e UpdatePropertiesEvent) Subject() ir.NodeRef { return e.Node }
func (e UpdatePropertiesEvent) Args() map[string]any {
	return map[string]any{
		"node":   e.Node.String(),
		"before": e.Before.Object(),
		"after":  e.After.Object(),
	}
}

// DeleteNodeEvent is passed to OnDeleteNode. IsArchived is true when the
// node was moved to an archive store instead of being removed.
type DeleteNodeEvent struct {
	Assoc      ir.ChildAssocRef
	IsArchived bool
}

func (e DeleteNodeEvent) Policy() Name        { return OnDeleteNode }
func (e DeleteNodeEvent) Subject() ir.NodeRef { return e.Assoc.Child }
func (e DeleteNodeEvent) Args() map[string]any {
	return map[string]any{"assoc": e.Assoc.String(), "archived": e.IsArchived}
}

// AspectEvent is passed to Before/OnAddAspect and Before/OnRemoveAspect.
// Dispatch is keyed on Aspect.
type AspectEvent struct {
	policy Name
	Node   ir.NodeRef
	Aspect ir.QName
}

func (e AspectEvent) Policy() Name        { return e.policy }
func (e AspectEvent) Subject() ir.NodeRef { return e.Node }
func (e AspectEvent) Args() map[string]any {
	return map[string]any{"node": e.Node.String(), "aspect": e.Aspect.String()}
}

// SetNodeTypeEvent is passed to OnSetNodeType.
type SetNodeTypeEvent struct {
	Node   ir.NodeRef
	Before ir.QName
	After  ir.QName
}

func (e SetNodeTypeEvent) Policy() Name        { return OnSetNodeType }
func (e SetNodeTypeEvent) Subject() ir.NodeRef { return e.Node }
func (e SetNodeTypeEvent) Args() map[string]any {
	return map[string]any{
		"node":   e.Node.String(),
		"before": e.Before.String(),
		"after":  e.After.String(),
	}
}

// MoveNodeEvent is passed to BeforeMoveNode and OnMoveNode. For
// BeforeMoveNode, New is the proposed association and the subject is
// Old.Child; for OnMoveNode the subject is New.Child, which lives in the
// new store after a cross-store move.
type MoveNodeEvent struct {
	policy Name
	Old    ir.ChildAssocRef
	New    ir.ChildAssocRef
}

func (e MoveNodeEvent) Policy() Name { return e.policy }
func (e MoveNodeEvent) Subject() ir.NodeRef {
	if e.policy == BeforeMoveNode {
		return e.Old.Child
	}
	return e.New.Child
}
func (e MoveNodeEvent) Args() map[string]any {
	return map[string]any{"old": e.Old.String(), "new": e.New.String()}
}

// ChildAssocEvent is passed to the child association policies. Dispatch is
// keyed on the parent's classes and the association type.
type ChildAssocEvent struct {
	policy    Name
	Assoc     ir.ChildAssocRef
	IsNewNode bool
}

func (e ChildAssocEvent) Policy() Name        { return e.policy }
func (e ChildAssocEvent) Subject() ir.NodeRef { return e.Assoc.Parent }
func (e ChildAssocEvent) Args() map[string]any {
	return map[string]any{"assoc": e.Assoc.String(), "new_node": e.IsNewNode}
}

// AssocEvent is passed to the peer association policies. Dispatch is keyed
// on the source's classes and the association type.
type AssocEvent struct {
	policy Name
	Assoc  ir.AssocRef
}

func (e AssocEvent) Policy() Name        { return e.policy }
func (e AssocEvent) Subject() ir.NodeRef { return e.Assoc.Source }
func (e AssocEvent) Args() map[string]any {
	return map[string]any{"assoc": e.Assoc.String()}
}
