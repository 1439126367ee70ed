package node

import (
	"errors"
	"fmt"

	"github.com/roach88/noderepo/internal/ir"
)

// Error reports a structural violation. The operation that returns it has
// made no structural change and fired no On* events for it.
type Error struct {
	// Code identifies the violation.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Node is the node involved, if any.
	Node ir.NodeRef

	// QName is the class, association type or name involved, if any.
	QName ir.QName
}

// ErrorCode categorizes node service errors.
type ErrorCode string

const (
	// ErrCodeInvalidNodeRef indicates a node that does not exist.
	ErrCodeInvalidNodeRef ErrorCode = "INVALID_NODE_REF"

	// ErrCodeInvalidStoreRef indicates a store that does not exist.
	ErrCodeInvalidStoreRef ErrorCode = "INVALID_STORE_REF"

	// ErrCodeStoreExists indicates CreateStore on an existing store.
	ErrCodeStoreExists ErrorCode = "STORE_EXISTS"

	// ErrCodeInvalidType indicates a qname that is not a type.
	ErrCodeInvalidType ErrorCode = "INVALID_TYPE"

	// ErrCodeInvalidAspect indicates a qname that is not an aspect.
	ErrCodeInvalidAspect ErrorCode = "INVALID_ASPECT"

	// ErrCodeInvalidAssociation indicates an unknown association type, or
	// one of the wrong kind for the operation.
	ErrCodeInvalidAssociation ErrorCode = "INVALID_ASSOCIATION"

	// ErrCodeCyclicChildRelationship indicates a node would become its own
	// ancestor.
	ErrCodeCyclicChildRelationship ErrorCode = "CYCLIC_CHILD_RELATIONSHIP"

	// ErrCodeDuplicateChildNodeName indicates a sibling with the same name
	// under an association type that forbids duplicates.
	ErrCodeDuplicateChildNodeName ErrorCode = "DUPLICATE_CHILD_NODE_NAME"

	// ErrCodeAssociationExists indicates a duplicate peer association.
	ErrCodeAssociationExists ErrorCode = "ASSOCIATION_EXISTS"

	// ErrCodeSubtreePendingDeletion indicates a structural change under a
	// node whose cascade delete is in progress.
	ErrCodeSubtreePendingDeletion ErrorCode = "SUBTREE_PENDING_DELETION"

	// ErrCodeNotArchived indicates RestoreNode on a node that is not
	// archived.
	ErrCodeNotArchived ErrorCode = "NOT_ARCHIVED"

	// ErrCodeRootNode indicates an operation a store root does not allow.
	ErrCodeRootNode ErrorCode = "ROOT_NODE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case !e.Node.IsZero() && !e.QName.IsZero():
		return fmt.Sprintf("%s: %s (node=%s, qname=%s)", e.Code, e.Message, e.Node, e.QName)
	case !e.Node.IsZero():
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.Node)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// CodeOf returns the code of a node Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsInvalidNodeRef returns true if err reports a missing node.
func IsInvalidNodeRef(err error) bool { return hasCode(err, ErrCodeInvalidNodeRef) }

// IsInvalidStoreRef returns true if err reports a missing store.
func IsInvalidStoreRef(err error) bool { return hasCode(err, ErrCodeInvalidStoreRef) }

// IsStoreExists returns true if err reports a duplicate store.
func IsStoreExists(err error) bool { return hasCode(err, ErrCodeStoreExists) }

// IsInvalidType returns true if err reports an unknown type.
func IsInvalidType(err error) bool { return hasCode(err, ErrCodeInvalidType) }

// IsInvalidAspect returns true if err reports an unknown aspect.
func IsInvalidAspect(err error) bool { return hasCode(err, ErrCodeInvalidAspect) }

// IsInvalidAssociation returns true if err reports a bad association type.
func IsInvalidAssociation(err error) bool { return hasCode(err, ErrCodeInvalidAssociation) }

// IsCyclicChildRelationship returns true if err reports a cycle.
func IsCyclicChildRelationship(err error) bool {
	return hasCode(err, ErrCodeCyclicChildRelationship)
}

// IsDuplicateChildNodeName returns true if err reports a name clash.
func IsDuplicateChildNodeName(err error) bool {
	return hasCode(err, ErrCodeDuplicateChildNodeName)
}

// IsAssociationExists returns true if err reports a duplicate peer
// association.
func IsAssociationExists(err error) bool { return hasCode(err, ErrCodeAssociationExists) }

// IsSubtreePendingDeletion returns true if err reports a change under a
// node being deleted.
func IsSubtreePendingDeletion(err error) bool {
	return hasCode(err, ErrCodeSubtreePendingDeletion)
}

// IsNotArchived returns true if err reports restoring a live node.
func IsNotArchived(err error) bool { return hasCode(err, ErrCodeNotArchived) }

// IsRootNode returns true if err reports an operation on a store root.
func IsRootNode(err error) bool { return hasCode(err, ErrCodeRootNode) }

func invalidNode(ref ir.NodeRef) *Error {
	return &Error{Code: ErrCodeInvalidNodeRef, Message: "node does not exist", Node: ref}
}

func invalidStore(store ir.StoreRef) *Error {
	return &Error{Code: ErrCodeInvalidStoreRef, Message: fmt.Sprintf("store %s does not exist", store)}
}

func pendingDeletion(ref ir.NodeRef) *Error {
	return &Error{
		Code:    ErrCodeSubtreePendingDeletion,
		Message: "node is being deleted in this transaction",
		Node:    ref,
	}
}
