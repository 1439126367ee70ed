package node

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/store"
)

// FoldName returns the form child names are compared in: NFC normalised
// and case folded. A Caser is not safe for concurrent use, so each call
// gets its own.
func FoldName(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}

// displayName is the node's cm:name, or its id when unset.
func displayName(ref ir.NodeRef, props ir.PropertyMap) string {
	if v, ok := props[dictionary.PropName].(ir.TextValue); ok && v != "" {
		return string(v)
	}
	return ref.ID
}

func childName(ref ir.NodeRef, props ir.PropertyMap, def *dictionary.AssocDef) store.ChildName {
	name := displayName(ref, props)
	return store.ChildName{
		Display: name,
		Key:     FoldName(name),
		Unique:  !def.Duplicate,
	}
}

func duplicateName(parent ir.NodeRef, assocType ir.QName, name string) *Error {
	return &Error{
		Code:    ErrCodeDuplicateChildNodeName,
		Message: "a sibling is already named " + name,
		Node:    parent,
		QName:   assocType,
	}
}
