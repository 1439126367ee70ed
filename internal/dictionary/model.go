package dictionary

import (
	"cuelang.org/go/cue/token"

	"github.com/roach88/noderepo/internal/ir"
)

// Model is one compiled CUE model document. Names are kept in their
// prefixed form until Build resolves them against every model's
// namespaces, so a model may refer to classes declared in another.
type Model struct {
	Name       string
	Namespaces ir.Namespaces
	Classes    []ModelClass
}

// ModelClass is a type or aspect as written in a model.
type ModelClass struct {
	Name             string
	Title            string
	Aspect           bool
	Parent           string
	Archive          *bool
	Properties       []ModelProperty
	MandatoryAspects []string
	Associations     []ModelAssociation
	Pos              token.Pos
}

// ModelProperty is a property declaration as written in a model.
// Default holds the decoded CUE value (string, int64, bool, map or list).
type ModelProperty struct {
	Name     string
	Type     ir.DataType
	Multiple bool
	Default  any
	Pos      token.Pos
}

// ModelAssociation is an association declaration as written in a model.
type ModelAssociation struct {
	Name      string
	Kind      string
	Target    string
	Duplicate bool
	Pos       token.Pos
}

// Association kinds.
const (
	KindChild = "child"
	KindPeer  = "peer"
)

// ClassDef is a resolved type or aspect.
type ClassDef struct {
	Name   ir.QName
	Title  string
	Aspect bool
	// Parent is the zero QName for a root class.
	Parent ir.QName
	// Archive is nil when the class inherits the archive flag.
	Archive          *bool
	Properties       []PropertyDef
	MandatoryAspects []ir.QName
	Associations     []AssocDef
	Model            string
}

// PropertyDef is a resolved property declaration.
type PropertyDef struct {
	Name     ir.QName
	Class    ir.QName
	Type     ir.DataType
	Multiple bool
	Default  ir.Value
}

// AssocDef is a resolved association declaration.
type AssocDef struct {
	Name   ir.QName
	Class  ir.QName
	Target ir.QName
	Child  bool
	// Duplicate allows siblings with the same child name. Only meaningful
	// for child associations.
	Duplicate bool
}
