package policy

import "fmt"

// Name identifies a policy: an event contract with a fixed argument shape.
type Name string

// Kind distinguishes how a policy's behaviours are keyed.
type Kind int

const (
	// ClassScoped policies are keyed by class QName.
	ClassScoped Kind = iota + 1
	// AssociationScoped policies are keyed by class QName and association type.
	AssociationScoped
)

func (k Kind) String() string {
	switch k {
	case ClassScoped:
		return "class"
	case AssociationScoped:
		return "association"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Class scoped policies.
const (
	BeforeCreateStore  Name = "BeforeCreateStore"
	OnCreateStore      Name = "OnCreateStore"
	BeforeCreateNode   Name = "BeforeCreateNode"
	OnCreateNode       Name = "OnCreateNode"
	BeforeUpdateNode   Name = "BeforeUpdateNode"
	OnUpdateNode       Name = "OnUpdateNode"
	OnUpdateProperties Name = "OnUpdateProperties"
	BeforeDeleteNode   Name = "BeforeDeleteNode"
	OnDeleteNode       Name = "OnDeleteNode"
	OnRestoreNode      Name = "OnRestoreNode"
	BeforeAddAspect    Name = "BeforeAddAspect"
	OnAddAspect        Name = "OnAddAspect"
	BeforeRemoveAspect Name = "BeforeRemoveAspect"
	OnRemoveAspect     Name = "OnRemoveAspect"
	OnSetNodeType      Name = "OnSetNodeType"
	BeforeMoveNode     Name = "BeforeMoveNode"
	OnMoveNode         Name = "OnMoveNode"
)

// Association scoped policies.
const (
	BeforeCreateChildAssociation Name = "BeforeCreateChildAssociation"
	OnCreateChildAssociation     Name = "OnCreateChildAssociation"
	BeforeDeleteChildAssociation Name = "BeforeDeleteChildAssociation"
	OnDeleteChildAssociation     Name = "OnDeleteChildAssociation"
	OnCreateAssociation          Name = "OnCreateAssociation"
	BeforeDeleteAssociation      Name = "BeforeDeleteAssociation"
	OnDeleteAssociation          Name = "OnDeleteAssociation"
)

var allNames = []Name{
	BeforeCreateStore, OnCreateStore,
	BeforeCreateNode, OnCreateNode,
	BeforeUpdateNode, OnUpdateNode, OnUpdateProperties,
	BeforeDeleteNode, OnDeleteNode, OnRestoreNode,
	BeforeAddAspect, OnAddAspect, BeforeRemoveAspect, OnRemoveAspect,
	OnSetNodeType, BeforeMoveNode, OnMoveNode,
	BeforeCreateChildAssociation, OnCreateChildAssociation,
	BeforeDeleteChildAssociation, OnDeleteChildAssociation,
	OnCreateAssociation, BeforeDeleteAssociation, OnDeleteAssociation,
}

var kinds = func() map[Name]Kind {
	m := make(map[Name]Kind, len(allNames))
	for _, n := range allNames {
		m[n] = ClassScoped
	}
	for _, n := range []Name{
		BeforeCreateChildAssociation, OnCreateChildAssociation,
		BeforeDeleteChildAssociation, OnDeleteChildAssociation,
		OnCreateAssociation, BeforeDeleteAssociation, OnDeleteAssociation,
	} {
		m[n] = AssociationScoped
	}
	return m
}()

// Names returns every policy in declaration order.
func Names() []Name {
	return append([]Name(nil), allNames...)
}

// Kind returns the policy's kind, or 0 for an unknown name.
func (n Name) Kind() Kind {
	return kinds[n]
}

// Valid reports whether n is a known policy.
func (n Name) Valid() bool {
	_, ok := kinds[n]
	return ok
}

// ParseName parses a policy name.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if !n.Valid() {
		return "", fmt.Errorf("unknown policy %q", s)
	}
	return n, nil
}
