package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// StoreRef identifies a store as protocol://identifier.
//
// Tenant stores carry the tenant domain in the identifier
// ("@acme.com@SpacesStore"); see internal/tenant.
type StoreRef struct {
	Protocol   string `json:"protocol"`
	Identifier string `json:"identifier"`
}

// Well-known store protocols.
const (
	ProtocolWorkspace = "workspace"
	ProtocolArchive   = "archive"
	ProtocolSystem    = "system"
)

// NewStoreRef creates a StoreRef.
func NewStoreRef(protocol, identifier string) StoreRef {
	return StoreRef{Protocol: protocol, Identifier: identifier}
}

func (s StoreRef) String() string {
	return s.Protocol + "://" + s.Identifier
}

// IsZero reports whether s is the zero StoreRef.
func (s StoreRef) IsZero() bool {
	return s.Protocol == "" && s.Identifier == ""
}

// ParseStoreRef parses protocol://identifier.
func ParseStoreRef(s string) (StoreRef, error) {
	protocol, identifier, ok := strings.Cut(s, "://")
	if !ok || protocol == "" || identifier == "" || strings.Contains(identifier, "/") {
		return StoreRef{}, fmt.Errorf("invalid store ref %q", s)
	}
	return StoreRef{Protocol: protocol, Identifier: identifier}, nil
}

// NodeRef identifies a node by store and id.
type NodeRef struct {
	Store StoreRef `json:"store"`
	ID    string   `json:"id"`
}

// NewNodeRef creates a NodeRef.
func NewNodeRef(store StoreRef, id string) NodeRef {
	return NodeRef{Store: store, ID: id}
}

func (n NodeRef) String() string {
	return n.Store.String() + "/" + n.ID
}

// IsZero reports whether n is the zero NodeRef.
func (n NodeRef) IsZero() bool {
	return n.Store.IsZero() && n.ID == ""
}

// ParseNodeRef parses protocol://identifier/id.
func ParseNodeRef(s string) (NodeRef, error) {
	idx := strings.LastIndexByte(s, '/')
	if idx < 0 || idx == len(s)-1 {
		return NodeRef{}, fmt.Errorf("invalid node ref %q", s)
	}
	store, err := ParseStoreRef(s[:idx])
	if err != nil {
		return NodeRef{}, fmt.Errorf("invalid node ref %q: %w", s, err)
	}
	return NodeRef{Store: store, ID: s[idx+1:]}, nil
}

// ChildAssocRef is a parent-child edge. Exactly one edge per child (other
// than a store root) is primary.
type ChildAssocRef struct {
	Type    QName   `json:"type"`
	Parent  NodeRef `json:"parent"`
	QName   QName   `json:"qname"`
	Child   NodeRef `json:"child"`
	Primary bool    `json:"primary"`
	Index   int     `json:"index"`
}

// String encodes the edge as type|parent|qname|child|primary|index. The
// encoding is parsed back by ParseChildAssocRef and is what archived nodes
// record to find their way home.
func (c ChildAssocRef) String() string {
	return strings.Join([]string{
		c.Type.String(),
		c.Parent.String(),
		c.QName.String(),
		c.Child.String(),
		strconv.FormatBool(c.Primary),
		strconv.Itoa(c.Index),
	}, "|")
}

// ParseChildAssocRef parses the String encoding.
func ParseChildAssocRef(s string) (ChildAssocRef, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 6 {
		return ChildAssocRef{}, fmt.Errorf("invalid child assoc ref %q", s)
	}
	var (
		ref ChildAssocRef
		err error
	)
	if ref.Type, err = ParseQName(parts[0]); err != nil {
		return ChildAssocRef{}, err
	}
	if ref.Parent, err = ParseNodeRef(parts[1]); err != nil {
		return ChildAssocRef{}, err
	}
	if ref.QName, err = ParseQName(parts[2]); err != nil {
		return ChildAssocRef{}, err
	}
	if ref.Child, err = ParseNodeRef(parts[3]); err != nil {
		return ChildAssocRef{}, err
	}
	if ref.Primary, err = strconv.ParseBool(parts[4]); err != nil {
		return ChildAssocRef{}, fmt.Errorf("invalid child assoc ref %q: %w", s, err)
	}
	if ref.Index, err = strconv.Atoi(parts[5]); err != nil {
		return ChildAssocRef{}, fmt.Errorf("invalid child assoc ref %q: %w", s, err)
	}
	return ref, nil
}

// AssocRef is a peer edge between two nodes.
type AssocRef struct {
	Source NodeRef `json:"source"`
	Target NodeRef `json:"target"`
	Type   QName   `json:"type"`
}

// String encodes the edge as source|type|target.
func (a AssocRef) String() string {
	return a.Source.String() + "|" + a.Type.String() + "|" + a.Target.String()
}

// ParseAssocRef parses the String encoding.
func ParseAssocRef(s string) (AssocRef, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return AssocRef{}, fmt.Errorf("invalid assoc ref %q", s)
	}
	source, err := ParseNodeRef(parts[0])
	if err != nil {
		return AssocRef{}, err
	}
	typ, err := ParseQName(parts[1])
	if err != nil {
		return AssocRef{}, err
	}
	target, err := ParseNodeRef(parts[2])
	if err != nil {
		return AssocRef{}, err
	}
	return AssocRef{Source: source, Target: target, Type: typ}, nil
}
