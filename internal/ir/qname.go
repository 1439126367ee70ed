package ir

import (
	"fmt"
	"slices"
	"strings"
)

// QName is a namespaced identifier for a type, aspect, property or
// association type. Equality is structural.
type QName struct {
	Namespace string `json:"namespace"`
	Local     string `json:"local"`
}

// AnyNamespace is the namespace of the wildcard QName.
const AnyNamespace = "http://noderepo.dev/model/any/1.0"

// AnyQName matches every node regardless of type or aspects when used as a
// behaviour binding, and every association type when used as an
// association-type binding.
var AnyQName = QName{Namespace: AnyNamespace, Local: "any"}

// NewQName creates a QName.
func NewQName(namespace, local string) QName {
	return QName{Namespace: namespace, Local: local}
}

// String renders the QName in Clark notation: {namespace}local.
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return "{" + q.Namespace + "}" + q.Local
}

// IsZero reports whether q is the zero QName.
func (q QName) IsZero() bool {
	return q.Namespace == "" && q.Local == ""
}

// IsAny reports whether q is the wildcard QName.
func (q QName) IsAny() bool {
	return q == AnyQName
}

// ParseQName parses Clark notation ({namespace}local) or a bare local name.
func ParseQName(s string) (QName, error) {
	if s == "" {
		return QName{}, fmt.Errorf("empty qname")
	}
	if s[0] != '{' {
		if strings.ContainsAny(s, "{}") {
			return QName{}, fmt.Errorf("invalid qname %q", s)
		}
		return QName{Local: s}, nil
	}
	end := strings.IndexByte(s, '}')
	if end < 0 {
		return QName{}, fmt.Errorf("invalid qname %q: missing '}'", s)
	}
	q := QName{Namespace: s[1:end], Local: s[end+1:]}
	if q.Local == "" {
		return QName{}, fmt.Errorf("invalid qname %q: empty local name", s)
	}
	return q, nil
}

// MustParseQName is like ParseQName but panics on error.
// Use only in tests or for package-level constants.
func MustParseQName(s string) QName {
	q, err := ParseQName(s)
	if err != nil {
		panic(err)
	}
	return q
}

// CompareQNames orders QNames by namespace, then local name.
func CompareQNames(a, b QName) int {
	if c := strings.Compare(a.Namespace, b.Namespace); c != 0 {
		return c
	}
	return strings.Compare(a.Local, b.Local)
}

// SortQNames sorts qs in place using CompareQNames.
func SortQNames(qs []QName) {
	slices.SortFunc(qs, CompareQNames)
}

// Namespaces maps namespace prefixes to namespace URIs.
type Namespaces map[string]string

// Resolve turns prefixed ("cm:name") or Clark ("{uri}name") notation into a
// QName. Bare local names without a prefix are rejected.
func (ns Namespaces) Resolve(s string) (QName, error) {
	if strings.HasPrefix(s, "{") {
		return ParseQName(s)
	}
	prefix, local, ok := strings.Cut(s, ":")
	if !ok || prefix == "" || local == "" {
		return QName{}, fmt.Errorf("invalid prefixed qname %q", s)
	}
	uri, ok := ns[prefix]
	if !ok {
		return QName{}, fmt.Errorf("unknown namespace prefix %q in %q", prefix, s)
	}
	return QName{Namespace: uri, Local: local}, nil
}

// Prefixed renders q using a registered prefix, falling back to Clark
// notation when the namespace has no prefix.
func (ns Namespaces) Prefixed(q QName) string {
	if q == AnyQName {
		return "*"
	}
	// Iterate sorted so that a namespace bound to two prefixes renders stably.
	prefixes := make([]string, 0, len(ns))
	for p := range ns {
		prefixes = append(prefixes, p)
	}
	slices.Sort(prefixes)
	for _, p := range prefixes {
		if ns[p] == q.Namespace {
			return p + ":" + q.Local
		}
	}
	return q.String()
}
