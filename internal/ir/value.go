package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// Value is a sealed interface for property values.
// Only TextValue, IntValue, BoolValue, MLTextValue, RefValue and ListValue
// implement it. There is no float value: property values are hashed for
// first-event de-duplication and floats do not round-trip canonically.
type Value interface {
	// DataType names the property data type the value belongs to.
	DataType() DataType
	value()
}

// DataType is a property data type declared in a model.
type DataType string

const (
	TypeText    DataType = "text"
	TypeMLText  DataType = "mltext"
	TypeInt     DataType = "int"
	TypeBool    DataType = "bool"
	TypeNodeRef DataType = "noderef"
	TypeAny     DataType = "any"

	// typeList tags a multi-valued property in the encoded form.
	typeList DataType = "list"
)

// ValidDataType reports whether t is a declarable property type.
func ValidDataType(t DataType) bool {
	switch t {
	case TypeText, TypeMLText, TypeInt, TypeBool, TypeNodeRef, TypeAny:
		return true
	}
	return false
}

// TextValue is a plain string.
type TextValue string

func (TextValue) value()             {}
func (TextValue) DataType() DataType { return TypeText }

// IntValue is a 64-bit integer.
type IntValue int64

func (IntValue) value()             {}
func (IntValue) DataType() DataType { return TypeInt }

// BoolValue is a boolean.
type BoolValue bool

func (BoolValue) value()             {}
func (BoolValue) DataType() DataType { return TypeBool }

// MLTextValue maps BCP 47 locale tags to translations. The empty tag holds
// the locale-neutral text.
type MLTextValue map[string]string

func (MLTextValue) value()             {}
func (MLTextValue) DataType() DataType { return TypeMLText }

// Locales returns the tags in sorted order.
func (m MLTextValue) Locales() []string {
	return slices.Sorted(maps.Keys(m))
}

// RefValue references another node.
type RefValue NodeRef

func (RefValue) value()             {}
func (RefValue) DataType() DataType { return TypeNodeRef }

// NodeRef returns the referenced node.
func (r RefValue) NodeRef() NodeRef { return NodeRef(r) }

// ListValue holds the values of a multi-valued property.
type ListValue []Value

func (ListValue) value() {}

// DataType of a list is the data type of its elements, or TypeAny when the
// list is empty or mixed.
func (l ListValue) DataType() DataType {
	if len(l) == 0 {
		return TypeAny
	}
	t := l[0].DataType()
	for _, v := range l[1:] {
		if v.DataType() != t {
			return TypeAny
		}
	}
	return t
}

// Text is shorthand for TextValue.
func Text(s string) TextValue { return TextValue(s) }

// Int is shorthand for IntValue.
func Int(n int64) IntValue { return IntValue(n) }

// Bool is shorthand for BoolValue.
func Bool(b bool) BoolValue { return BoolValue(b) }

// Ref is shorthand for RefValue.
func Ref(n NodeRef) RefValue { return RefValue(n) }

// List is shorthand for ListValue.
func List(vals ...Value) ListValue { return ListValue(vals) }

// ValuesEqual reports whether two values are structurally equal.
func ValuesEqual(a, b Value) bool {
	return reflect.DeepEqual(a, b)
}

// PropertyMap holds node properties keyed by property QName.
type PropertyMap map[QName]Value

// Clone returns a shallow copy. Values are immutable by convention so a
// shallow copy is a snapshot.
func (p PropertyMap) Clone() PropertyMap {
	out := make(PropertyMap, len(p))
	maps.Copy(out, p)
	return out
}

// SortedKeys returns the property names in CompareQNames order.
func (p PropertyMap) SortedKeys() []QName {
	keys := slices.Collect(maps.Keys(p))
	SortQNames(keys)
	return keys
}

// Equal reports whether both maps hold the same properties and values.
func (p PropertyMap) Equal(other PropertyMap) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		ov, ok := other[k]
		if !ok || !ValuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// Object converts the map into a canonical-JSON-ready object keyed by
// Clark notation.
func (p PropertyMap) Object() map[string]any {
	obj := make(map[string]any, len(p))
	for k, v := range p {
		obj[k.String()] = encodeTagged(v)
	}
	return obj
}

// EncodeValue serialises v to canonical JSON in tagged form:
//
//	{"t":"text","v":"hello"}
//	{"t":"list","v":[{"t":"int","v":1}]}
func EncodeValue(v Value) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("encode value: nil value")
	}
	return MarshalCanonical(encodeTagged(v))
}

func encodeTagged(v Value) map[string]any {
	switch val := v.(type) {
	case TextValue:
		return map[string]any{"t": string(TypeText), "v": string(val)}
	case IntValue:
		return map[string]any{"t": string(TypeInt), "v": int64(val)}
	case BoolValue:
		return map[string]any{"t": string(TypeBool), "v": bool(val)}
	case MLTextValue:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return map[string]any{"t": string(TypeMLText), "v": m}
	case RefValue:
		return map[string]any{"t": string(TypeNodeRef), "v": NodeRef(val).String()}
	case ListValue:
		items := make([]any, len(val))
		for i, e := range val {
			items[i] = encodeTagged(e)
		}
		return map[string]any{"t": string(typeList), "v": items}
	default:
		panic(fmt.Sprintf("unknown Value type %T", v))
	}
}

type taggedValue struct {
	T DataType        `json:"t"`
	V json.RawMessage `json:"v"`
}

// DecodeValue parses the tagged form written by EncodeValue.
func DecodeValue(data []byte) (Value, error) {
	var tv taggedValue
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&tv); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return decodeTagged(tv)
}

func decodeTagged(tv taggedValue) (Value, error) {
	switch tv.T {
	case TypeText:
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
		return TextValue(s), nil
	case TypeInt:
		var n json.Number
		if err := json.Unmarshal(tv.V, &n); err != nil {
			return nil, fmt.Errorf("decode int: %w", err)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("decode int: %w", err)
		}
		return IntValue(i), nil
	case TypeBool:
		var b bool
		if err := json.Unmarshal(tv.V, &b); err != nil {
			return nil, fmt.Errorf("decode bool: %w", err)
		}
		return BoolValue(b), nil
	case TypeMLText:
		var m map[string]string
		if err := json.Unmarshal(tv.V, &m); err != nil {
			return nil, fmt.Errorf("decode mltext: %w", err)
		}
		return MLTextValue(m), nil
	case TypeNodeRef:
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, fmt.Errorf("decode noderef: %w", err)
		}
		ref, err := ParseNodeRef(s)
		if err != nil {
			return nil, fmt.Errorf("decode noderef: %w", err)
		}
		return RefValue(ref), nil
	case typeList:
		var raw []taggedValue
		if err := json.Unmarshal(tv.V, &raw); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		list := make(ListValue, len(raw))
		for i, item := range raw {
			v, err := decodeTagged(item)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = v
		}
		return list, nil
	default:
		return nil, fmt.Errorf("decode value: unknown tag %q", tv.T)
	}
}

// ValueFromAny converts a decoded YAML/JSON/CUE scalar into a Value of the
// given data type. Lists are converted element-wise.
func ValueFromAny(t DataType, v any) (Value, error) {
	if items, ok := v.([]any); ok {
		list := make(ListValue, len(items))
		for i, item := range items {
			converted, err := ValueFromAny(t, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = converted
		}
		return list, nil
	}
	switch t {
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for %s, got %T", t, v)
		}
		return TextValue(s), nil
	case TypeMLText:
		switch val := v.(type) {
		case string:
			return MLTextValue{"": val}, nil
		case map[string]any:
			m := make(MLTextValue, len(val))
			for k, s := range val {
				str, ok := s.(string)
				if !ok {
					return nil, fmt.Errorf("expected string for locale %q, got %T", k, s)
				}
				m[k] = str
			}
			return m, nil
		}
		return nil, fmt.Errorf("expected string or locale map for %s, got %T", t, v)
	case TypeInt:
		switch n := v.(type) {
		case int:
			return IntValue(n), nil
		case int64:
			return IntValue(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, err
			}
			return IntValue(i), nil
		}
		return nil, fmt.Errorf("expected integer for %s, got %T", t, v)
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool for %s, got %T", t, v)
		}
		return BoolValue(b), nil
	case TypeNodeRef:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected node ref string for %s, got %T", t, v)
		}
		ref, err := ParseNodeRef(s)
		if err != nil {
			return nil, err
		}
		return RefValue(ref), nil
	case TypeAny:
		switch val := v.(type) {
		case string:
			return TextValue(val), nil
		case bool:
			return BoolValue(val), nil
		case int, int64, json.Number:
			return ValueFromAny(TypeInt, val)
		}
		return nil, fmt.Errorf("unsupported value %T for %s", v, t)
	default:
		return nil, fmt.Errorf("unknown data type %q", t)
	}
}
