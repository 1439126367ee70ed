package store

import (
	"fmt"

	"github.com/roach88/noderepo/internal/ir"
)

// marshalValue converts a property value to tagged canonical JSON TEXT.
func marshalValue(v ir.Value) (string, error) {
	data, err := ir.EncodeValue(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

func unmarshalValue(data string) (ir.Value, error) {
	v, err := ir.DecodeValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

func unmarshalQName(s string) (ir.QName, error) {
	q, err := ir.ParseQName(s)
	if err != nil {
		return ir.QName{}, fmt.Errorf("unmarshal qname: %w", err)
	}
	return q, nil
}

func unmarshalNodeRef(s string) (ir.NodeRef, error) {
	r, err := ir.ParseNodeRef(s)
	if err != nil {
		return ir.NodeRef{}, fmt.Errorf("unmarshal node ref: %w", err)
	}
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
