// Package value implements the ordered structured value that OCPP payloads are
// converted to and from. A node is one of *Object, []any, string, json.Number,
// bool or nil. Objects keep their fields in document order.
package value

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is an ordered field map.
type Object = orderedmap.OrderedMap[string, any]

// ErrNotObject is returned by ParseObject when the document is not a JSON object.
var ErrNotObject = errors.New("value: not a JSON object")

// NewObject returns an empty Object.
func NewObject() *Object {
	return orderedmap.New[string, any]()
}

// Parse converts a JSON document into a structured value, preserving field order.
func Parse(raw []byte) (any, error) {
	if !json.Valid(raw) {
		return nil, errors.New("value: invalid JSON")
	}
	v, t, _, err := jsonparser.Get(raw)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return build(v, t)
}

// ParseObject is Parse restricted to JSON objects.
func ParseObject(raw []byte) (*Object, error) {
	v, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// FromRaw builds a node from a raw jsonparser value of the given type. The
// input must already be known to be well-formed.
func FromRaw(raw []byte, t jsonparser.ValueType) (any, error) {
	return build(raw, t)
}

func build(raw []byte, t jsonparser.ValueType) (any, error) {
	switch t {
	case jsonparser.Object:
		obj := NewObject()
		err := jsonparser.ObjectEach(raw, func(k, v []byte, vt jsonparser.ValueType, _ int) error {
			key, err := jsonparser.ParseString(k)
			if err != nil {
				return err
			}
			node, err := build(v, vt)
			if err != nil {
				return err
			}
			obj.Set(key, node)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return obj, nil
	case jsonparser.Array:
		arr := make([]any, 0)
		var inner error
		_, err := jsonparser.ArrayEach(raw, func(v []byte, vt jsonparser.ValueType, _ int, e error) {
			if inner != nil {
				return
			}
			if e != nil {
				inner = e
				return
			}
			node, err := build(v, vt)
			if err != nil {
				inner = err
				return
			}
			arr = append(arr, node)
		})
		if err == nil {
			err = inner
		}
		if err != nil {
			return nil, err
		}
		return arr, nil
	case jsonparser.String:
		return jsonparser.ParseString(raw)
	case jsonparser.Number:
		return json.Number(string(raw)), nil
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(raw)
	case jsonparser.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("value: unexpected token %q", raw)
	}
}

// Marshal renders a node as JSON. A nil *Object renders as {}.
func Marshal(v any) ([]byte, error) {
	if obj, ok := v.(*Object); ok && obj == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// Clone returns a deep copy of a node.
func Clone(v any) any {
	switch n := v.(type) {
	case *Object:
		if n == nil {
			return (*Object)(nil)
		}
		out := NewObject()
		for p := n.Oldest(); p != nil; p = p.Next() {
			out.Set(p.Key, Clone(p.Value))
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two nodes are equal, including object field order.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case *Object:
		y, ok := b.(*Object)
		if !ok || x.Len() != y.Len() {
			return false
		}
		p, q := x.Oldest(), y.Oldest()
		for p != nil {
			if p.Key != q.Key || !Equal(p.Value, q.Value) {
				return false
			}
			p, q = p.Next(), q.Next()
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Keys returns the field names of obj in order.
func Keys(obj *Object) []string {
	if obj == nil {
		return nil
	}
	keys := make([]string, 0, obj.Len())
	for p := obj.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}
