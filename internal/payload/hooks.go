package payload

import (
	"fmt"

	"github.com/gaspardpetit/csms/internal/value"
)

// Hook rewrites the node found at path. It may return a different node.
type Hook func(path string, node any) (any, error)

// Serializers hold encode hooks keyed by dotted field path. The empty path is
// the payload root and array elements share the path of their array, so
// "chargingProfile.chargingSchedule.chargingSchedulePeriod" addresses every
// period object. Encode applies them depth-first, children before parents.
type Serializers map[string]Hook

// Parsers hold decode hooks with the same addressing as Serializers. Decode
// applies them parents first, before the typed value is built.
type Parsers map[string]Hook

func applyPostOrder(hooks map[string]Hook, path string, node any) (any, error) {
	switch n := node.(type) {
	case *value.Object:
		for p := n.Oldest(); p != nil; p = p.Next() {
			v, err := applyPostOrder(hooks, join(path, p.Key), p.Value)
			if err != nil {
				return nil, err
			}
			p.Value = v
		}
	case []any:
		for i, e := range n {
			v, err := applyPostOrder(hooks, path, e)
			if err != nil {
				return nil, err
			}
			n[i] = v
		}
		return n, nil
	}
	return callHook(hooks, path, node)
}

func applyPreOrder(hooks map[string]Hook, path string, node any) (any, error) {
	if _, isArr := node.([]any); !isArr {
		var err error
		if node, err = callHook(hooks, path, node); err != nil {
			return nil, err
		}
	}
	switch n := node.(type) {
	case *value.Object:
		for p := n.Oldest(); p != nil; p = p.Next() {
			v, err := applyPreOrder(hooks, join(path, p.Key), p.Value)
			if err != nil {
				return nil, err
			}
			p.Value = v
		}
	case []any:
		for i, e := range n {
			v, err := applyPreOrder(hooks, path, e)
			if err != nil {
				return nil, err
			}
			n[i] = v
		}
	}
	return node, nil
}

func callHook(hooks map[string]Hook, path string, node any) (any, error) {
	fn, ok := hooks[path]
	if !ok {
		return node, nil
	}
	out, err := fn(path, node)
	if err != nil {
		if path == "" {
			return nil, fmt.Errorf("hook at root: %w", err)
		}
		return nil, fmt.Errorf("hook at %s: %w", path, err)
	}
	return out, nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
