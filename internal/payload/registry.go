// Package payload converts typed OCPP payloads to and from ordered structured
// values. Each action binds a request and a response Go type in a Registry.
package payload

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/gaspardpetit/csms/internal/ocpp"
)

// Kind selects the request or response schema of an action.
type Kind int

const (
	Request Kind = iota
	Response
)

func (k Kind) String() string {
	if k == Response {
		return "response"
	}
	return "request"
}

// ErrUnknownAction is returned for actions without a registered schema.
var ErrUnknownAction = errors.New("payload: no schema registered for action")

type schema struct {
	types [2]reflect.Type
}

// Registry maps actions to their payload types.
type Registry struct {
	mu      sync.RWMutex
	schemas map[ocpp.Action]schema
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[ocpp.Action]schema)}
}

// Register binds Req and Resp as the payload types of action. Both must be
// struct types.
func Register[Req, Resp any](r *Registry, action ocpp.Action) {
	req := reflect.TypeOf((*Req)(nil)).Elem()
	resp := reflect.TypeOf((*Resp)(nil)).Elem()
	for _, t := range []reflect.Type{req, resp} {
		if t.Kind() != reflect.Struct {
			panic(fmt.Sprintf("payload: %s schema %s is not a struct", action, t))
		}
	}
	r.mu.Lock()
	r.schemas[action] = schema{types: [2]reflect.Type{req, resp}}
	r.mu.Unlock()
}

// RegisterRaw binds the passthrough Raw type to both directions of action.
func RegisterRaw(r *Registry, action ocpp.Action) {
	Register[Raw, Raw](r, action)
}

// Has reports whether action has a schema.
func (r *Registry) Has(action ocpp.Action) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[action]
	return ok
}

// Type returns the Go type bound to action and kind.
func (r *Registry) Type(action ocpp.Action, kind Kind) (reflect.Type, error) {
	r.mu.RLock()
	s, ok := r.schemas[action]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return s.types[kind], nil
}

// New returns a pointer to a zero value of the type bound to action and kind.
func (r *Registry) New(action ocpp.Action, kind Kind) (any, error) {
	t, err := r.Type(action, kind)
	if err != nil {
		return nil, err
	}
	return reflect.New(t).Interface(), nil
}

// Actions returns the registered actions sorted by name.
func (r *Registry) Actions() []ocpp.Action {
	r.mu.RLock()
	out := make([]ocpp.Action, 0, len(r.schemas))
	for a := range r.schemas {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
