package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/go-playground/validator.v9"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/value"
)

var (
	errMissing   = errors.New("required field missing")
	errNotObject = errors.New("expected an object")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Encode converts a typed payload into a structured value. v must be the type
// registered for action and kind, or a pointer to it. Serializers run after
// the value is built, children before parents.
func (r *Registry) Encode(action ocpp.Action, kind Kind, v any, s Serializers) (*value.Object, error) {
	t, err := r.Type(action, kind)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Type() != t {
		return nil, fmt.Errorf("payload: %s %s expects %s, got %T", action, kind, t, v)
	}
	ptr := reflect.New(t)
	ptr.Elem().Set(rv)
	if err := checkStruct(action, kind, ptr.Interface()); err != nil {
		return nil, err
	}
	b, err := json.Marshal(ptr.Interface())
	if err != nil {
		return nil, fmt.Errorf("payload: marshal %s %s: %w", action, kind, err)
	}
	obj, err := value.ParseObject(b)
	if err != nil {
		return nil, fmt.Errorf("payload: %s %s: %w", action, kind, err)
	}
	if len(s) == 0 {
		return obj, nil
	}
	out, err := applyPostOrder(s, "", obj)
	if err != nil {
		return nil, fmt.Errorf("payload: %s %s: %w", action, kind, err)
	}
	res, ok := out.(*value.Object)
	if !ok {
		return nil, fmt.Errorf("payload: %s %s: root serializer returned %T", action, kind, out)
	}
	return res, nil
}

// Decode builds the typed payload for action and kind from obj and returns a
// pointer to it. obj is not modified. Parsers run first, parents before
// children; unknown fields are then moved into the nearest customData.
func (r *Registry) Decode(action ocpp.Action, kind Kind, obj *value.Object, p Parsers) (any, error) {
	t, err := r.Type(action, kind)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		obj = value.NewObject()
	}
	fail := func(path string, code ocpp.ErrorCode, err error) (any, error) {
		return nil, &ValidationError{Action: action, Kind: kind, Path: path, Code: classify(path, code), Err: err}
	}
	var node any = value.Clone(obj)
	if len(p) > 0 {
		if node, err = applyPreOrder(p, "", node); err != nil {
			return fail("", ocpp.FormationViolation, err)
		}
	}
	work, ok := node.(*value.Object)
	if !ok {
		return fail("", ocpp.FormationViolation, errNotObject)
	}
	n := normalizer{log: logx.Log.With().Str("action", string(action)).Str("kind", kind.String()).Logger()}
	if path, err := n.object(work, t, ""); err != nil {
		code := ocpp.OccurrenceConstraintViolation
		if errors.Is(err, errNotObject) {
			code = ocpp.TypeConstraintViolation
		}
		return fail(path, code, err)
	}
	b, err := value.Marshal(work)
	if err != nil {
		return fail("", ocpp.FormationViolation, err)
	}
	out := reflect.New(t)
	if err := json.Unmarshal(b, out.Interface()); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return fail(te.Field, ocpp.TypeConstraintViolation, fmt.Errorf("expected %s, got %s", te.Type, te.Value))
		}
		return fail("", ocpp.TypeConstraintViolation, err)
	}
	if err := checkStruct(action, kind, out.Interface()); err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// DecodeJSON is Decode for a raw JSON document.
func (r *Registry) DecodeJSON(action ocpp.Action, kind Kind, raw []byte, p Parsers) (any, error) {
	obj, err := value.ParseObject(raw)
	if err != nil {
		return nil, &ValidationError{Action: action, Kind: kind, Code: ocpp.FormationViolation, Err: err}
	}
	return r.Decode(action, kind, obj, p)
}

func checkStruct(action ocpp.Action, kind Kind, ptr any) error {
	err := validate.Struct(ptr)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return &ValidationError{Action: action, Kind: kind, Code: ocpp.FormationViolation, Err: err}
	}
	fe := ves[0]
	path := fieldPath(fe.Namespace())
	code := ocpp.PropertyConstraintViolation
	switch fe.Tag() {
	case "required", "required_with", "required_without":
		code = ocpp.OccurrenceConstraintViolation
	case "min", "max", "len":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array {
			code = ocpp.OccurrenceConstraintViolation
		}
	}
	return &ValidationError{
		Action: action,
		Kind:   kind,
		Path:   path,
		Code:   classify(path, code),
		Err:    fmt.Errorf("failed %q constraint", fe.Tag()),
	}
}

// fieldPath turns a validator namespace into a JSON path: the root type name
// and embedded Extensions segments are dropped.
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, ".")
	out := parts[:0]
	for _, p := range parts {
		if p == "Extensions" {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}
