package payload

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/csms/internal/value"
)

var unmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()

type fieldSpec struct {
	typ      reflect.Type
	required bool
}

type structSpec struct {
	fields     map[string]fieldSpec
	order      []string
	customData bool
}

var specs sync.Map // reflect.Type -> *structSpec

func specFor(t reflect.Type) *structSpec {
	if s, ok := specs.Load(t); ok {
		return s.(*structSpec)
	}
	s := &structSpec{fields: make(map[string]fieldSpec)}
	collectFields(t, s)
	_, s.customData = s.fields["customData"]
	actual, _ := specs.LoadOrStore(t, s)
	return actual.(*structSpec)
}

func collectFields(t reflect.Type, s *structSpec) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			if ft := deref(f.Type); ft.Kind() == reflect.Struct {
				collectFields(ft, s)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if _, dup := s.fields[name]; !dup {
			s.order = append(s.order, name)
		}
		s.fields[name] = fieldSpec{typ: f.Type, required: !strings.Contains(opts, "omitempty")}
	}
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func opaque(t reflect.Type) bool {
	return t.Implements(unmarshalerType) || reflect.PointerTo(t).Implements(unmarshalerType)
}

// normalizer checks field presence against the Go schema and moves unknown
// fields into the customData of the level they appear on.
type normalizer struct {
	log zerolog.Logger
}

func (n normalizer) object(obj *value.Object, t reflect.Type, path string) (string, error) {
	t = deref(t)
	if t.Kind() != reflect.Struct || opaque(t) {
		return "", nil
	}
	spec := specFor(t)
	var unknown []string
	for p := obj.Oldest(); p != nil; p = p.Next() {
		f, ok := spec.fields[p.Key]
		if !ok {
			unknown = append(unknown, p.Key)
			continue
		}
		if bad, err := n.node(p.Value, f.typ, join(path, p.Key)); err != nil {
			return bad, err
		}
	}
	for _, name := range spec.order {
		if !spec.fields[name].required {
			continue
		}
		if _, ok := obj.Get(name); !ok {
			return join(path, name), errMissing
		}
	}
	if len(unknown) == 0 {
		return "", nil
	}
	if !spec.customData {
		for _, k := range unknown {
			obj.Delete(k)
		}
		n.log.Debug().Str("path", path).Strs("fields", unknown).Msg("dropping unknown fields")
		return "", nil
	}
	var cd *value.Object
	switch node, ok := obj.Get("customData"); {
	case !ok || node == nil:
		cd = value.NewObject()
		obj.Set("customData", cd)
	default:
		var isObj bool
		if cd, isObj = node.(*value.Object); !isObj {
			return join(path, "customData"), errNotObject
		}
	}
	for _, k := range unknown {
		v, _ := obj.Delete(k)
		cd.Set(k, v)
	}
	return "", nil
}

func (n normalizer) node(node any, t reflect.Type, path string) (string, error) {
	t = deref(t)
	switch v := node.(type) {
	case *value.Object:
		return n.object(v, t, path)
	case []any:
		if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
			return "", nil
		}
		for i, e := range v {
			if bad, err := n.node(e, t.Elem(), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return bad, err
			}
		}
	}
	return "", nil
}
