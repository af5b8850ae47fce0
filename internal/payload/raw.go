package payload

import (
	"github.com/gaspardpetit/csms/internal/value"
)

// Raw carries a payload whose field layout is not modelled. Fields are kept
// as-is, including signatures and customData.
type Raw struct {
	Fields *value.Object
}

// NewRaw wraps obj.
func NewRaw(obj *value.Object) Raw {
	return Raw{Fields: obj}
}

func (r Raw) MarshalJSON() ([]byte, error) {
	return value.Marshal(r.Fields)
}

func (r *Raw) UnmarshalJSON(b []byte) error {
	obj, err := value.ParseObject(b)
	if err != nil {
		return err
	}
	r.Fields = obj
	return nil
}
