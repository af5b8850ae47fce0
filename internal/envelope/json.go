package envelope

import (
	"encoding/json"
	"strconv"

	"github.com/buger/jsonparser"

	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/value"
)

type jsonCodec struct{}

func (jsonCodec) Format() Format { return JSON }

func (jsonCodec) Frame(m Message) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	var arr []any
	switch {
	case m.Type.IsRequest():
		arr = []any{int(m.Type), m.ID, string(m.Action), objectOrEmpty(m.Payload)}
	case m.Type == CallResult:
		arr = []any{int(m.Type), m.ID, objectOrEmpty(m.Payload)}
	default:
		details := m.ErrorDetails
		if details == nil {
			details = value.NewObject()
		}
		arr = []any{int(m.Type), m.ID, string(m.ErrorCode), m.ErrorDescription, details}
	}
	return json.Marshal(arr)
}

func objectOrEmpty(o *value.Object) *value.Object {
	if o == nil {
		return value.NewObject()
	}
	return o
}

type element struct {
	raw []byte
	typ jsonparser.ValueType
}

func (jsonCodec) Parse(raw []byte) (Message, error) {
	fail := func(m Message, reason string) (Message, error) {
		return Message{}, &FormatError{Raw: raw, Reason: reason, Type: m.Type, MessageID: m.ID}
	}
	var m Message
	if !json.Valid(raw) {
		return fail(m, "invalid JSON")
	}
	top, typ, _, err := jsonparser.Get(raw)
	if err != nil || typ != jsonparser.Array {
		return fail(m, "frame is not an array")
	}
	var elems []element
	if _, err := jsonparser.ArrayEach(top, func(v []byte, vt jsonparser.ValueType, _ int, _ error) {
		elems = append(elems, element{raw: v, typ: vt})
	}); err != nil {
		return fail(m, "frame is not an array")
	}
	if len(elems) < 3 {
		return fail(m, "frame has "+strconv.Itoa(len(elems))+" elements")
	}
	if elems[0].typ != jsonparser.Number {
		return fail(m, "message type is not a number")
	}
	t, err := strconv.Atoi(string(elems[0].raw))
	if err != nil {
		return fail(m, "message type is not an integer")
	}
	m.Type = MessageType(t)
	if elems[1].typ != jsonparser.String {
		return fail(m, "message id is not a string")
	}
	id, err := jsonparser.ParseString(elems[1].raw)
	if err != nil {
		return fail(m, "message id is not a string")
	}
	if id == "" || len(id) > MaxIDLength {
		return fail(m, "message id length out of range")
	}
	m.ID = id
	if !m.Type.Valid() {
		return fail(m, "unknown message type "+strconv.Itoa(t))
	}

	want := 3
	switch {
	case m.Type.IsRequest():
		want = 4
	case m.Type.IsError():
		want = 5
	}
	if len(elems) != want {
		return fail(m, m.Type.String()+" must have "+strconv.Itoa(want)+" elements, got "+strconv.Itoa(len(elems)))
	}

	switch {
	case m.Type.IsRequest():
		if elems[2].typ != jsonparser.String {
			return fail(m, "action is not a string")
		}
		a, err := jsonparser.ParseString(elems[2].raw)
		if err != nil || a == "" {
			return fail(m, "action is not a string")
		}
		m.Action = ocpp.Action(a)
		if m.Payload, err = objectElem(elems[3]); err != nil {
			return fail(m, "payload is not an object")
		}
	case m.Type == CallResult:
		if m.Payload, err = objectElem(elems[2]); err != nil {
			return fail(m, "payload is not an object")
		}
	default:
		if elems[2].typ != jsonparser.String || elems[3].typ != jsonparser.String {
			return fail(m, "error code and description must be strings")
		}
		code, err := jsonparser.ParseString(elems[2].raw)
		if err != nil {
			return fail(m, "error code is not a string")
		}
		desc, err := jsonparser.ParseString(elems[3].raw)
		if err != nil {
			return fail(m, "error description is not a string")
		}
		m.ErrorCode = ocpp.ErrorCode(code)
		m.ErrorDescription = desc
		if m.ErrorDetails, err = value.FromRaw(elems[4].raw, elems[4].typ); err != nil {
			return fail(m, "error details: "+err.Error())
		}
	}
	return m, nil
}

func objectElem(e element) (*value.Object, error) {
	if e.typ != jsonparser.Object {
		return nil, value.ErrNotObject
	}
	v, err := value.FromRaw(e.raw, e.typ)
	if err != nil {
		return nil, err
	}
	return v.(*value.Object), nil
}
