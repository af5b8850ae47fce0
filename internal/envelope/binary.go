package envelope

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/value"
)

// Binary frames share the JSON envelope shape:
//
//	request:  [type u8][id][action][payload][signatures]
//	result:   [type u8][id][payload][signatures]
//	error:    [type u8][id][code][description][details]
//
// Strings and blobs are uvarint length-prefixed. The payload blob is the
// binary value encoding. Signatures whose value is canonical base64 are
// lifted out of the payload and carried as raw bytes in the signature section.

const (
	sigHasPublicKey byte = 1 << iota
	sigHasCustomData
)

var canonicalSigKeys = []string{"signingMethod", "encodingMethod", "publicKey", "value", "customData"}

type binaryCodec struct{}

func (binaryCodec) Format() Format { return Binary }

func (binaryCodec) Frame(m Message) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	dst := []byte{byte(m.Type)}
	dst = value.AppendString(dst, m.ID)
	if m.Type.IsError() {
		dst = value.AppendString(dst, string(m.ErrorCode))
		dst = value.AppendString(dst, m.ErrorDescription)
		details := m.ErrorDetails
		if details == nil {
			details = value.NewObject()
		}
		blob, err := value.AppendBinary(nil, details)
		if err != nil {
			return nil, err
		}
		return value.AppendBytes(dst, blob), nil
	}
	if m.Type.IsRequest() {
		dst = value.AppendString(dst, string(m.Action))
	}
	payload, pos, sigs := liftSignatures(objectOrEmpty(m.Payload))
	blob, err := value.AppendBinary(nil, payload)
	if err != nil {
		return nil, err
	}
	dst = value.AppendBytes(dst, blob)
	return appendSignatures(dst, pos, sigs)
}

type rawSignature struct {
	flags          byte
	signingMethod  string
	encodingMethod string
	publicKey      string
	value          []byte
	customData     any
}

// liftSignatures removes a liftable signatures array from obj. pos is the
// 1-based field index the array held, or 0 when nothing was lifted.
func liftSignatures(obj *value.Object) (*value.Object, int, []rawSignature) {
	v, ok := obj.Get("signatures")
	if !ok {
		return obj, 0, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return obj, 0, nil
	}
	sigs := make([]rawSignature, 0, len(arr))
	for _, e := range arr {
		s, ok := toRawSignature(e)
		if !ok {
			return obj, 0, nil
		}
		sigs = append(sigs, s)
	}
	out := value.NewObject()
	pos := 0
	i := 0
	for p := obj.Oldest(); p != nil; p = p.Next() {
		i++
		if p.Key == "signatures" {
			pos = i
			continue
		}
		out.Set(p.Key, p.Value)
	}
	return out, pos, sigs
}

func toRawSignature(v any) (rawSignature, bool) {
	var s rawSignature
	obj, ok := v.(*value.Object)
	if !ok {
		return s, false
	}
	next := 0
	for p := obj.Oldest(); p != nil; p = p.Next() {
		for next < len(canonicalSigKeys) && canonicalSigKeys[next] != p.Key {
			next++
		}
		if next == len(canonicalSigKeys) {
			return s, false
		}
		next++
		if p.Key == "customData" {
			s.flags |= sigHasCustomData
			s.customData = p.Value
			continue
		}
		str, ok := p.Value.(string)
		if !ok {
			return s, false
		}
		switch p.Key {
		case "signingMethod":
			s.signingMethod = str
		case "encodingMethod":
			s.encodingMethod = str
		case "publicKey":
			s.flags |= sigHasPublicKey
			s.publicKey = str
		case "value":
			b, err := base64.StdEncoding.DecodeString(str)
			if err != nil || base64.StdEncoding.EncodeToString(b) != str {
				return s, false
			}
			s.value = b
		}
	}
	_, hasSM := obj.Get("signingMethod")
	_, hasEM := obj.Get("encodingMethod")
	_, hasV := obj.Get("value")
	return s, hasSM && hasEM && hasV
}

func appendSignatures(dst []byte, pos int, sigs []rawSignature) ([]byte, error) {
	dst = binary.AppendUvarint(dst, uint64(pos))
	if pos == 0 {
		return dst, nil
	}
	dst = binary.AppendUvarint(dst, uint64(len(sigs)))
	for _, s := range sigs {
		dst = append(dst, s.flags)
		dst = value.AppendString(dst, s.signingMethod)
		dst = value.AppendString(dst, s.encodingMethod)
		if s.flags&sigHasPublicKey != 0 {
			dst = value.AppendString(dst, s.publicKey)
		}
		dst = value.AppendBytes(dst, s.value)
		if s.flags&sigHasCustomData != 0 {
			var err error
			if dst, err = value.AppendBinary(dst, s.customData); err != nil {
				return nil, err
			}
		}
	}
	return dst, nil
}

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) u8() byte {
	if r.err != nil {
		return 0
	}
	if r.off >= len(r.b) {
		r.err = value.ErrShortBuffer
		return 0
	}
	c := r.b[r.off]
	r.off++
	return c
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.b[r.off:])
	if n <= 0 {
		r.err = value.ErrShortBuffer
		return 0
	}
	r.off += n
	return v
}

func (r *reader) blobBytes() []byte {
	if r.err != nil {
		return nil
	}
	p, n, err := value.ReadBytes(r.b[r.off:])
	if err != nil {
		r.err = err
		return nil
	}
	r.off += n
	return p
}

func (r *reader) str() string { return string(r.blobBytes()) }

func (r *reader) node() any {
	if r.err != nil {
		return nil
	}
	v, n, err := value.ReadBinary(r.b[r.off:])
	if err != nil {
		r.err = err
		return nil
	}
	r.off += n
	return v
}

func (r *reader) blob() any {
	p := r.blobBytes()
	if r.err != nil {
		return nil
	}
	v, n, err := value.ReadBinary(p)
	if err != nil {
		r.err = err
		return nil
	}
	if n != len(p) {
		r.err = errors.New("trailing bytes in blob")
	}
	return v
}

func (binaryCodec) Parse(raw []byte) (Message, error) {
	var m Message
	fail := func(reason string) (Message, error) {
		return Message{}, &FormatError{Raw: raw, Reason: reason, Type: m.Type, MessageID: m.ID}
	}
	r := &reader{b: raw}
	m.Type = MessageType(r.u8())
	id := r.str()
	if r.err != nil {
		return fail("truncated header")
	}
	if id == "" || len(id) > MaxIDLength {
		return fail("message id length out of range")
	}
	m.ID = id
	if !m.Type.Valid() {
		return fail(fmt.Sprintf("unknown message type %d", int(m.Type)))
	}
	if m.Type.IsError() {
		m.ErrorCode = ocpp.ErrorCode(r.str())
		m.ErrorDescription = r.str()
		m.ErrorDetails = r.blob()
		if r.err != nil {
			return fail(r.err.Error())
		}
		if r.off != len(raw) {
			return fail("trailing bytes after frame")
		}
		return m, nil
	}
	if m.Type.IsRequest() {
		m.Action = ocpp.Action(r.str())
		if r.err == nil && m.Action == "" {
			return fail("empty action")
		}
	}
	payload := r.blob()
	if r.err != nil {
		return fail(r.err.Error())
	}
	obj, ok := payload.(*value.Object)
	if !ok {
		return fail("payload is not an object")
	}
	obj, err := readSignatures(r, obj)
	if err != nil {
		return fail(err.Error())
	}
	if r.off != len(raw) {
		return fail("trailing bytes after frame")
	}
	m.Payload = obj
	return m, nil
}

func readSignatures(r *reader, obj *value.Object) (*value.Object, error) {
	pos := r.uvarint()
	if r.err != nil {
		return nil, r.err
	}
	if pos == 0 {
		return obj, nil
	}
	if pos > uint64(obj.Len())+1 {
		return nil, errors.New("signature position out of range")
	}
	count := r.uvarint()
	if r.err == nil && count > uint64(len(r.b)-r.off) {
		r.err = value.ErrShortBuffer
	}
	sigs := make([]any, 0, count)
	for i := uint64(0); i < count && r.err == nil; i++ {
		flags := r.u8()
		sig := value.NewObject()
		sig.Set("signingMethod", r.str())
		sig.Set("encodingMethod", r.str())
		if flags&sigHasPublicKey != 0 {
			sig.Set("publicKey", r.str())
		}
		sig.Set("value", base64.StdEncoding.EncodeToString(r.blobBytes()))
		if flags&sigHasCustomData != 0 {
			sig.Set("customData", r.node())
		}
		sigs = append(sigs, sig)
	}
	if r.err != nil {
		return nil, r.err
	}
	out := value.NewObject()
	i := uint64(0)
	for p := obj.Oldest(); p != nil; p = p.Next() {
		i++
		if i == pos {
			out.Set("signatures", sigs)
		}
		out.Set(p.Key, p.Value)
	}
	if pos == i+1 {
		out.Set("signatures", sigs)
	}
	return out, nil
}
