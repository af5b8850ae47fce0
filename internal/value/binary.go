package value

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Binary node tags.
const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagNumber
	tagString
	tagArray
	tagObject
)

// ErrShortBuffer is returned when a binary value is truncated.
var ErrShortBuffer = errors.New("value: short buffer")

// AppendBinary appends the binary encoding of v to dst. Numbers keep their
// textual form so encoding is lossless; object order is preserved.
func AppendBinary(dst []byte, v any) ([]byte, error) {
	switch n := v.(type) {
	case nil:
		return append(dst, tagNull), nil
	case bool:
		if n {
			return append(dst, tagTrue), nil
		}
		return append(dst, tagFalse), nil
	case json.Number:
		dst = append(dst, tagNumber)
		return AppendString(dst, string(n)), nil
	case string:
		dst = append(dst, tagString)
		return AppendString(dst, n), nil
	case []any:
		dst = append(dst, tagArray)
		dst = binary.AppendUvarint(dst, uint64(len(n)))
		for _, e := range n {
			var err error
			if dst, err = AppendBinary(dst, e); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case *Object:
		dst = append(dst, tagObject)
		if n == nil {
			return binary.AppendUvarint(dst, 0), nil
		}
		dst = binary.AppendUvarint(dst, uint64(n.Len()))
		for p := n.Oldest(); p != nil; p = p.Next() {
			dst = AppendString(dst, p.Key)
			var err error
			if dst, err = AppendBinary(dst, p.Value); err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("value: unsupported node type %T", v)
	}
}

// ReadBinary decodes one node from b and returns it with the number of bytes consumed.
func ReadBinary(b []byte) (any, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrShortBuffer
	}
	off := 1
	switch b[0] {
	case tagNull:
		return nil, off, nil
	case tagFalse:
		return false, off, nil
	case tagTrue:
		return true, off, nil
	case tagNumber, tagString:
		s, n, err := ReadString(b[off:])
		if err != nil {
			return nil, 0, err
		}
		if b[0] == tagNumber {
			return json.Number(s), off + n, nil
		}
		return s, off + n, nil
	case tagArray:
		count, n := binary.Uvarint(b[off:])
		if n <= 0 {
			return nil, 0, ErrShortBuffer
		}
		off += n
		if count > uint64(len(b)-off) {
			return nil, 0, ErrShortBuffer
		}
		arr := make([]any, 0, count)
		for i := uint64(0); i < count; i++ {
			e, m, err := ReadBinary(b[off:])
			if err != nil {
				return nil, 0, err
			}
			off += m
			arr = append(arr, e)
		}
		return arr, off, nil
	case tagObject:
		count, n := binary.Uvarint(b[off:])
		if n <= 0 {
			return nil, 0, ErrShortBuffer
		}
		off += n
		if count > uint64(len(b)-off) {
			return nil, 0, ErrShortBuffer
		}
		obj := NewObject()
		for i := uint64(0); i < count; i++ {
			k, m, err := ReadString(b[off:])
			if err != nil {
				return nil, 0, err
			}
			off += m
			e, m, err := ReadBinary(b[off:])
			if err != nil {
				return nil, 0, err
			}
			off += m
			obj.Set(k, e)
		}
		return obj, off, nil
	default:
		return nil, 0, fmt.Errorf("value: unknown binary tag %d", b[0])
	}
}

// AppendString appends a uvarint length-prefixed string.
func AppendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// AppendBytes appends a uvarint length-prefixed byte slice.
func AppendBytes(dst, p []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(p)))
	return append(dst, p...)
}

// ReadString reads a uvarint length-prefixed string.
func ReadString(b []byte) (string, int, error) {
	p, n, err := ReadBytes(b)
	return string(p), n, err
}

// ReadBytes reads a uvarint length-prefixed byte slice. The result aliases b.
func ReadBytes(b []byte) ([]byte, int, error) {
	l, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, 0, ErrShortBuffer
	}
	if l > uint64(len(b)-n) {
		return nil, 0, ErrShortBuffer
	}
	end := n + int(l)
	return b[n:end], end, nil
}
