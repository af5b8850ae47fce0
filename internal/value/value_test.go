package value

import (
	"encoding/json"
	"testing"
)

func TestParsePreservesOrder(t *testing.T) {
	obj, err := ParseObject([]byte(`{"z":1,"a":{"y":"x\"q","b":[true,null,2.50]},"m":false}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := Keys(obj); len(got) != 3 || got[0] != "z" || got[1] != "a" || got[2] != "m" {
		t.Fatalf("unexpected key order %v", got)
	}
	inner, _ := obj.Get("a")
	in := inner.(*Object)
	if got := Keys(in); got[0] != "y" || got[1] != "b" {
		t.Fatalf("unexpected nested order %v", got)
	}
	y, _ := in.Get("y")
	if y != `x"q` {
		t.Fatalf("escape not decoded: %q", y)
	}
	b, err := Marshal(obj)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"z":1,"a":{"y":"x\"q","b":[true,null,2.50]},"m":false}` {
		t.Fatalf("unexpected json %s", b)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	if _, err := Parse([]byte(`{"a":`)); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseObject([]byte(`[1]`)); err != ErrNotObject {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	src, err := Parse([]byte(`{"s":"héllo","n":-12.5e3,"arr":[{"k":null},[],{}],"t":true,"f":false}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := AppendBinary(nil, src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n, err := ReadBinary(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(b) {
		t.Fatalf("consumed %d of %d", n, len(b))
	}
	if !Equal(src, got) {
		t.Fatalf("binary round trip mismatch")
	}
	if _, _, err := ReadBinary(b[:len(b)-1]); err == nil {
		t.Fatalf("expected error on truncated input")
	}
}

func TestCloneIsDeep(t *testing.T) {
	obj, _ := ParseObject([]byte(`{"a":{"b":1}}`))
	cp := Clone(obj).(*Object)
	inner, _ := cp.Get("a")
	inner.(*Object).Set("b", json.Number("2"))
	orig, _ := obj.Get("a")
	if v, _ := orig.(*Object).Get("b"); v != json.Number("1") {
		t.Fatalf("clone shares state: %v", v)
	}
}
