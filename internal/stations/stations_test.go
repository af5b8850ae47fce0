package stations

import (
	"bytes"
	"context"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/gaspardpetit/csms/internal/dispatch"
	"github.com/gaspardpetit/csms/internal/messages"
	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/redisx"
)

func open(e *dispatch.Engine, id string) *dispatch.Conn {
	return e.Open(notify.ConnInfo{StationID: id, Remote: "10.0.0.7:5000", Subprotocol: "ocpp2.1"},
		dispatch.TransportFunc(func(context.Context, []byte) error { return nil }))
}

func TestAttachSupersedes(t *testing.T) {
	ctx := context.Background()
	e := dispatch.New(messages.NewRegistry(), nil, dispatch.Options{Role: ocpp.RoleCSMS})
	r := NewRegistry(nil)

	first := open(e, "CS-1")
	r.Attach(ctx, first)
	second := open(e, "CS-1")
	r.Attach(ctx, second)
	if !first.Closed() {
		t.Fatalf("superseded connection still open")
	}
	if c, ok := r.Conn("CS-1"); !ok || c != second {
		t.Fatalf("live connection is not the newest")
	}

	// The old connection's teardown must not detach the new one.
	r.Detach(ctx, first)
	if r.Connected() != 1 {
		t.Fatalf("connected = %d", r.Connected())
	}
	rec, ok, err := r.Get(ctx, "CS-1")
	if err != nil || !ok || !rec.Connected || rec.Subprotocol != "ocpp2.1" {
		t.Fatalf("record = %+v ok=%v err=%v", rec, ok, err)
	}
	if err := r.Forget(ctx, "CS-1"); err == nil {
		t.Fatalf("forget of a connected station succeeded")
	}

	r.Detach(ctx, second)
	if rec, _, _ := r.Get(ctx, "CS-1"); rec.Connected {
		t.Fatalf("record still connected after detach")
	}
	if err := r.Forget(ctx, "CS-1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, ok, _ := r.Get(ctx, "CS-1"); ok {
		t.Fatalf("record survived forget")
	}
}

func TestCloseAll(t *testing.T) {
	ctx := context.Background()
	e := dispatch.New(messages.NewRegistry(), nil, dispatch.Options{Role: ocpp.RoleCSMS})
	r := NewRegistry(NewMemoryStore())
	a, b := open(e, "A"), open(e, "B")
	r.Attach(ctx, a)
	r.Attach(ctx, b)
	r.CloseAll(dispatch.ErrConnectionClosed)
	if !a.Closed() || !b.Closed() {
		t.Fatalf("connections not closed")
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := redisx.Connect(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	r := NewRegistry(NewRedisStore(client, ""))
	if err := r.Update(ctx, "CS-2", func(rec *Record) {
		rec.VendorName = "Acme"
		rec.Connectors = map[string]string{"1/1": "Available"}
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := r.Update(ctx, "CS-1", func(rec *Record) { rec.Model = "X1" }); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Another node reading the same hash.
	other := NewRedisStore(client, "csms:stations")
	recs, err := other.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "CS-1" || recs[1].Connectors["1/1"] != "Available" {
		t.Fatalf("records = %+v", recs)
	}
	if err := other.Delete(ctx, "CS-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := other.Get(ctx, "CS-1"); ok || err != nil {
		t.Fatalf("get after delete: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreCopiesConnectors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := Record{ID: "A", Connectors: map[string]string{"1/1": "Available"}}
	_ = s.Put(ctx, rec)
	rec.Connectors["1/1"] = "Faulted"
	got, _, _ := s.Get(ctx, "A")
	if got.Connectors["1/1"] != "Available" {
		t.Fatalf("store shares the caller's map")
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, []Record{
		{ID: "CS-1", VendorName: "Acme", Registration: "Accepted", Connected: true,
			Connectors: map[string]string{"1/2": "Occupied", "1/1": "Available"}},
		{ID: "CS-2"},
	})
	out := buf.String()
	for _, want := range []string{"STATION", "CS-1", "Acme", "1/1=Available 1/2=Occupied", "CS-2", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}
