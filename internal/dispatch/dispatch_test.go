package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gaspardpetit/csms/internal/envelope"
	"github.com/gaspardpetit/csms/internal/inflight"
	"github.com/gaspardpetit/csms/internal/messages"
	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/ocpp"
)

// wire records frames handed to a transport.
type wire struct {
	ch  chan []byte
	err error
}

func newWire() *wire { return &wire{ch: make(chan []byte, 64)} }

func (w *wire) Send(_ context.Context, b []byte) error {
	if w.err != nil {
		return w.err
	}
	w.ch <- append([]byte(nil), b...)
	return nil
}

func (w *wire) next(t *testing.T) string {
	t.Helper()
	select {
	case b := <-w.ch:
		return string(b)
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame sent")
	}
	return ""
}

func (w *wire) none(t *testing.T) {
	t.Helper()
	select {
	case b := <-w.ch:
		t.Fatalf("unexpected frame %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func events(t *testing.T, h *notify.Hub) <-chan notify.Event {
	t.Helper()
	ch := make(chan notify.Event, 64)
	t.Cleanup(h.Subscribe(notify.Filter{}, func(e notify.Event) { ch <- e }))
	return ch
}

func nextEvent(t *testing.T, ch <-chan notify.Event) notify.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("no event")
	}
	return notify.Event{}
}

func csmsConn(t *testing.T, opts Options) (*Engine, *Conn, *wire, *notify.Hub) {
	t.Helper()
	hub := notify.NewHub(64)
	t.Cleanup(hub.Close)
	opts.Role = ocpp.RoleCSMS
	e := New(messages.NewRegistry(), hub, opts)
	w := newWire()
	c := e.Open(notify.ConnInfo{StationID: "CS-1", Subprotocol: "ocpp2.1"}, w)
	t.Cleanup(func() { c.Close(nil) })
	return e, c, w, hub
}

// link connects a station engine and a CSMS engine back to back.
func link(t *testing.T) (station, csms *Conn, sHub, cHub *notify.Hub, csmsEngine *Engine) {
	t.Helper()
	sHub, cHub = notify.NewHub(64), notify.NewHub(64)
	t.Cleanup(sHub.Close)
	t.Cleanup(cHub.Close)
	reg := messages.NewRegistry()
	se := New(reg, sHub, Options{Role: ocpp.RoleChargingStation})
	csmsEngine = New(reg, cHub, Options{Role: ocpp.RoleCSMS})
	info := notify.ConnInfo{StationID: "CS-1", Subprotocol: "ocpp2.0.1"}
	station = se.Open(info, TransportFunc(func(_ context.Context, b []byte) error {
		csms.Receive(b)
		return nil
	}))
	csms = csmsEngine.Open(info, TransportFunc(func(_ context.Context, b []byte) error {
		station.Receive(b)
		return nil
	}))
	t.Cleanup(func() {
		station.Close(nil)
		csms.Close(nil)
	})
	return station, csms, sHub, cHub, csmsEngine
}

func TestHeartbeatRoundTrip(t *testing.T) {
	station, _, sHub, cHub, ce := link(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	Handle(ce, ocpp.Heartbeat, func(ctx context.Context, c *Conn, req *messages.HeartbeatRequest) (*messages.HeartbeatResponse, error) {
		return &messages.HeartbeatResponse{CurrentTime: ocpp.NewDateTime(now)}, nil
	})
	sEvents, cEvents := events(t, sHub), events(t, cHub)

	resp, err := Call[messages.HeartbeatResponse](context.Background(), station, ocpp.Heartbeat,
		&messages.HeartbeatRequest{}, WithMessageID("abc-1"))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !resp.CurrentTime.Equal(now) {
		t.Fatalf("currentTime = %v", resp.CurrentTime)
	}
	if station.Pending() != 0 {
		t.Fatalf("pending = %d", station.Pending())
	}

	sent := nextEvent(t, sEvents)
	if sent.Phase != notify.RequestSent || sent.MessageID != "abc-1" || string(sent.RequestJSON) != "{}" {
		t.Fatalf("unexpected sent event %+v", sent)
	}
	if d, ok := sent.Delivery.Get(); !ok || !d.OK {
		t.Fatalf("delivery = %+v", sent.Delivery)
	}
	got := nextEvent(t, sEvents)
	if got.Phase != notify.ResponseReceived || !got.Runtime.IsSome() || !got.Response.IsSome() {
		t.Fatalf("unexpected received event %+v", got)
	}
	if got.Direction != ocpp.FromStation {
		t.Fatalf("direction = %v", got.Direction)
	}

	in := nextEvent(t, cEvents)
	if in.Phase != notify.RequestReceived || in.Action != ocpp.Heartbeat || in.Delivery.IsSome() {
		t.Fatalf("unexpected request event %+v", in)
	}
	out := nextEvent(t, cEvents)
	if out.Phase != notify.ResponseSent || !strings.Contains(string(out.ResponseJSON), "2025-03-01T12:00:00Z") {
		t.Fatalf("unexpected response event %+v %s", out, out.ResponseJSON)
	}
}

func TestCallFrameOnWire(t *testing.T) {
	_, c, w, _ := csmsConn(t, Options{})
	go func() {
		_, _ = c.SendRequest(context.Background(), ocpp.Reset, &messages.ResetRequest{Type: messages.ResetOnIdle},
			WithMessageID("r-1"))
	}()
	if got := w.next(t); got != `[2,"r-1","Reset",{"type":"OnIdle"}]` {
		t.Fatalf("frame = %s", got)
	}
	c.Receive([]byte(`[3,"r-1",{"status":"Accepted"}]`))
}

func TestInboundErrors(t *testing.T) {
	e, c, w, hub := csmsConn(t, Options{})
	ch := events(t, hub)
	Handle(e, ocpp.BootNotification, func(ctx context.Context, c *Conn, req *messages.BootNotificationRequest) (*messages.BootNotificationResponse, error) {
		return nil, ocpp.NewError(ocpp.SecurityError, "station %s not allowed", c.StationID())
	})
	Handle(e, ocpp.Heartbeat, func(ctx context.Context, c *Conn, req *messages.HeartbeatRequest) (*messages.HeartbeatResponse, error) {
		panic("boom")
	})
	Handle(e, ocpp.StatusNotification, func(ctx context.Context, c *Conn, req *messages.StatusNotificationRequest) (*messages.StatusNotificationResponse, error) {
		return nil, errors.New("store offline")
	})
	boot := `{"chargingStation":{"model":"M","vendorName":"V"},"reason":"PowerUp"}`

	cases := []struct {
		frame string
		code  ocpp.ErrorCode
	}{
		{`[2,"u1","NoSuchAction",{}]`, ocpp.NotImplemented},
		{`[2,"u2","Reset",{"type":"Immediate"}]`, ocpp.NotSupported},
		{`[2,"u3","ClearedChargingLimit",{"chargingLimitSource":"EMS"}]`, ocpp.NotImplemented},
		{`[2,"u4","BootNotification",{"chargingStation":{"model":"M","vendorName":"V"}}]`, ocpp.OccurrenceConstraintViolation},
		{`[2,"u5","BootNotification",` + boot + `]`, ocpp.SecurityError},
		{`[2,"u6","Heartbeat",{}]`, ocpp.InternalError},
		{`[2,"u7","StatusNotification",{"timestamp":"2025-01-01T00:00:00Z","connectorStatus":"Available","evseId":1,"connectorId":1}]`, ocpp.InternalError},
	}
	for _, tc := range cases {
		c.Receive([]byte(tc.frame))
		got := w.next(t)
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(got), &arr); err != nil || len(arr) != 5 {
			t.Fatalf("%s: reply %s", tc.frame, got)
		}
		if string(arr[0]) != "4" || string(arr[2]) != strconv.Quote(string(tc.code)) {
			t.Fatalf("%s: want %s, got %s", tc.frame, tc.code, got)
		}
	}

	// An action without a handler is still reported as received and answered.
	var seen []notify.Event
	for len(seen) < 2 {
		if ev := nextEvent(t, ch); ev.MessageID == "u3" {
			seen = append(seen, ev)
		}
	}
	if seen[0].Phase != notify.RequestReceived || seen[0].Action != ocpp.ClearedChargingLimit {
		t.Fatalf("first event = %+v", seen[0])
	}
	out := seen[1]
	if out.Phase != notify.ResponseSent || out.Error == nil || out.Error.Code != ocpp.NotImplemented {
		t.Fatalf("second event = %+v", out)
	}
	if d, ok := out.Delivery.Get(); !ok || !d.OK {
		t.Fatalf("delivery = %+v", out.Delivery)
	}
}

func TestSendGetsNoReply(t *testing.T) {
	e, c, w, _ := csmsConn(t, Options{})
	got := make(chan struct{}, 1)
	Handle(e, ocpp.Heartbeat, func(ctx context.Context, c *Conn, req *messages.HeartbeatRequest) (*messages.HeartbeatResponse, error) {
		got <- struct{}{}
		return nil, nil
	})
	c.Receive([]byte(`[6,"s1","Heartbeat",{}]`))
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatalf("handler not called")
	}
	w.none(t)
}

func TestSendUnconfirmedFrame(t *testing.T) {
	hub := notify.NewHub(8)
	defer hub.Close()
	e := New(messages.NewRegistry(), hub, Options{Role: ocpp.RoleChargingStation})
	w := newWire()
	c := e.Open(notify.ConnInfo{StationID: "CS-1"}, w)
	defer c.Close(nil)
	if err := c.SendUnconfirmed(context.Background(), ocpp.Heartbeat, &messages.HeartbeatRequest{}, WithMessageID("s-1")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := w.next(t); got != `[6,"s-1","Heartbeat",{}]` {
		t.Fatalf("frame = %s", got)
	}
	if c.Pending() != 0 {
		t.Fatalf("unconfirmed send left a pending entry")
	}
}

func TestTimeoutEmitsNoReceivedEvent(t *testing.T) {
	_, c, w, hub := csmsConn(t, Options{DefaultTimeout: 20 * time.Millisecond})
	ch := events(t, hub)
	_, err := c.SendRequest(context.Background(), ocpp.ClearCache, &messages.ClearCacheRequest{})
	var ce *CallError
	if !errors.As(err, &ce) || ce.Kind != KindTimeout || !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v", err)
	}
	w.next(t)
	if e := nextEvent(t, ch); e.Phase != notify.RequestSent {
		t.Fatalf("phase = %v", e.Phase)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e.Phase)
	case <-time.After(50 * time.Millisecond):
	}
	if c.Pending() != 0 {
		t.Fatalf("timed out entry not removed")
	}
	// A late reply is a protocol violation, not a completion.
	diags := make(chan notify.Diagnostic, 1)
	defer hub.SubscribeDiagnostics(func(d notify.Diagnostic) { diags <- d })()
	c.Receive([]byte(`[3,"` + ce.MessageID + `",{"status":"Accepted"}]`))
	select {
	case d := <-diags:
		if d.Kind != notify.ProtocolViolation || d.MessageID != ce.MessageID {
			t.Fatalf("diagnostic = %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatalf("no diagnostic")
	}

	// The connection keeps correlating after the stray reply.
	errc := make(chan error, 1)
	go func() {
		_, err := c.SendRequest(context.Background(), ocpp.ClearCache, &messages.ClearCacheRequest{},
			WithMessageID("after-late"), WithTimeout(time.Second))
		errc <- err
	}()
	if got := w.next(t); !strings.Contains(got, `"after-late"`) {
		t.Fatalf("frame = %s", got)
	}
	c.Receive([]byte(`[3,"after-late",{"status":"Accepted"}]`))
	if err := <-errc; err != nil {
		t.Fatalf("call after late reply: %v", err)
	}
}

func TestCancelledContextBeforeSend(t *testing.T) {
	e, _, _, _ := csmsConn(t, Options{})
	c := e.Open(notify.ConnInfo{StationID: "CS-2"}, TransportFunc(func(ctx context.Context, _ []byte) error {
		return ctx.Err()
	}))
	defer c.Close(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SendRequest(ctx, ocpp.ClearCache, &messages.ClearCacheRequest{})
	var ce *CallError
	if !errors.As(err, &ce) || ce.Kind != KindCancelled || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d", c.Pending())
	}
}

func TestCancelOnlyAffectsItsCall(t *testing.T) {
	_, c, w, _ := csmsConn(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 2)
	go func() {
		_, err := c.SendRequest(ctx, ocpp.ClearCache, &messages.ClearCacheRequest{}, WithMessageID("a"))
		errc <- err
	}()
	w.next(t)
	var other any
	go func() {
		v, err := c.SendRequest(context.Background(), ocpp.ClearCache, &messages.ClearCacheRequest{}, WithMessageID("b"))
		other = v
		errc <- err
	}()
	w.next(t)
	cancel()
	if err := <-errc; !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled call err = %v", err)
	}
	if c.Pending() != 1 {
		t.Fatalf("pending = %d", c.Pending())
	}
	c.Receive([]byte(`[3,"b",{"status":"Accepted"}]`))
	if err := <-errc; err != nil {
		t.Fatalf("other call err = %v", err)
	}
	if r, ok := other.(*messages.ClearCacheResponse); !ok || r.Status != "Accepted" {
		t.Fatalf("other = %#v", other)
	}
}

func TestCloseDrainsPending(t *testing.T) {
	e, c, w, _ := csmsConn(t, Options{})
	const n = 3
	errc := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := c.SendRequest(context.Background(), ocpp.ClearCache, &messages.ClearCacheRequest{})
			errc <- err
		}()
		w.next(t)
	}
	if e.PendingCount() != n {
		t.Fatalf("pending = %d", e.PendingCount())
	}
	c.Close(errors.New("socket gone"))
	for i := 0; i < n; i++ {
		if err := <-errc; !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("err = %v", err)
		}
	}
	if e.Conns() != 0 {
		t.Fatalf("conn still registered")
	}
	_, err := c.SendRequest(context.Background(), ocpp.ClearCache, &messages.ClearCacheRequest{})
	var ce *CallError
	if !errors.As(err, &ce) || ce.Kind != KindConnectionClosed {
		t.Fatalf("send after close: %v", err)
	}
}

func TestRemoteError(t *testing.T) {
	_, c, w, hub := csmsConn(t, Options{})
	ch := events(t, hub)
	errc := make(chan error, 1)
	go func() {
		_, err := c.SendRequest(context.Background(), ocpp.ClearCache, &messages.ClearCacheRequest{}, WithMessageID("e-1"))
		errc <- err
	}()
	w.next(t)
	c.Receive([]byte(`[4,"e-1","NotSupported","no cache",{"hint":1}]`))
	err := <-errc
	var ce *CallError
	if !errors.As(err, &ce) || ce.Kind != KindRemote || ce.Code != ocpp.NotSupported || ce.Description != "no cache" {
		t.Fatalf("err = %v", err)
	}
	if oe, ok := ce.OCPPError(); !ok || oe.Code != ocpp.NotSupported {
		t.Fatalf("OCPPError = %v %v", oe, ok)
	}
	nextEvent(t, ch)
	got := nextEvent(t, ch)
	if got.Phase != notify.ResponseReceived || got.Error == nil || got.Error.Code != ocpp.NotSupported || got.Response.IsSome() {
		t.Fatalf("event = %+v", got)
	}
}

func TestInvalidResponseRejected(t *testing.T) {
	_, c, w, _ := csmsConn(t, Options{})
	errc := make(chan error, 1)
	go func() {
		_, err := c.SendRequest(context.Background(), ocpp.ClearCache, &messages.ClearCacheRequest{}, WithMessageID("v-1"))
		errc <- err
	}()
	w.next(t)
	c.Receive([]byte(`[3,"v-1",{"status":"Maybe"}]`))
	var ce *CallError
	if err := <-errc; !errors.As(err, &ce) || ce.Kind != KindValidation || ce.Code != ocpp.PropertyConstraintViolation {
		t.Fatalf("err = %v", err)
	}
	if got := w.next(t); !strings.HasPrefix(got, `[5,"v-1","PropertyConstraintViolation"`) {
		t.Fatalf("reply = %s", got)
	}
}

func TestOutboundChecks(t *testing.T) {
	_, c, w, hub := csmsConn(t, Options{})
	var ce *CallError
	_, err := c.SendRequest(context.Background(), ocpp.Heartbeat, &messages.HeartbeatRequest{})
	if !errors.As(err, &ce) || ce.Kind != KindNotSupported {
		t.Fatalf("heartbeat from csms: %v", err)
	}
	_, err = c.SendRequest(context.Background(), ocpp.Reset, &messages.ResetRequest{Type: "Later"})
	if !errors.As(err, &ce) || ce.Kind != KindValidation || ce.Code != ocpp.PropertyConstraintViolation {
		t.Fatalf("invalid reset: %v", err)
	}
	_, err = c.SendRequest(context.Background(), ocpp.Reset, &messages.HeartbeatRequest{})
	if !errors.As(err, &ce) || ce.Kind != KindEncode {
		t.Fatalf("wrong type: %v", err)
	}

	go func() {
		_, _ = c.SendRequest(context.Background(), ocpp.ClearCache, &messages.ClearCacheRequest{}, WithMessageID("dup"))
	}()
	w.next(t)
	_, err = c.SendRequest(context.Background(), ocpp.ClearCache, &messages.ClearCacheRequest{}, WithMessageID("dup"))
	if !errors.As(err, &ce) || ce.Kind != KindDuplicate {
		t.Fatalf("duplicate: %v", err)
	}

	ch := make(chan notify.Event, 4)
	defer hub.Subscribe(notify.Filter{Actions: []ocpp.Action{ocpp.Reset}}, func(e notify.Event) { ch <- e })()
	w.err = errors.New("broken pipe")
	_, err = c.SendRequest(context.Background(), ocpp.Reset, &messages.ResetRequest{Type: messages.ResetImmediate})
	if !errors.As(err, &ce) || ce.Kind != KindTransport {
		t.Fatalf("transport: %v", err)
	}
	sent := nextEvent(t, ch)
	if d, ok := sent.Delivery.Get(); !ok || d.OK || d.Error != "broken pipe" {
		t.Fatalf("delivery = %+v", sent.Delivery)
	}
}

func TestMalformedFrames(t *testing.T) {
	_, quiet, qw, hub := csmsConn(t, Options{})
	diags := make(chan notify.Diagnostic, 4)
	defer hub.SubscribeDiagnostics(func(d notify.Diagnostic) { diags <- d })()
	quiet.Receive([]byte(`[2,"m1","Heartbeat"]`))
	qw.none(t)
	select {
	case d := <-diags:
		if d.Kind != notify.FormatError || d.MessageID != "m1" {
			t.Fatalf("diagnostic = %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatalf("no diagnostic")
	}

	_, c, w, _ := csmsConn(t, Options{ReplyToMalformed: true})
	c.Receive([]byte(`[2,"m1","Heartbeat"]`))
	if got := w.next(t); !strings.HasPrefix(got, `[4,"m1","FormationViolation"`) {
		t.Fatalf("reply = %s", got)
	}
	c.Receive([]byte(`[9,"m2",{}]`))
	if got := w.next(t); !strings.HasPrefix(got, `[4,"m2","MessageTypeNotSupported"`) {
		t.Fatalf("reply = %s", got)
	}
	c.Receive([]byte(`[3,"m3"]`))
	c.Receive([]byte(`not json`))
	w.none(t)
}

func TestPeerRejectedResponse(t *testing.T) {
	_, c, w, hub := csmsConn(t, Options{})
	diags := make(chan notify.Diagnostic, 1)
	defer hub.SubscribeDiagnostics(func(d notify.Diagnostic) { diags <- d })()
	c.Receive([]byte(`[5,"x1","FormationViolation","bad currentTime",{}]`))
	select {
	case d := <-diags:
		if d.Kind != notify.PeerRejectedResponse || d.MessageID != "x1" {
			t.Fatalf("diagnostic = %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatalf("no diagnostic")
	}
	w.none(t)
}

func TestResponsesCorrelateOutOfOrder(t *testing.T) {
	_, c, w, _ := csmsConn(t, Options{})
	const n = 16
	type result struct {
		want string
		got  string
		err  error
	}
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		want := strconv.Quote(fmt.Sprintf("payload-%d", i))
		go func() {
			resp, err := Call[messages.DataTransferResponse](context.Background(), c, ocpp.DataTransfer,
				&messages.DataTransferRequest{VendorID: "acme", Data: json.RawMessage(want)})
			r := result{want: want, err: err}
			if resp != nil {
				r.got = string(resp.Data)
			}
			results <- r
		}()
	}
	codec := envelope.NewCodec(envelope.JSON)
	var calls []envelope.Message
	for i := 0; i < n; i++ {
		m, err := codec.Parse([]byte(w.next(t)))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		calls = append(calls, m)
	}
	for i := len(calls) - 1; i >= 0; i-- {
		data, _ := calls[i].Payload.Get("data")
		b, _ := json.Marshal(data)
		c.Receive([]byte(`[3,"` + calls[i].ID + `",{"status":"Accepted","data":` + string(b) + `}]`))
	}
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil || r.got != r.want {
			t.Fatalf("got %s want %s err %v", r.got, r.want, r.err)
		}
	}
}

func TestInflightTracksHandlers(t *testing.T) {
	var counter inflight.Counter
	e, c, w, _ := csmsConn(t, Options{Inflight: &counter})
	release := make(chan struct{})
	Handle(e, ocpp.Heartbeat, func(ctx context.Context, c *Conn, req *messages.HeartbeatRequest) (*messages.HeartbeatResponse, error) {
		<-release
		return &messages.HeartbeatResponse{CurrentTime: ocpp.Now()}, nil
	})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Receive([]byte(`[2,"h1","Heartbeat",{}]`))
	}()
	wg.Wait()
	if counter.Load() != 1 {
		t.Fatalf("inflight = %d", counter.Load())
	}
	close(release)
	w.next(t)
	c.Wait()
	if counter.Load() != 0 {
		t.Fatalf("inflight = %d after reply", counter.Load())
	}
}
