package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/csms/internal/envelope"
	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/payload"
	"github.com/gaspardpetit/csms/internal/pending"
	"github.com/gaspardpetit/csms/internal/value"
)

// Conn is the dispatch state of one station link.
type Conn struct {
	e      *Engine
	info   notify.ConnInfo
	codec  envelope.Codec
	t      Transport
	table  *pending.Table
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	closed atomic.Bool
	wg     sync.WaitGroup
}

// Info returns the connection metadata attached to events.
func (c *Conn) Info() notify.ConnInfo { return c.info }

// StationID returns the identity of the peer station.
func (c *Conn) StationID() string { return c.info.StationID }

// Format returns the negotiated wire format.
func (c *Conn) Format() envelope.Format { return c.codec.Format() }

// Pending returns the number of calls awaiting a reply.
func (c *Conn) Pending() int { return c.table.Len() }

// Context is cancelled when the connection closes. Handlers receive it.
func (c *Conn) Context() context.Context { return c.ctx }

// Closed reports whether Close was called.
func (c *Conn) Closed() bool { return c.closed.Load() }

type callOptions struct {
	id          string
	timeout     time.Duration
	serializers payload.Serializers
}

// CallOption adjusts a single outbound call.
type CallOption func(*callOptions)

// WithMessageID sets the message id instead of a generated UUID.
func WithMessageID(id string) CallOption {
	return func(o *callOptions) { o.id = id }
}

// WithTimeout overrides the engine default timeout. Zero or less disables it.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithSerializers adds encode hooks on top of the engine's hooks for the action.
func WithSerializers(s payload.Serializers) CallOption {
	return func(o *callOptions) { o.serializers = s }
}

func (c *Conn) options(opts []CallOption) callOptions {
	o := callOptions{timeout: c.e.opts.DefaultTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// prepare runs the checks shared by confirmed and unconfirmed sends and
// returns the encoded payload and frame.
func (c *Conn) prepare(typ envelope.MessageType, action ocpp.Action, req any, o callOptions) (string, *value.Object, []byte, error) {
	if c.closed.Load() {
		return "", nil, nil, &CallError{Kind: KindConnectionClosed, Action: action}
	}
	role := c.e.opts.Role
	dir, ok := ocpp.Lookup(action)
	if !ok || !dir.SentBy(role) {
		return "", nil, nil, &CallError{Kind: KindNotSupported, Action: action,
			Description: fmt.Sprintf("%s is not sent by a %s", action, role)}
	}
	id := o.id
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > envelope.MaxIDLength {
		return "", nil, nil, &CallError{Kind: KindEncode, Action: action, MessageID: id,
			Err: fmt.Errorf("message id longer than %d characters", envelope.MaxIDLength)}
	}
	obj, err := c.e.reg.Encode(action, payload.Request, req, c.e.serializers(action, o.serializers))
	if err != nil {
		return "", nil, nil, encodeFailure(action, id, err)
	}
	m := envelope.NewCall(id, action, obj)
	if typ == envelope.Send {
		m = envelope.NewSend(id, action, obj)
	}
	frame, err := c.codec.Frame(m)
	if err != nil {
		return "", nil, nil, &CallError{Kind: KindEncode, Action: action, MessageID: id, Err: err}
	}
	return id, obj, frame, nil
}

func encodeFailure(action ocpp.Action, id string, err error) error {
	ce := &CallError{Kind: KindEncode, Action: action, MessageID: id, Err: err}
	var ve *payload.ValidationError
	if errors.As(err, &ve) {
		oe := ve.OCPPError()
		ce.Kind = KindValidation
		ce.Code = oe.Code
		ce.Description = oe.Description
	}
	return ce
}

// SendRequest sends a Call and waits for the reply. It returns the decoded
// response pointer, or a *CallError. A RequestSent event is published for
// every frame handed to the transport, delivered or not.
func (c *Conn) SendRequest(ctx context.Context, action ocpp.Action, req any, opts ...CallOption) (any, error) {
	o := c.options(opts)
	id, obj, frame, err := c.prepare(envelope.Call, action, req, o)
	if err != nil {
		return nil, err
	}
	h, err := c.table.Register(id, action, o.timeout)
	if err != nil {
		return nil, &CallError{Kind: KindDuplicate, Action: action, MessageID: id, Err: err}
	}
	if c.closed.Load() {
		c.table.Cancel(id, ErrConnectionClosed)
	}
	reqJSON := snapshot(obj)
	sendErr := c.t.Send(ctx, frame)
	c.e.publish(notify.Event{
		Phase:       notify.RequestSent,
		Direction:   direction(c.e.opts.Role),
		Action:      action,
		MessageID:   id,
		Timestamp:   h.SentAt,
		Conn:        c.info,
		Request:     notify.Some(req),
		RequestJSON: reqJSON,
		Delivery:    notify.Some(notify.DeliveryOf(sendErr)),
	})
	switch {
	case sendErr != nil && ctx.Err() != nil:
		c.table.Cancel(id, ctx.Err())
	case sendErr != nil:
		c.log.Warn().Err(sendErr).Str("action", string(action)).Str("message_id", id).Msg("request not delivered")
		c.table.Fail(id, sendErr)
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		c.table.Cancel(id, ctx.Err())
		<-h.Done()
	}
	return c.settle(h, req, reqJSON)
}

// Call is SendRequest with the response asserted to *Resp.
func Call[Resp any](ctx context.Context, c *Conn, action ocpp.Action, req any, opts ...CallOption) (*Resp, error) {
	v, err := c.SendRequest(ctx, action, req, opts...)
	if err != nil {
		return nil, err
	}
	resp, ok := v.(*Resp)
	if !ok {
		return nil, fmt.Errorf("dispatch: %s response is %T, not %T", action, v, resp)
	}
	return resp, nil
}

// SendUnconfirmed sends a Send frame, which the peer never answers.
func (c *Conn) SendUnconfirmed(ctx context.Context, action ocpp.Action, req any, opts ...CallOption) error {
	o := c.options(opts)
	id, obj, frame, err := c.prepare(envelope.Send, action, req, o)
	if err != nil {
		return err
	}
	sendErr := c.t.Send(ctx, frame)
	c.e.publish(notify.Event{
		Phase:       notify.RequestSent,
		Direction:   direction(c.e.opts.Role),
		Action:      action,
		MessageID:   id,
		Timestamp:   time.Now(),
		Conn:        c.info,
		Request:     notify.Some(req),
		RequestJSON: snapshot(obj),
		Delivery:    notify.Some(notify.DeliveryOf(sendErr)),
	})
	if sendErr != nil {
		return &CallError{Kind: KindTransport, Action: action, MessageID: id, Err: sendErr}
	}
	return nil
}

func (c *Conn) settle(h *pending.Handle, req any, reqJSON json.RawMessage) (any, error) {
	out := h.Outcome()
	ce := &CallError{Action: h.Action, MessageID: h.ID}
	received := func() notify.Event {
		return notify.Event{
			Phase:       notify.ResponseReceived,
			Direction:   direction(c.e.opts.Role),
			Action:      h.Action,
			MessageID:   h.ID,
			Timestamp:   out.At,
			Conn:        c.info,
			Request:     notify.Some(req),
			RequestJSON: reqJSON,
			Runtime:     notify.Some(h.Elapsed()),
		}
	}

	switch out.State {
	case pending.Answered:
		resp, err := c.e.reg.Decode(h.Action, payload.Response, out.Message.Payload, c.e.parsers(h.Action))
		ev := received()
		ev.ResponseJSON = snapshot(out.Message.Payload)
		if err == nil {
			ev.Response = notify.Some(resp)
		}
		c.e.publish(ev)
		if err != nil {
			c.log.Warn().Err(err).Str("action", string(h.Action)).Str("message_id", h.ID).Msg("invalid response")
			c.rejectResponse(h.ID, err)
			ce.Kind = KindValidation
			ce.Err = err
			var ve *payload.ValidationError
			if errors.As(err, &ve) {
				oe := ve.OCPPError()
				ce.Code = oe.Code
				ce.Description = oe.Description
			}
			return nil, ce
		}
		return resp, nil
	case pending.Rejected:
		m := out.Message
		ev := received()
		ev.Error = &notify.ErrorInfo{Code: m.ErrorCode, Description: m.ErrorDescription, Details: m.ErrorDetails}
		c.e.publish(ev)
		ce.Kind = KindRemote
		ce.Code = m.ErrorCode
		ce.Description = m.ErrorDescription
		ce.Details = m.ErrorDetails
	case pending.TimedOut:
		ce.Kind = KindTimeout
	case pending.Cancelled:
		if errors.Is(out.Err, ErrConnectionClosed) {
			ce.Kind = KindConnectionClosed
		} else {
			ce.Kind = KindCancelled
			ce.Err = out.Err
		}
	default:
		ce.Kind = KindTransport
		ce.Err = out.Err
	}
	return nil, ce
}

// rejectResponse tells an OCPP 2.1 peer that its CallResult was unusable.
// Earlier protocol versions have no frame for this.
func (c *Conn) rejectResponse(id string, err error) {
	if !strings.HasPrefix(c.info.Subprotocol, "ocpp2.1") {
		return
	}
	oe := ocpp.NewError(ocpp.FormationViolation, "%v", err)
	var ve *payload.ValidationError
	if errors.As(err, &ve) {
		oe = ve.OCPPError()
	}
	m := envelope.ErrorFrom(id, oe)
	m.Type = envelope.CallResultError
	if serr := c.reply(m); serr != nil {
		c.log.Debug().Err(serr).Str("message_id", id).Msg("CallResultError not delivered")
	}
}

// Receive handles one frame read from the peer. Requests are served on their
// own goroutine so Receive returns without waiting on handlers.
func (c *Conn) Receive(frame []byte) {
	if c.closed.Load() {
		return
	}
	msg, err := c.codec.Parse(frame)
	if err != nil {
		c.malformed(frame, err)
		return
	}
	switch msg.Type {
	case envelope.Call, envelope.Send:
		c.serve(msg)
	case envelope.CallResult, envelope.CallError:
		if !c.table.Complete(msg.ID, pending.Answer(msg)) {
			c.log.Warn().Str("message_id", msg.ID).Str("type", msg.Type.String()).Msg("reply for unknown message id dropped")
			c.e.diagnose(notify.Diagnostic{
				Kind:      notify.ProtocolViolation,
				Conn:      c.info,
				MessageID: msg.ID,
				Reason:    "no pending call with this message id",
				Raw:       frame,
				Timestamp: time.Now(),
			})
		}
	case envelope.CallResultError:
		c.log.Warn().Str("message_id", msg.ID).Str("code", string(msg.ErrorCode)).Str("description", msg.ErrorDescription).
			Msg("peer rejected our response")
		c.e.diagnose(notify.Diagnostic{
			Kind:      notify.PeerRejectedResponse,
			Conn:      c.info,
			MessageID: msg.ID,
			Reason:    fmt.Sprintf("%s: %s", msg.ErrorCode, msg.ErrorDescription),
			Raw:       frame,
			Timestamp: time.Now(),
		})
	}
}

func (c *Conn) malformed(frame []byte, err error) {
	c.log.Warn().Err(err).Int("bytes", len(frame)).Msg("malformed frame dropped")
	d := notify.Diagnostic{Kind: notify.FormatError, Conn: c.info, Reason: err.Error(), Raw: frame, Timestamp: time.Now()}
	var fe *envelope.FormatError
	if errors.As(err, &fe) {
		d.Reason = fe.Reason
		d.MessageID = fe.MessageID
	}
	c.e.diagnose(d)

	if !c.e.opts.ReplyToMalformed || fe == nil || fe.MessageID == "" {
		return
	}
	var code ocpp.ErrorCode
	switch {
	case !fe.Type.Valid():
		code = ocpp.MessageTypeNotSupported
	case fe.Type == envelope.Call:
		code = ocpp.FormationViolation
	default:
		return
	}
	if serr := c.reply(envelope.ErrorFrom(fe.MessageID, ocpp.NewError(code, "%s", fe.Reason))); serr != nil {
		c.log.Debug().Err(serr).Msg("error reply not delivered")
	}
}

func (c *Conn) serve(msg envelope.Message) {
	c.wg.Add(1)
	var done func()
	if c.e.opts.Inflight != nil {
		done = c.e.opts.Inflight.Track()
	}
	go func() {
		defer c.wg.Done()
		if done != nil {
			defer done()
		}
		c.handle(msg)
	}()
}

func (c *Conn) handle(msg envelope.Message) {
	start := time.Now()
	dir := direction(c.e.opts.Role.Peer())
	reqJSON := snapshot(msg.Payload)
	req, oerr := c.decodeRequest(msg)
	var reqOpt notify.Option[any]
	if oerr == nil {
		reqOpt = notify.Some(req)
	}
	c.e.publish(notify.Event{
		Phase:       notify.RequestReceived,
		Direction:   dir,
		Action:      msg.Action,
		MessageID:   msg.ID,
		Timestamp:   start,
		Conn:        c.info,
		Request:     reqOpt,
		RequestJSON: reqJSON,
	})

	var resp any
	var obj *value.Object
	if oerr == nil {
		resp, obj, oerr = c.invoke(msg, req)
	}
	if msg.Type == envelope.Send {
		if oerr != nil {
			c.log.Warn().Str("action", string(msg.Action)).Str("message_id", msg.ID).Str("code", string(oerr.Code)).
				Msg(oerr.Description)
		}
		return
	}

	reply := envelope.NewCallResult(msg.ID, obj)
	if oerr != nil {
		reply = envelope.ErrorFrom(msg.ID, oerr)
	}
	sendErr := c.reply(reply)
	if sendErr != nil {
		c.log.Warn().Err(sendErr).Str("action", string(msg.Action)).Str("message_id", msg.ID).Msg("reply not delivered")
	}
	now := time.Now()
	ev := notify.Event{
		Phase:       notify.ResponseSent,
		Direction:   dir,
		Action:      msg.Action,
		MessageID:   msg.ID,
		Timestamp:   now,
		Conn:        c.info,
		Request:     reqOpt,
		RequestJSON: reqJSON,
		Runtime:     notify.Some(now.Sub(start)),
		Delivery:    notify.Some(notify.DeliveryOf(sendErr)),
	}
	if oerr != nil {
		ev.Error = &notify.ErrorInfo{Code: oerr.Code, Description: oerr.Description, Details: oerr.Details}
	} else {
		ev.Response = notify.Some(resp)
		ev.ResponseJSON = snapshot(obj)
	}
	c.e.publish(ev)
}

func (c *Conn) decodeRequest(msg envelope.Message) (any, *ocpp.Error) {
	peer := c.e.opts.Role.Peer()
	dir, ok := ocpp.Lookup(msg.Action)
	if !ok {
		return nil, ocpp.NewError(ocpp.NotImplemented, "unknown action %s", msg.Action)
	}
	if !dir.SentBy(peer) {
		return nil, ocpp.NewError(ocpp.NotSupported, "%s is not sent by a %s", msg.Action, peer)
	}
	req, err := c.e.reg.Decode(msg.Action, payload.Request, msg.Payload, c.e.parsers(msg.Action))
	if err != nil {
		var ve *payload.ValidationError
		switch {
		case errors.As(err, &ve):
			return nil, ve.OCPPError()
		case errors.Is(err, payload.ErrUnknownAction):
			return nil, ocpp.NewError(ocpp.NotImplemented, "%s is not supported", msg.Action)
		}
		return nil, ocpp.NewError(ocpp.FormationViolation, "%v", err)
	}
	return req, nil
}

func (c *Conn) invoke(msg envelope.Message, req any) (any, *value.Object, *ocpp.Error) {
	h := c.e.handler(msg.Action)
	if h == nil {
		return nil, nil, ocpp.NewError(ocpp.NotImplemented, "no handler for %s", msg.Action)
	}
	resp, err := c.call(h, req)
	if err != nil {
		var oe *ocpp.Error
		if errors.As(err, &oe) {
			return nil, nil, oe
		}
		c.log.Error().Err(err).Str("action", string(msg.Action)).Str("message_id", msg.ID).Msg("handler failed")
		return nil, nil, ocpp.NewError(ocpp.InternalError, "%v", err)
	}
	if msg.Type == envelope.Send {
		return resp, nil, nil
	}
	if resp == nil {
		return nil, nil, ocpp.NewError(ocpp.InternalError, "handler for %s returned no response", msg.Action)
	}
	obj, err := c.e.reg.Encode(msg.Action, payload.Response, resp, c.e.serializers(msg.Action, nil))
	if err != nil {
		c.log.Error().Err(err).Str("action", string(msg.Action)).Str("message_id", msg.ID).Msg("response encoding failed")
		return nil, nil, ocpp.NewError(ocpp.InternalError, "response encoding failed")
	}
	return resp, obj, nil
}

func (c *Conn) call(h HandlerFunc, req any) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("handler panicked")
			resp, err = nil, ocpp.NewError(ocpp.InternalError, "handler panicked")
		}
	}()
	return h(c.ctx, c, req)
}

func (c *Conn) reply(m envelope.Message) error {
	frame, err := c.codec.Frame(m)
	if err != nil {
		return err
	}
	return c.t.Send(c.ctx, frame)
}

// Close cancels every pending call with ErrConnectionClosed and detaches the
// connection from the engine. Handlers already running see their context
// cancelled. Calling Close again has no effect.
func (c *Conn) Close(reason error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()
	drained := c.table.DrainAll(ErrConnectionClosed)
	c.e.remove(c)
	ev := c.log.Info().Int("drained", len(drained))
	if reason != nil {
		ev = ev.Err(reason)
	}
	ev.Msg("connection closed")
}

// Wait blocks until handlers started by Receive have returned.
func (c *Conn) Wait() { c.wg.Wait() }

func snapshot(obj *value.Object) json.RawMessage {
	b, err := value.Marshal(obj)
	if err != nil {
		return nil
	}
	return b
}
