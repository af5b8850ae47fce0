// Package dispatch correlates OCPP calls with their replies and routes
// inbound requests to handlers. One Engine serves every connection; each
// connection owns its pending table so no lock is shared between stations.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/gaspardpetit/csms/internal/envelope"
	"github.com/gaspardpetit/csms/internal/inflight"
	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/payload"
	"github.com/gaspardpetit/csms/internal/pending"
)

// DefaultTimeout bounds an outbound call when no other timeout is set.
const DefaultTimeout = 30 * time.Second

// Transport delivers one encoded frame to the peer.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, frame []byte) error

func (f TransportFunc) Send(ctx context.Context, frame []byte) error { return f(ctx, frame) }

// HandlerFunc answers an inbound request. req is the decoded payload pointer;
// the returned value must be the registered response type and may be nil
// only for unconfirmed messages. Returning an *ocpp.Error selects the
// CallError code sent to the peer.
type HandlerFunc func(ctx context.Context, c *Conn, req any) (any, error)

// Options configure an Engine.
type Options struct {
	Role           ocpp.Role
	DefaultTimeout time.Duration
	// ReplyToMalformed answers unparseable Calls with FormationViolation when
	// their message id can be recovered. Otherwise they are only logged.
	ReplyToMalformed bool
	Serializers      map[ocpp.Action]payload.Serializers
	Parsers          map[ocpp.Action]payload.Parsers
	Inflight         *inflight.Counter
	Logger           *zerolog.Logger
}

// Engine holds the handler table shared by all connections.
type Engine struct {
	reg  *payload.Registry
	hub  *notify.Hub
	opts Options
	log  zerolog.Logger

	mu       sync.RWMutex
	handlers map[ocpp.Action]HandlerFunc
	conns    map[*Conn]struct{}
}

// New builds an Engine. hub may be nil when nobody observes traffic.
func New(reg *payload.Registry, hub *notify.Hub, opts Options) *Engine {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	e := &Engine{
		reg:      reg,
		hub:      hub,
		opts:     opts,
		handlers: make(map[ocpp.Action]HandlerFunc),
		conns:    make(map[*Conn]struct{}),
	}
	if opts.Logger != nil {
		e.log = *opts.Logger
	} else {
		e.log = logx.Component("dispatch")
	}
	return e
}

// Role returns the local role.
func (e *Engine) Role() ocpp.Role { return e.opts.Role }

// Registry returns the payload registry.
func (e *Engine) Registry() *payload.Registry { return e.reg }

// HandleFunc installs fn for inbound requests of action, replacing any
// previous handler.
func (e *Engine) HandleFunc(action ocpp.Action, fn HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn == nil {
		delete(e.handlers, action)
		return
	}
	e.handlers[action] = fn
}

// Handle installs a typed handler for action.
func Handle[Req, Resp any](e *Engine, action ocpp.Action, fn func(ctx context.Context, c *Conn, req *Req) (*Resp, error)) {
	e.HandleFunc(action, func(ctx context.Context, c *Conn, v any) (any, error) {
		req, ok := v.(*Req)
		if !ok {
			return nil, ocpp.NewError(ocpp.InternalError, "handler for %s expects %T, got %T", action, req, v)
		}
		resp, err := fn(ctx, c, req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, nil
		}
		return resp, nil
	})
}

func (e *Engine) handler(action ocpp.Action) HandlerFunc {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handlers[action]
}

// Open registers a connection. Frames read from the peer go to Conn.Receive;
// frames for the peer go to t.
func (e *Engine) Open(info notify.ConnInfo, t Transport) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		e:      e,
		info:   info,
		codec:  envelope.NewCodec(envelope.FormatForSubprotocol(info.Subprotocol)),
		t:      t,
		ctx:    ctx,
		cancel: cancel,
		log:    e.log.With().Str("station_id", info.StationID).Logger(),
	}
	c.table = pending.NewTable()
	e.mu.Lock()
	e.conns[c] = struct{}{}
	e.mu.Unlock()
	c.log.Debug().Str("subprotocol", info.Subprotocol).Str("format", c.codec.Format().String()).Msg("connection opened")
	return c
}

func (e *Engine) remove(c *Conn) {
	e.mu.Lock()
	delete(e.conns, c)
	e.mu.Unlock()
}

// Conns returns the number of open connections.
func (e *Engine) Conns() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.conns)
}

// PendingCount sums outstanding outbound calls over all connections.
func (e *Engine) PendingCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for c := range e.conns {
		n += c.table.Len()
	}
	return n
}

func (e *Engine) publish(ev notify.Event) {
	if e.hub != nil {
		e.hub.Publish(ev)
	}
}

func (e *Engine) diagnose(d notify.Diagnostic) {
	if e.hub != nil {
		e.hub.PublishDiagnostic(d)
	}
}

func (e *Engine) serializers(action ocpp.Action, extra payload.Serializers) payload.Serializers {
	return merge(e.opts.Serializers[action], extra)
}

func (e *Engine) parsers(action ocpp.Action) payload.Parsers {
	return e.opts.Parsers[action]
}

func merge[M ~map[string]payload.Hook](base, extra M) M {
	if len(extra) == 0 {
		return base
	}
	if len(base) == 0 {
		return extra
	}
	out := make(M, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// direction returns the direction flag for frames initiated by role.
func direction(role ocpp.Role) ocpp.Direction {
	if role == ocpp.RoleCSMS {
		return ocpp.FromCSMS
	}
	return ocpp.FromStation
}
