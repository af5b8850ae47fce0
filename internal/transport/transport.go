// Package transport carries OCPP frames over WebSocket. It accepts station
// connections for the CSMS and can dial out as a station.
package transport

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/gaspardpetit/csms/internal/dispatch"
	"github.com/gaspardpetit/csms/internal/envelope"
	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/stations"
)

// Subprotocols the CSMS negotiates, in the order it prefers them.
var Subprotocols = []string{"ocpp2.1", "ocpp2.1" + envelope.BinarySuffix, "ocpp2.0.1"}

// NetworkPathHeader lists the hops between the station and the CSMS,
// comma separated, when the station connects through a local controller.
const NetworkPathHeader = "X-OCPP-Network-Path"

// MaxStationIDLength is the longest identity accepted in the URL.
const MaxStationIDLength = 48

const (
	defaultReadLimit    = 1 << 20
	defaultWriteTimeout = 10 * time.Second
)

// Options configure Handler.
type Options struct {
	Subprotocols []string
	// Passwords enables HTTP Basic authentication when non-empty. The user
	// name must equal the station id.
	Passwords      map[string]string
	ReadLimit      int64
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	OriginPatterns []string
	// Draining reports whether new stations must be refused.
	Draining func() bool
	// OnConnect runs on its own goroutine after a station is attached.
	OnConnect func(ctx context.Context, c *dispatch.Conn)
}

// Handler upgrades GET /ocpp/{stationID} to an OCPP WebSocket.
type Handler struct {
	engine   *dispatch.Engine
	stations *stations.Registry
	opts     Options
	log      zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(engine *dispatch.Engine, reg *stations.Registry, opts Options) *Handler {
	if len(opts.Subprotocols) == 0 {
		opts.Subprotocols = Subprotocols
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Handler{engine: engine, stations: reg, opts: opts, log: logx.Component("transport")}
}

func stationID(r *http.Request) string {
	if id := chi.URLParam(r, "stationID"); id != "" {
		return id
	}
	p := strings.TrimSuffix(r.URL.Path, "/")
	return p[strings.LastIndexByte(p, '/')+1:]
}

func (h *Handler) authorized(r *http.Request, id string) bool {
	if len(h.opts.Passwords) == 0 {
		return true
	}
	user, pass, ok := r.BasicAuth()
	want, known := h.opts.Passwords[id]
	if !ok || !known || user != id {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(want)) == 1
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.opts.Draining != nil && h.opts.Draining() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	id := stationID(r)
	if id == "" || len(id) > MaxStationIDLength || id == "ocpp" {
		http.Error(w, "invalid station id", http.StatusBadRequest)
		return
	}
	if !h.authorized(r, id) {
		h.log.Warn().Str("station_id", id).Str("remote", r.RemoteAddr).Msg("station authentication failed")
		w.Header().Set("WWW-Authenticate", `Basic realm="ocpp"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   h.opts.Subprotocols,
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("ws accept")
		return
	}
	if ws.Subprotocol() == "" {
		h.log.Warn().Str("station_id", id).Strs("offered", r.Header.Values("Sec-WebSocket-Protocol")).Msg("no supported subprotocol")
		_ = ws.Close(websocket.StatusProtocolError, "unsupported subprotocol")
		return
	}
	ws.SetReadLimit(h.opts.ReadLimit)

	info := notify.ConnInfo{
		StationID:   id,
		Remote:      r.RemoteAddr,
		NetworkPath: networkPath(r.Header.Get(NetworkPathHeader)),
		Subprotocol: ws.Subprotocol(),
	}
	if a, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		info.Local = a.String()
	}
	conn := h.engine.Open(info, newLink(ws, info.Subprotocol, h.opts.WriteTimeout))
	ctx := r.Context()
	h.stations.Attach(ctx, conn)
	h.log.Info().Str("station_id", id).Str("subprotocol", info.Subprotocol).Str("remote", info.Remote).Msg("station connected")
	if h.opts.OnConnect != nil {
		go h.opts.OnConnect(conn.Context(), conn)
	}

	err = serve(ctx, ws, conn, h.opts.PingInterval, h.log)
	conn.Close(err)
	h.stations.Detach(context.WithoutCancel(ctx), conn)
	conn.Wait()
	_ = ws.Close(websocket.StatusNormalClosure, "")
}

func networkPath(v string) []string {
	if v == "" {
		return nil
	}
	var hops []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			hops = append(hops, p)
		}
	}
	return hops
}

// link adapts a WebSocket to dispatch.Transport.
type link struct {
	ws      *websocket.Conn
	typ     websocket.MessageType
	timeout time.Duration
}

func newLink(ws *websocket.Conn, subprotocol string, timeout time.Duration) *link {
	typ := websocket.MessageText
	if envelope.FormatForSubprotocol(subprotocol) == envelope.Binary {
		typ = websocket.MessageBinary
	}
	return &link{ws: ws, typ: typ, timeout: timeout}
}

func (l *link) Send(ctx context.Context, frame []byte) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.ws.Write(ctx, l.typ, frame)
}

// serve pumps frames into conn until the socket fails or conn is closed.
func serve(ctx context.Context, ws *websocket.Conn, conn *dispatch.Conn, ping time.Duration, log zerolog.Logger) error {
	stop := context.AfterFunc(conn.Context(), func() {
		_ = ws.Close(websocket.StatusGoingAway, "connection closed by server")
	})
	defer stop()

	if ping > 0 {
		go keepalive(conn.Context(), ws, ping, log.With().Str("station_id", conn.StationID()).Logger())
	}
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			logDisconnect(log, conn.StationID(), err)
			return err
		}
		conn.Receive(data)
	}
}

func keepalive(ctx context.Context, ws *websocket.Conn, every time.Duration, log zerolog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, every)
			err := ws.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Msg("ping failed; closing")
					_ = ws.Close(websocket.StatusPolicyViolation, "ping timeout")
				}
				return
			}
		}
	}
}

func logDisconnect(log zerolog.Logger, id string, err error) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		lvl := log.Info()
		if ce.Code != websocket.StatusNormalClosure && ce.Code != websocket.StatusGoingAway {
			lvl = log.Warn()
		}
		lvl.Str("station_id", id).Int("code", int(ce.Code)).Str("reason", ce.Reason).Msg("disconnected")
		return
	}
	log.Info().Err(err).Str("station_id", id).Msg("disconnected")
}
