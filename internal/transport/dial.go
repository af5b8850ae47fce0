package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/gaspardpetit/csms/internal/dispatch"
	"github.com/gaspardpetit/csms/internal/notify"
)

// DialOptions configure Dial.
type DialOptions struct {
	Subprotocols []string
	Password     string
	NetworkPath  []string
	HTTPClient   *http.Client
}

// Dial connects to a CSMS as stationID and returns the dispatch connection.
// url is the CSMS base, e.g. ws://host:8080/ocpp. Frames are read on a
// background goroutine until the socket or the returned connection closes.
func Dial(ctx context.Context, url, stationID string, engine *dispatch.Engine, opts DialOptions) (*dispatch.Conn, error) {
	if len(opts.Subprotocols) == 0 {
		opts.Subprotocols = Subprotocols
	}
	hdr := http.Header{}
	if opts.Password != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(stationID + ":" + opts.Password))
		hdr.Set("Authorization", "Basic "+cred)
	}
	if len(opts.NetworkPath) > 0 {
		hdr.Set(NetworkPathHeader, strings.Join(opts.NetworkPath, ","))
	}
	ws, resp, err := websocket.Dial(ctx, strings.TrimSuffix(url, "/")+"/"+stationID, &websocket.DialOptions{
		HTTPClient:   opts.HTTPClient,
		HTTPHeader:   hdr,
		Subprotocols: opts.Subprotocols,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %s: %w", stationID, resp.Status, err)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", stationID, err)
	}
	if ws.Subprotocol() == "" {
		_ = ws.Close(websocket.StatusProtocolError, "no subprotocol")
		return nil, fmt.Errorf("transport: dial %s: server accepted no subprotocol", stationID)
	}
	ws.SetReadLimit(defaultReadLimit)
	info := notify.ConnInfo{StationID: stationID, Remote: url, NetworkPath: opts.NetworkPath, Subprotocol: ws.Subprotocol()}
	conn := engine.Open(info, newLink(ws, info.Subprotocol, defaultWriteTimeout))
	go func() {
		err := serve(context.Background(), ws, conn, 0, logx.Component("transport"))
		conn.Close(err)
		conn.Wait()
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()
	return conn, nil
}
