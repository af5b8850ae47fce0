package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaspardpetit/csms/internal/config"
	"github.com/gaspardpetit/csms/internal/dispatch"
	"github.com/gaspardpetit/csms/internal/eventlog"
	"github.com/gaspardpetit/csms/internal/messages"
	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/serverstate"
	"github.com/gaspardpetit/csms/internal/stations"
	"github.com/gaspardpetit/csms/internal/transport"
)

type testServer struct {
	url      string
	hub      *notify.Hub
	stations *stations.Registry
	state    *serverstate.Tracker
}

func newServer(t *testing.T, cfg config.ServerConfig) *testServer {
	t.Helper()
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	hub := notify.NewHub(0)
	t.Cleanup(hub.Close)
	log, err := eventlog.Open(eventlog.Options{})
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	unsub := log.Attach(hub)
	t.Cleanup(unsub)

	ts := &testServer{
		hub:      hub,
		stations: stations.NewRegistry(nil),
		state:    serverstate.NewTracker(serverstate.NewMemoryStore()),
	}
	ts.state.Set(serverstate.Ready)
	engine := dispatch.New(messages.NewRegistry(), hub, dispatch.Options{Role: ocpp.RoleCSMS})
	h := New(cfg, Deps{
		Engine:   engine,
		Stations: ts.stations,
		Hub:      hub,
		Events:   log,
		State:    ts.state,
		Registry: prometheus.NewRegistry(),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	ts.url = srv.URL
	return ts
}

// connect dials a station that accepts Reset, never answers ClearCache in
// time and refuses ChangeAvailability.
func (ts *testServer) connect(t *testing.T, id string) *dispatch.Conn {
	t.Helper()
	e := dispatch.New(messages.NewRegistry(), nil, dispatch.Options{Role: ocpp.RoleChargingStation})
	dispatch.Handle(e, ocpp.Reset, func(ctx context.Context, c *dispatch.Conn, req *messages.ResetRequest) (*messages.ResetResponse, error) {
		return &messages.ResetResponse{Status: "Accepted"}, nil
	})
	dispatch.Handle(e, ocpp.ClearCache, func(ctx context.Context, c *dispatch.Conn, req *messages.ClearCacheRequest) (*messages.ClearCacheResponse, error) {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return &messages.ClearCacheResponse{Status: "Accepted"}, nil
	})
	dispatch.Handle(e, ocpp.ChangeAvailability, func(ctx context.Context, c *dispatch.Conn, req *messages.ChangeAvailabilityRequest) (*messages.ChangeAvailabilityResponse, error) {
		return nil, ocpp.NewError(ocpp.SecurityError, "maintenance lock")
	})
	wsURL := "ws" + strings.TrimPrefix(ts.url, "http") + "/ocpp"
	c, err := transport.Dial(context.Background(), wsURL, id, e, transport.DialOptions{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close(nil) })
	waitFor(t, "station attach", func() bool { _, ok := ts.stations.Conn(id); return ok })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func do(t *testing.T, method, url, body string, hdr ...string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func TestHealthz(t *testing.T) {
	ts := newServer(t, config.ServerConfig{})
	resp, body := do(t, "GET", ts.url+"/healthz", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"ready"`) {
		t.Fatalf("ready: %d %s", resp.StatusCode, body)
	}
	ts.state.StartDrain()
	resp, body = do(t, "GET", ts.url+"/healthz", "")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(string(body), `"status":"draining"`) {
		t.Fatalf("draining: %d %s", resp.StatusCode, body)
	}
	// Stations are refused while draining.
	wsURL := "ws" + strings.TrimPrefix(ts.url, "http") + "/ocpp"
	e := dispatch.New(messages.NewRegistry(), nil, dispatch.Options{Role: ocpp.RoleChargingStation})
	if _, err := transport.Dial(context.Background(), wsURL, "CS-1", e, transport.DialOptions{}); err == nil {
		t.Fatalf("station accepted while draining")
	}
}

func TestMetricsEndpointDefaultPort(t *testing.T) {
	ts := newServer(t, config.ServerConfig{Port: 8080, MetricsAddr: ":8080"})
	resp, body := do(t, "GET", ts.url+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "csms_stations_connected") {
		t.Fatalf("missing station gauge:\n%s", body)
	}
}

func TestMetricsEndpointSeparatePort(t *testing.T) {
	ts := newServer(t, config.ServerConfig{Port: 8080, MetricsAddr: ":9090"})
	resp, _ := do(t, "GET", ts.url+"/metrics", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCORSAllowedOrigins(t *testing.T) {
	ts := newServer(t, config.ServerConfig{AllowedOrigins: []string{"https://example.com"}})
	resp, _ := do(t, "GET", ts.url+"/healthz", "", "Origin", "https://example.com")
	if ao := resp.Header.Get("Access-Control-Allow-Origin"); ao != "https://example.com" {
		t.Fatalf("expected allowed origin header, got %q", ao)
	}
	resp, _ = do(t, "GET", ts.url+"/healthz", "", "Origin", "https://evil.com")
	if ao := resp.Header.Get("Access-Control-Allow-Origin"); ao != "" {
		t.Fatalf("expected no allowed origin header, got %q", ao)
	}
}

func TestAPIKey(t *testing.T) {
	ts := newServer(t, config.ServerConfig{APIKey: "k3y"})
	if resp, _ := do(t, "GET", ts.url+"/api/stations", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: %d", resp.StatusCode)
	}
	if resp, _ := do(t, "GET", ts.url+"/api/stations", "", "Authorization", "Bearer nope"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", resp.StatusCode)
	}
	if resp, _ := do(t, "GET", ts.url+"/api/stations", "", "Authorization", "Bearer k3y"); resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token: %d", resp.StatusCode)
	}
	if resp, _ := do(t, "GET", ts.url+"/api/openapi.json", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("openapi should be public: %d", resp.StatusCode)
	}
}

func TestStations(t *testing.T) {
	ts := newServer(t, config.ServerConfig{})
	ts.connect(t, "CS-1")

	resp, body := do(t, "GET", ts.url+"/api/stations", "")
	var recs []stations.Record
	if err := json.Unmarshal(body, &recs); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s %v", resp.StatusCode, body, err)
	}
	if len(recs) != 1 || recs[0].ID != "CS-1" || !recs[0].Connected {
		t.Fatalf("records = %+v", recs)
	}

	resp, body = do(t, "GET", ts.url+"/api/stations?format=text", "")
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") || !strings.Contains(string(body), "CS-1") {
		t.Fatalf("text table: %q\n%s", resp.Header.Get("Content-Type"), body)
	}

	if resp, _ := do(t, "GET", ts.url+"/api/stations/CS-1", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d", resp.StatusCode)
	}
	if resp, _ := do(t, "GET", ts.url+"/api/stations/CS-9", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown: %d", resp.StatusCode)
	}
}

func TestCallStation(t *testing.T) {
	ts := newServer(t, config.ServerConfig{CallTimeout: 2 * time.Second})
	ts.connect(t, "CS-1")
	call := ts.url + "/api/stations/CS-1/call/"

	tests := []struct {
		name   string
		url    string
		body   string
		status int
		want   string
	}{
		{"accepted", call + "Reset", `{"type":"Immediate"}`, http.StatusOK, `"status":"Accepted"`},
		{"invalid payload", call + "Reset", `{"type":"Sometime"}`, http.StatusBadRequest, `"code":"PropertyConstraintViolation"`},
		{"missing field", call + "Reset", ``, http.StatusBadRequest, `"code":"OccurrenceConstraintViolation"`},
		{"wrong direction", call + "BootNotification", `{"reason":"PowerUp","chargingStation":{"model":"m","vendorName":"v"}}`, http.StatusBadRequest, "not supported"},
		{"unknown action", call + "Teleport", `{}`, http.StatusNotFound, "unknown action"},
		{"unknown station", ts.url + "/api/stations/CS-9/call/Reset", `{"type":"Immediate"}`, http.StatusNotFound, "not connected"},
		{"remote error", call + "ChangeAvailability", `{"operationalStatus":"Inoperative"}`, http.StatusBadGateway, `"code":"SecurityError"`},
		{"timeout", call + "ClearCache?timeout=50ms", `{}`, http.StatusGatewayTimeout, "timeout"},
		{"bad timeout", call + "ClearCache?timeout=soon", `{}`, http.StatusBadRequest, "invalid timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, "POST", tt.url, tt.body, "Content-Type", "application/json")
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d want %d: %s", resp.StatusCode, tt.status, body)
			}
			if !strings.Contains(string(body), tt.want) {
				t.Fatalf("body %s does not contain %s", body, tt.want)
			}
		})
	}
}

func TestRecentEvents(t *testing.T) {
	ts := newServer(t, config.ServerConfig{})
	ts.connect(t, "CS-1")
	if resp, body := do(t, "POST", ts.url+"/api/stations/CS-1/call/Reset", `{"type":"OnIdle"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("call: %d %s", resp.StatusCode, body)
	}

	var entries []eventlog.Entry
	waitFor(t, "logged events", func() bool {
		_, body := do(t, "GET", ts.url+"/api/events?station=CS-1&action=Reset", "")
		entries = nil
		_ = json.Unmarshal(body, &entries)
		return len(entries) == 2
	})
	if entries[0].Phase != notify.ResponseReceived || entries[1].Phase != notify.RequestSent {
		t.Fatalf("phases = %v, %v", entries[0].Phase, entries[1].Phase)
	}
	if entries[0].Seq <= entries[1].Seq {
		t.Fatalf("not newest first: %d, %d", entries[0].Seq, entries[1].Seq)
	}

	_, body := do(t, "GET", ts.url+"/api/events?limit=1", "")
	entries = nil
	if err := json.Unmarshal(body, &entries); err != nil || len(entries) != 1 {
		t.Fatalf("limit: %s %v", body, err)
	}
	if resp, _ := do(t, "GET", ts.url+"/api/events?limit=-1", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative limit: %d", resp.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	ts := newServer(t, config.ServerConfig{})
	conn := ts.connect(t, "CS-1")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.url+"/api/events/stream?station=CS-1&phase=request_received", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	rd := bufio.NewReader(resp.Body)
	if line, _ := rd.ReadString('\n'); !strings.HasPrefix(line, ": subscribed") {
		t.Fatalf("first line %q", line)
	}

	if _, err := dispatch.Call[messages.HeartbeatResponse](ctx, conn, ocpp.Heartbeat, &messages.HeartbeatRequest{}); err != nil {
		// No Heartbeat handler is installed; the exchange still produces
		// a RequestReceived event on the CSMS side.
		var ce *dispatch.CallError
		if !errors.As(err, &ce) || ce.Code != ocpp.NotImplemented {
			t.Fatalf("heartbeat: %v", err)
		}
	}

	var event, data string
	for event == "" || data == "" {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	if event != "request_received" {
		t.Fatalf("event = %q", event)
	}
	var ev notify.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if ev.Action != ocpp.Heartbeat || ev.Conn.StationID != "CS-1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	ts := newServer(t, config.ServerConfig{})
	resp, body := do(t, "GET", ts.url+"/api/openapi.json", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	doc, err := openapi3.NewLoader().LoadFromData(body)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, p := range []string{"/healthz", "/api/stations", "/api/stations/{id}/call/{action}", "/api/events/stream"} {
		if doc.Paths.Value(p) == nil {
			t.Fatalf("missing path %s", p)
		}
	}
	if op := doc.Paths.Value("/api/stations/{id}/call/{action}").Post; op == nil || op.Responses.Value("504") == nil {
		t.Fatalf("call operation incomplete")
	}
}
