package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/gaspardpetit/csms/internal/dispatch"
	"github.com/gaspardpetit/csms/internal/eventlog"
	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/payload"
	"github.com/gaspardpetit/csms/internal/serverstate"
	"github.com/gaspardpetit/csms/internal/stations"
)

const (
	maxCallBody     = 1 << 20
	streamBuffer    = 64
	streamKeepalive = 15 * time.Second
)

type api struct {
	engine      *dispatch.Engine
	stations    *stations.Registry
	hub         *notify.Hub
	events      *eventlog.Log
	state       *serverstate.Tracker
	callTimeout time.Duration
	eventLimit  int
}

type errorBody struct {
	Error       string         `json:"error"`
	Code        ocpp.ErrorCode `json:"code,omitempty"`
	Description string         `json:"description,omitempty"`
	Details     any            `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string, code ocpp.ErrorCode) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	st := a.state.Get()
	status := http.StatusOK
	if st.Status != serverstate.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"status": st.Status, "stations": a.stations.Connected()})
}

func (a *api) listStations(w http.ResponseWriter, r *http.Request) {
	recs, err := a.stations.List(r.Context())
	if err != nil {
		logx.Log.Error().Err(err).Msg("list stations")
		writeError(w, http.StatusInternalServerError, "station directory unavailable", "")
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		stations.WriteTable(w, recs)
		return
	}
	if recs == nil {
		recs = []stations.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *api) getStation(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := a.stations.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		logx.Log.Error().Err(err).Msg("get station")
		writeError(w, http.StatusInternalServerError, "station directory unavailable", "")
	case !ok:
		writeError(w, http.StatusNotFound, "unknown station", "")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// call sends the JSON body as a CSMS request to a connected station and
// returns the station's response payload.
func (a *api) call(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action, ok := ocpp.ParseAction(chi.URLParam(r, "action"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown action", ocpp.NotImplemented)
		return
	}
	conn, ok := a.stations.Conn(id)
	if !ok {
		writeError(w, http.StatusNotFound, "station not connected", "")
		return
	}
	timeout := a.callTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid timeout", "")
			return
		}
		timeout = d
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body", "")
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	req, err := a.engine.Registry().DecodeJSON(action, payload.Request, body, nil)
	if err != nil {
		var ve *payload.ValidationError
		if errors.As(err, &ve) {
			oe := ve.OCPPError()
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request", Code: oe.Code, Description: oe.Description})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	var opts []dispatch.CallOption
	if timeout > 0 {
		opts = append(opts, dispatch.WithTimeout(timeout))
	}
	resp, err := conn.SendRequest(r.Context(), action, req, opts...)
	if err != nil {
		callFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func callFailed(w http.ResponseWriter, err error) {
	var ce *dispatch.CallError
	if !errors.As(err, &ce) {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	body := errorBody{Error: ce.Kind.String(), Code: ce.Code, Description: ce.Description, Details: ce.Details}
	status := http.StatusBadGateway
	switch ce.Kind {
	case dispatch.KindTimeout, dispatch.KindCancelled:
		status = http.StatusGatewayTimeout
	case dispatch.KindNotSupported, dispatch.KindEncode, dispatch.KindDuplicate:
		status = http.StatusBadRequest
	case dispatch.KindValidation:
		// The request was checked before sending, so this is the response.
		body.Error = "invalid response"
	}
	writeJSON(w, status, body)
}

func (a *api) recentEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeError(w, http.StatusNotFound, "event log disabled", "")
		return
	}
	q := eventlog.Query{Limit: a.eventLimit, StationID: r.URL.Query().Get("station")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", "")
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before", "")
			return
		}
		q.Before = n
	}
	if v := r.URL.Query().Get("action"); v != "" {
		act, ok := ocpp.ParseAction(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown action", "")
			return
		}
		q.Action = act
	}
	entries, err := a.events.Recent(q)
	if err != nil {
		logx.Log.Error().Err(err).Msg("read event log")
		writeError(w, http.StatusInternalServerError, "event log unavailable", "")
		return
	}
	if entries == nil {
		entries = []eventlog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// streamEvents pushes live events as Server-Sent Events. The station,
// action and phase query parameters narrow the stream.
func (a *api) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	var f notify.Filter
	q := r.URL.Query()
	if v := q.Get("action"); v != "" {
		act, ok := ocpp.ParseAction(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown action", "")
			return
		}
		f.Actions = []ocpp.Action{act}
	}
	if v := q.Get("phase"); v != "" {
		p, ok := notify.ParsePhase(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown phase", "")
			return
		}
		f.Phases = []notify.Phase{p}
	}
	station := q.Get("station")

	ch := make(chan notify.Event, streamBuffer)
	unsub := a.hub.Subscribe(f, func(ev notify.Event) {
		if station != "" && ev.Conn.StationID != station {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if _, err := io.WriteString(w, ": subscribed\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(streamKeepalive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case ev := <-ch:
			b, err := json.Marshal(ev)
			if err != nil {
				logx.Log.Error().Err(err).Str("action", string(ev.Action)).Msg("encode event")
				continue
			}
			if _, err := io.WriteString(w, "event: "+ev.Phase.String()+"\ndata: "); err != nil {
				return
			}
			if _, err := w.Write(b); err != nil {
				return
			}
			if _, err := io.WriteString(w, "\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}
