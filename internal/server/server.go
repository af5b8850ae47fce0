package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/csms/internal/config"
	"github.com/gaspardpetit/csms/internal/dispatch"
	"github.com/gaspardpetit/csms/internal/eventlog"
	"github.com/gaspardpetit/csms/internal/inflight"
	"github.com/gaspardpetit/csms/internal/metrics"
	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/serverstate"
	"github.com/gaspardpetit/csms/internal/stations"
	"github.com/gaspardpetit/csms/internal/transport"
)

// Deps are the components served over HTTP. Engine, Stations and Hub are
// required; a nil Events disables /api/events and a nil State uses the
// package default tracker.
type Deps struct {
	Engine   *dispatch.Engine
	Stations *stations.Registry
	Hub      *notify.Hub
	Events   *eventlog.Log
	State    *serverstate.Tracker
	Inflight *inflight.Counter
	// Registry receives the csms collectors. When nil a fresh registry is
	// created and installed as the prometheus default.
	Registry *prometheus.Registry
}

// New constructs the HTTP handler for the server.
func New(cfg config.ServerConfig, d Deps) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range middlewareChain() {
		r.Use(m)
	}

	if d.State == nil {
		d.State = serverstate.Default()
	}
	preg := d.Registry
	if preg == nil {
		preg = prometheus.NewRegistry()
		prometheus.DefaultRegisterer = preg
		prometheus.DefaultGatherer = preg
	}
	metrics.Register(preg)
	metrics.RegisterSources(preg, metrics.Sources{
		Stations: d.Stations.Connected,
		Pending:  d.Engine.PendingCount,
		Inflight: inflightLoad(d.Inflight),
		Dropped:  d.Hub.Dropped,
	})

	ws := transport.NewHandler(d.Engine, d.Stations, transport.Options{
		Passwords:      cfg.StationPasswords,
		ReadLimit:      cfg.ReadLimit,
		PingInterval:   cfg.PingInterval,
		OriginPatterns: originHosts(cfg.AllowedOrigins),
		Draining:       d.State.IsDraining,
	})

	a := &api{
		engine:      d.Engine,
		stations:    d.Stations,
		hub:         d.Hub,
		events:      d.Events,
		state:       d.State,
		callTimeout: cfg.CallTimeout,
		eventLimit:  cfg.EventLogLimit,
	}

	r.Get("/healthz", a.healthz)
	r.Get("/ocpp/{stationID}", ws.ServeHTTP)
	r.Route("/api", func(ar chi.Router) {
		ar.Get("/openapi.json", openAPIHandler())
		ar.Group(func(g chi.Router) {
			g.Use(bearerAuth(cfg.APIKey))
			g.Get("/stations", a.listStations)
			g.Get("/stations/{id}", a.getStation)
			g.Post("/stations/{id}/call/{action}", a.call)
			g.Get("/events", a.recentEvents)
			g.Get("/events/stream", a.streamEvents)
		})
	})

	if cfg.MetricsAddr == "" || cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.Port) {
		r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
	}
	return r
}

// originHosts turns CORS origins into the host patterns the WebSocket
// handshake checks.
func originHosts(origins []string) []string {
	var hosts []string
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		if o != "" {
			hosts = append(hosts, o)
		}
	}
	return hosts
}

func inflightLoad(c *inflight.Counter) func() int64 {
	if c == nil {
		return nil
	}
	return c.Load
}
