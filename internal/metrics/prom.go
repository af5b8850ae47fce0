package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaspardpetit/csms/internal/notify"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "csms_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "csms"},
		},
		[]string{"date", "sha", "version"},
	)

	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csms_messages_total",
			Help: "OCPP messages by action, lifecycle phase and outcome",
		},
		[]string{"action", "phase", "outcome"},
	)

	callErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csms_call_errors_total",
			Help: "CallErrors sent or received, by action and error code",
		},
		[]string{"action", "phase", "code"},
	)

	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "csms_call_duration_seconds",
			Help:    "Time from request to response, for calls served and calls sent",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action", "phase"},
	)

	diagnostics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csms_diagnostics_total",
			Help: "Frames dropped or peer complaints absorbed by the dispatcher",
		},
		[]string{"kind"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, messages, callErrors, callDuration, diagnostics)
}

// Sources supply gauges read at scrape time. Nil fields are skipped.
type Sources struct {
	Stations func() int
	Pending  func() int
	Inflight func() int64
	Dropped  func() uint64
}

// RegisterSources registers scrape-time gauges backed by s.
func RegisterSources(r prometheus.Registerer, s Sources) {
	if s.Stations != nil {
		r.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "csms_stations_connected",
			Help: "Stations with a live connection",
		}, func() float64 { return float64(s.Stations()) }))
	}
	if s.Pending != nil {
		r.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "csms_pending_calls",
			Help: "Outbound calls awaiting a reply",
		}, func() float64 { return float64(s.Pending()) }))
	}
	if s.Inflight != nil {
		r.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "csms_inflight_handlers",
			Help: "Inbound requests being handled",
		}, func() float64 { return float64(s.Inflight()) }))
	}
	if s.Dropped != nil {
		r.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "csms_notifications_dropped_total",
			Help: "Notifications dropped because a subscriber queue was full",
		}, func() float64 { return float64(s.Dropped()) }))
	}
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordEvent updates the counters for one notification.
func RecordEvent(ev notify.Event) {
	outcome := "ok"
	switch {
	case ev.Error != nil:
		outcome = "error"
		callErrors.WithLabelValues(string(ev.Action), ev.Phase.String(), string(ev.Error.Code)).Inc()
	case ev.Phase == notify.RequestReceived && !ev.Request.IsSome():
		outcome = "invalid"
	case ev.Phase == notify.ResponseReceived && !ev.Response.IsSome():
		outcome = "invalid"
	}
	if d, ok := ev.Delivery.Get(); ok && !d.OK {
		outcome = "undelivered"
	}
	messages.WithLabelValues(string(ev.Action), ev.Phase.String(), outcome).Inc()
	if rt, ok := ev.Runtime.Get(); ok {
		callDuration.WithLabelValues(string(ev.Action), ev.Phase.String()).Observe(rt.Seconds())
	}
}

// RecordDiagnostic counts one absorbed failure.
func RecordDiagnostic(d notify.Diagnostic) {
	diagnostics.WithLabelValues(d.Kind.String()).Inc()
}

// Attach feeds the metrics from hub and returns the unsubscribe function.
func Attach(hub *notify.Hub) func() {
	unEvents := hub.Subscribe(notify.Filter{}, RecordEvent)
	unDiags := hub.SubscribeDiagnostics(RecordDiagnostic)
	return func() {
		unEvents()
		unDiags()
	}
}
