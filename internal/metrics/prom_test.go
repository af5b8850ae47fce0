package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/ocpp"
)

func TestRecordEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2025-01-01")

	RecordEvent(notify.Event{Phase: notify.RequestReceived, Action: "MetricsTestA", Request: notify.Some[any](1)})
	RecordEvent(notify.Event{Phase: notify.RequestReceived, Action: "MetricsTestA"})
	RecordEvent(notify.Event{
		Phase:    notify.ResponseSent,
		Action:   "MetricsTestA",
		Error:    &notify.ErrorInfo{Code: ocpp.NotImplemented},
		Runtime:  notify.Some(250 * time.Millisecond),
		Delivery: notify.Some(notify.Delivery{OK: true}),
	})
	RecordEvent(notify.Event{
		Phase:    notify.RequestSent,
		Action:   "MetricsTestA",
		Delivery: notify.Some(notify.Delivery{Error: "closed"}),
	})
	RecordDiagnostic(notify.Diagnostic{Kind: notify.PeerRejectedResponse})

	checks := []struct {
		c    prometheus.Collector
		want float64
	}{
		{messages.WithLabelValues("MetricsTestA", "request_received", "ok"), 1},
		{messages.WithLabelValues("MetricsTestA", "request_received", "invalid"), 1},
		{messages.WithLabelValues("MetricsTestA", "response_sent", "error"), 1},
		{messages.WithLabelValues("MetricsTestA", "request_sent", "undelivered"), 1},
		{callErrors.WithLabelValues("MetricsTestA", "response_sent", "NotImplemented"), 1},
		{diagnostics.WithLabelValues("peer_rejected_response"), 1},
		{buildInfo.WithLabelValues("2025-01-01", "abc", "1.0.0"), 1},
	}
	for i, c := range checks {
		if v := testutil.ToFloat64(c.c); v != c.want {
			t.Fatalf("check %d: got %v want %v", i, v, c.want)
		}
	}
	if n := testutil.CollectAndCount(callDuration, "csms_call_duration_seconds"); n == 0 {
		t.Fatalf("duration not observed")
	}
}

func TestRegisterSources(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterSources(reg, Sources{
		Stations: func() int { return 3 },
		Pending:  func() int { return 2 },
		Dropped:  func() uint64 { return 7 },
	})
	want := `
# HELP csms_notifications_dropped_total Notifications dropped because a subscriber queue was full
# TYPE csms_notifications_dropped_total counter
csms_notifications_dropped_total 7
# HELP csms_pending_calls Outbound calls awaiting a reply
# TYPE csms_pending_calls gauge
csms_pending_calls 2
# HELP csms_stations_connected Stations with a live connection
# TYPE csms_stations_connected gauge
csms_stations_connected 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want)); err != nil {
		t.Fatal(err)
	}
}

func TestAttach(t *testing.T) {
	hub := notify.NewHub(8)
	defer hub.Close()
	unsub := Attach(hub)
	defer unsub()
	hub.Publish(notify.Event{Phase: notify.ResponseReceived, Action: "MetricsTestB", Response: notify.Some[any](1)})
	hub.PublishDiagnostic(notify.Diagnostic{Kind: notify.FormatError})

	c := messages.WithLabelValues("MetricsTestB", "response_received", "ok")
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(c) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("event not counted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
