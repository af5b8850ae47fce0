package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gaspardpetit/csms/internal/ocpp"
)

// Phase is the lifecycle point an Event reports.
type Phase int

const (
	RequestSent Phase = iota
	RequestReceived
	ResponseSent
	ResponseReceived
)

// Phases lists every phase in order.
var Phases = []Phase{RequestSent, RequestReceived, ResponseSent, ResponseReceived}

func (p Phase) String() string {
	switch p {
	case RequestSent:
		return "request_sent"
	case RequestReceived:
		return "request_received"
	case ResponseSent:
		return "response_sent"
	case ResponseReceived:
		return "response_received"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	v, ok := ParsePhase(string(b))
	if !ok {
		return fmt.Errorf("notify: unknown phase %q", b)
	}
	*p = v
	return nil
}

// ParsePhase resolves a phase name.
func ParsePhase(s string) (Phase, bool) {
	for _, p := range Phases {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

// Option distinguishes an absent value from a present zero value.
type Option[T any] struct {
	v  T
	ok bool
}

// Some wraps v.
func Some[T any](v T) Option[T] { return Option[T]{v: v, ok: true} }

// None returns an empty Option.
func None[T any]() Option[T] { return Option[T]{} }

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) { return o.v, o.ok }

// IsSome reports whether a value is present.
func (o Option[T]) IsSome() bool { return o.ok }

func (o Option[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.v)
}

func (o *Option[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = Option[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// ConnInfo identifies the link an event happened on.
type ConnInfo struct {
	StationID   string   `json:"station_id"`
	Local       string   `json:"local,omitempty"`
	Remote      string   `json:"remote,omitempty"`
	NetworkPath []string `json:"network_path,omitempty"`
	Subprotocol string   `json:"subprotocol,omitempty"`
}

// Delivery is the transport result of an outbound frame.
type Delivery struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DeliveryOf converts a send error into a Delivery.
func DeliveryOf(err error) Delivery {
	if err != nil {
		return Delivery{Error: err.Error()}
	}
	return Delivery{OK: true}
}

// ErrorInfo is attached to response events carried by a CallError.
type ErrorInfo struct {
	Code        ocpp.ErrorCode `json:"code"`
	Description string         `json:"description,omitempty"`
	Details     any            `json:"details,omitempty"`
}

// Event is one lifecycle notification. Request and Response hold typed
// payload pointers when decoding succeeded; the JSON snapshots hold what was
// on the wire.
type Event struct {
	Phase        Phase                 `json:"phase"`
	Direction    ocpp.Direction        `json:"-"`
	Action       ocpp.Action           `json:"action"`
	MessageID    string                `json:"message_id"`
	Timestamp    time.Time             `json:"timestamp"`
	Conn         ConnInfo              `json:"conn"`
	Request      Option[any]           `json:"-"`
	RequestJSON  json.RawMessage       `json:"request,omitempty"`
	Response     Option[any]           `json:"-"`
	ResponseJSON json.RawMessage       `json:"response,omitempty"`
	Error        *ErrorInfo            `json:"error,omitempty"`
	Runtime      Option[time.Duration] `json:"runtime_ns"`
	Delivery     Option[Delivery]      `json:"delivery"`
}

// DiagnosticKind classifies failures absorbed by the dispatcher.
type DiagnosticKind int

const (
	FormatError DiagnosticKind = iota
	ProtocolViolation
	PeerRejectedResponse
)

func (k DiagnosticKind) String() string {
	switch k {
	case FormatError:
		return "format_error"
	case ProtocolViolation:
		return "protocol_violation"
	case PeerRejectedResponse:
		return "peer_rejected_response"
	}
	return "unknown"
}

func (k DiagnosticKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Diagnostic reports a frame that was dropped or a peer complaint that has
// no caller to return to.
type Diagnostic struct {
	Kind      DiagnosticKind `json:"kind"`
	Conn      ConnInfo       `json:"conn"`
	MessageID string         `json:"message_id,omitempty"`
	Action    ocpp.Action    `json:"action,omitempty"`
	Reason    string         `json:"reason"`
	Raw       []byte         `json:"-"`
	Timestamp time.Time      `json:"timestamp"`
}
