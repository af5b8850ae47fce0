// Package envelope frames and parses OCPP-J messages. Messages are positional
// arrays whose first element selects the message type.
package envelope

import (
	"fmt"
	"strings"

	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/value"
)

// MessageType discriminates the envelope shape.
type MessageType int

const (
	Call            MessageType = 2
	CallResult      MessageType = 3
	CallError       MessageType = 4
	CallResultError MessageType = 5
	Send            MessageType = 6
)

// MaxIDLength is the longest MessageId accepted on the wire.
const MaxIDLength = 36

func (t MessageType) String() string {
	switch t {
	case Call:
		return "CALL"
	case CallResult:
		return "CALLRESULT"
	case CallError:
		return "CALLERROR"
	case CallResultError:
		return "CALLRESULTERROR"
	case Send:
		return "SEND"
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t >= Call && t <= Send
}

// IsRequest reports whether t carries an action.
func (t MessageType) IsRequest() bool { return t == Call || t == Send }

// IsError reports whether t has the error shape.
func (t MessageType) IsError() bool { return t == CallError || t == CallResultError }

// Message is a decoded envelope. Which fields are meaningful depends on Type.
type Message struct {
	Type             MessageType
	ID               string
	Action           ocpp.Action
	Payload          *value.Object
	ErrorCode        ocpp.ErrorCode
	ErrorDescription string
	ErrorDetails     any
}

// NewCall returns a Call envelope.
func NewCall(id string, action ocpp.Action, payload *value.Object) Message {
	return Message{Type: Call, ID: id, Action: action, Payload: payload}
}

// NewSend returns an unconfirmed Send envelope.
func NewSend(id string, action ocpp.Action, payload *value.Object) Message {
	return Message{Type: Send, ID: id, Action: action, Payload: payload}
}

// NewCallResult returns a CallResult envelope.
func NewCallResult(id string, payload *value.Object) Message {
	return Message{Type: CallResult, ID: id, Payload: payload}
}

// NewCallError returns a CallError envelope.
func NewCallError(id string, code ocpp.ErrorCode, desc string, details any) Message {
	return Message{Type: CallError, ID: id, ErrorCode: code, ErrorDescription: desc, ErrorDetails: details}
}

// ErrorFrom converts err into a CallError, keeping the code of an *ocpp.Error.
func ErrorFrom(id string, err *ocpp.Error) Message {
	return NewCallError(id, err.Code, err.Description, err.Details)
}

func (m Message) validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("envelope: unknown message type %d", int(m.Type))
	}
	if m.ID == "" || len(m.ID) > MaxIDLength {
		return fmt.Errorf("envelope: message id must be 1..%d characters", MaxIDLength)
	}
	if m.Type.IsRequest() && m.Action == "" {
		return fmt.Errorf("envelope: %s without action", m.Type)
	}
	if m.Type.IsError() && m.ErrorCode == "" {
		return fmt.Errorf("envelope: %s without error code", m.Type)
	}
	return nil
}

// FormatError reports a frame that could not be parsed. Type and MessageID are
// set when they could be recovered before the failure.
type FormatError struct {
	Raw       []byte
	Reason    string
	Type      MessageType
	MessageID string
}

func (e *FormatError) Error() string {
	if e.MessageID != "" {
		return fmt.Sprintf("envelope: %s (message %s)", e.Reason, e.MessageID)
	}
	return "envelope: " + e.Reason
}

// Format selects the wire encoding of a connection.
type Format int

const (
	JSON Format = iota
	Binary
)

func (f Format) String() string {
	if f == Binary {
		return "binary"
	}
	return "json"
}

// BinarySuffix marks subprotocols that use the binary encoding.
const BinarySuffix = "+binary"

// FormatForSubprotocol returns the encoding implied by a negotiated subprotocol.
func FormatForSubprotocol(p string) Format {
	if strings.HasSuffix(p, BinarySuffix) {
		return Binary
	}
	return JSON
}

// Codec converts messages to and from frames.
type Codec interface {
	Format() Format
	Frame(Message) ([]byte, error)
	Parse([]byte) (Message, error)
}

// NewCodec returns the codec for f.
func NewCodec(f Format) Codec {
	if f == Binary {
		return binaryCodec{}
	}
	return jsonCodec{}
}
