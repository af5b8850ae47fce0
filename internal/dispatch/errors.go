package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gaspardpetit/csms/internal/ocpp"
)

var (
	// ErrTimeout matches calls that got no reply in time.
	ErrTimeout = errors.New("dispatch: response timeout")
	// ErrCancelled matches calls abandoned through their context.
	ErrCancelled = errors.New("dispatch: call cancelled")
	// ErrConnectionClosed matches calls drained by Conn.Close.
	ErrConnectionClosed = errors.New("dispatch: connection closed")
)

// Kind classifies a failed outbound call.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindCancelled
	KindConnectionClosed
	KindRemote
	KindValidation
	KindEncode
	KindTransport
	KindNotSupported
	KindDuplicate
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindConnectionClosed:
		return "connection closed"
	case KindRemote:
		return "remote error"
	case KindValidation:
		return "validation"
	case KindEncode:
		return "encode"
	case KindTransport:
		return "transport"
	case KindNotSupported:
		return "not supported"
	case KindDuplicate:
		return "duplicate message id"
	}
	return "unknown"
}

// CallError is returned by SendRequest. Code, Description and Details carry
// the peer's CallError for KindRemote and the failing check for KindValidation.
type CallError struct {
	Kind        Kind
	Action      ocpp.Action
	MessageID   string
	Code        ocpp.ErrorCode
	Description string
	Details     any
	Err         error
}

func (e *CallError) Error() string {
	var b strings.Builder
	b.WriteString("dispatch: ")
	b.WriteString(string(e.Action))
	if e.MessageID != "" {
		fmt.Fprintf(&b, " %s", e.MessageID)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Description)
	}
	if e.Err != nil && e.Kind != KindRemote {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CallError) Unwrap() []error {
	var errs []error
	switch e.Kind {
	case KindTimeout:
		errs = append(errs, ErrTimeout)
	case KindCancelled:
		errs = append(errs, ErrCancelled)
	case KindConnectionClosed:
		errs = append(errs, ErrConnectionClosed)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// OCPPError returns the remote error for KindRemote failures.
func (e *CallError) OCPPError() (*ocpp.Error, bool) {
	if e.Kind != KindRemote {
		return nil, false
	}
	return &ocpp.Error{Code: e.Code, Description: e.Description, Details: e.Details}, true
}
