package ocpp

import "fmt"

// ErrorCode is the code carried in a CallError.
type ErrorCode string

const (
	NotImplemented                ErrorCode = "NotImplemented"
	NotSupported                  ErrorCode = "NotSupported"
	InternalError                 ErrorCode = "InternalError"
	ProtocolError                 ErrorCode = "ProtocolError"
	SecurityError                 ErrorCode = "SecurityError"
	FormationViolation            ErrorCode = "FormationViolation"
	PropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	OccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	TypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
	GenericError                  ErrorCode = "GenericError"
	MessageTypeNotSupported       ErrorCode = "MessageTypeNotSupported"
	RpcFrameworkError             ErrorCode = "RpcFrameworkError"
)

var knownCodes = map[ErrorCode]struct{}{
	NotImplemented: {}, NotSupported: {}, InternalError: {}, ProtocolError: {},
	SecurityError: {}, FormationViolation: {}, PropertyConstraintViolation: {},
	OccurrenceConstraintViolation: {}, TypeConstraintViolation: {}, GenericError: {},
	MessageTypeNotSupported: {}, RpcFrameworkError: {},
}

// Valid reports whether c is a defined error code.
func (c ErrorCode) Valid() bool {
	_, ok := knownCodes[c]
	return ok
}

// Error is a classified OCPP failure. Handlers return it to pick the code of
// the CallError sent back to the peer.
type Error struct {
	Code        ErrorCode
	Description string
	Details     any
}

// NewError builds an Error with a formatted description.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Description
}
