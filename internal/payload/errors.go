package payload

import (
	"fmt"
	"strings"

	"github.com/gaspardpetit/csms/internal/ocpp"
)

// ValidationError reports a payload that does not satisfy its schema. Path is
// the dotted JSON path of the offending field, empty for the whole payload.
type ValidationError struct {
	Action ocpp.Action
	Kind   Kind
	Path   string
	Code   ocpp.ErrorCode
	Err    error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Action, e.Kind)
	if e.Path != "" {
		fmt.Fprintf(&b, " field %s", e.Path)
	}
	fmt.Fprintf(&b, ": %s", e.Code)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// OCPPError converts e into the error sent back to a peer.
func (e *ValidationError) OCPPError() *ocpp.Error {
	desc := "invalid payload"
	if e.Path != "" {
		desc = "invalid field " + e.Path
	}
	if e.Err != nil {
		desc += ": " + e.Err.Error()
	}
	return &ocpp.Error{Code: e.Code, Description: desc}
}

func classify(path string, code ocpp.ErrorCode) ocpp.ErrorCode {
	if path == "signatures" || strings.HasPrefix(path, "signatures[") || strings.HasPrefix(path, "signatures.") ||
		strings.Contains(path, ".signatures") {
		return ocpp.SecurityError
	}
	return code
}
