package microocpp

import (
	"errors"
	"fmt"

	"github.com/microocpp-go/engine/internal/rpc"
)

// Error is the engine's structured error type (§7 of SPEC_FULL.md),
// grounded in the teacher's *Error{Op,DevID,Queue,Code,Errno,Msg,Inner}:
// an operation label, the connector it concerns (0 if none), an OCPP
// ErrorKind category, a human-readable message and an optionally wrapped
// cause.
type Error struct {
	Op          string
	ConnectorID uint32
	Code        rpc.ErrorKind
	Msg         string
	Inner       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.ConnectorID != 0 {
		return fmt.Sprintf("microocpp: %s (op=%s connector=%d)", msg, e.Op, e.ConnectorID)
	}
	if e.Op != "" {
		return fmt.Sprintf("microocpp: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("microocpp: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is reports whether target is another *Error with the same Code, mirroring
// the teacher's UblkErrorCode comparison. Any other target does not match.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError creates an Error with no connector association.
func NewError(op string, code rpc.ErrorKind, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewConnectorError creates an Error scoped to a specific connector.
func NewConnectorError(op string, connectorID uint32, code rpc.ErrorKind, msg string) *Error {
	return &Error{Op: op, ConnectorID: connectorID, Code: code, Msg: msg}
}

// WrapError wraps inner with op context, preserving Code/ConnectorID if
// inner is already an *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		return &Error{Op: op, ConnectorID: e.ConnectorID, Code: e.Code, Msg: e.Msg, Inner: e.Inner}
	}
	return &Error{Op: op, Code: rpc.GenericError, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is an *Error with the given Code.
func IsCode(err error, code rpc.ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

var (
	// ErrNoSuchConnector is returned when a caller references a connector
	// ID that wasn't configured at New time.
	ErrNoSuchConnector = errors.New("microocpp: no such connector")
	// ErrAlreadyStarted is returned by Start when called more than once.
	ErrAlreadyStarted = errors.New("microocpp: already started")
)
