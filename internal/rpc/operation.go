// Package rpc defines the Operation/Request contract (C5, C6) every OCPP-J
// message exchange is built from, and the wire envelope
// ([msgType,id,...]) Calls/CallResults/CallErrors are marshaled to/from.
// Grounded in the teacher's device lifecycle pattern of small, explicit
// interfaces rather than one god-object, and in both other_examples/ OCPP
// reference files' use of plain encoding/json with json.RawMessage payloads.
package rpc

import "encoding/json"

// ErrorKind enumerates the OCPP CallError codes a ProcessRequest may report.
type ErrorKind string

const (
	FormationViolation            ErrorKind = "FormationViolation"
	PropertyConstraintViolation   ErrorKind = "PropertyConstraintViolation"
	OccurrenceConstraintViolation ErrorKind = "OccurrenceConstraintViolation"
	TypeConstraintViolation       ErrorKind = "TypeConstraintViolation"
	InternalError                 ErrorKind = "InternalError"
	NotImplemented                 ErrorKind = "NotImplemented"
	NotSupported                   ErrorKind = "NotSupported"
	GenericError                   ErrorKind = "GenericError"
)

// CreateResult is CreateResponse's outcome tag. ResultPending lets an
// Operation defer producing a reply to a later Loop tick (e.g.
// TriggerMessage enqueuing a follow-up before it can answer).
type CreateResult int

const (
	ResultSuccess CreateResult = iota
	ResultPending
	ResultFailure
)

// Operation is the polymorphic unit of work every OCPP message type
// implements. A single Operation value is used for exactly one exchange
// (one Call, whichever direction it originated from).
type Operation interface {
	// Type is the OCPP action name, e.g. "StartTransaction".
	Type() string

	// CreateRequest builds this Operation's outgoing Call payload. Called
	// once, when the Request reaches the front of its Queue.
	CreateRequest() (json.RawMessage, error)

	// ProcessResponse consumes an inbound CallResult payload for a Request
	// this side sent.
	ProcessResponse(payload json.RawMessage) error

	// ProcessRequest consumes an inbound Call payload this side must answer.
	// Returns a non-nil ErrorKind to have the Message Service reply with a
	// CallError instead of invoking CreateResponse.
	ProcessRequest(payload json.RawMessage) *ErrorKind

	// CreateResponse builds the reply payload to an inbound Call. May be
	// called more than once if it returns ResultPending.
	CreateResponse() (json.RawMessage, CreateResult)
}

// WriteAheadOperation is implemented by Operations whose Request must
// survive a reboot before it has been acknowledged (StartTransaction and
// StopTransaction).
type WriteAheadOperation interface {
	Operation
	WriteAheadPayload() (json.RawMessage, error)
	RestoreFromPayload(payload json.RawMessage) error
}
