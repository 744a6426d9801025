package operations

import (
	"encoding/json"

	"github.com/microocpp-go/engine/internal/rpc"
)

// RemoteControlledConnector is the narrow collaborator surface
// RemoteStartTransaction/RemoteStopTransaction need from internal/connector
// (§4.13). Declared here rather than imported from that package to avoid
// operations <-> connector becoming a cyclic import: connector constructs
// these Operations to enqueue follow-ups, so operations can't depend back
// on connector's concrete type.
type RemoteControlledConnector interface {
	BeginTransaction(idTag string) bool
	EndTransaction(reason string) bool
}

// Enqueuer is the narrow collaborator surface TriggerMessage needs from
// internal/message.Service: the ability to push a freshly built Operation
// onto the right queue without importing the message package (same
// cyclic-import concern as RemoteControlledConnector).
type Enqueuer interface {
	EnqueueVolatile(op rpc.Operation)
}

// RemoteStartTransaction is the server-initiated Call that asks this
// charge point to begin a transaction without physical RFID/plug input,
// grounded in original_source's Operations/RemoteStartTransaction.cpp.
// Business-level rejection (the connector refuses) is reported in the
// response body's status field, not as a CallError — spec.md §4.13.
type RemoteStartTransaction struct {
	Connector RemoteControlledConnector

	connectorID uint32
	idTag       string
	accepted    bool
}

func (r *RemoteStartTransaction) Type() string { return "RemoteStartTransaction" }

func (r *RemoteStartTransaction) CreateRequest() (json.RawMessage, error) {
	return nil, errNeverSentBySelf("RemoteStartTransaction")
}

func (r *RemoteStartTransaction) ProcessResponse(payload json.RawMessage) error {
	return errNeverSentBySelf("RemoteStartTransaction")
}

func (r *RemoteStartTransaction) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	var req struct {
		ConnectorID uint32 `json:"connectorId"`
		IdTag       string `json:"idTag"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		kind := rpc.FormationViolation
		return &kind
	}
	if req.IdTag == "" {
		kind := rpc.PropertyConstraintViolation
		return &kind
	}
	r.connectorID = req.ConnectorID
	r.idTag = req.IdTag
	if r.Connector == nil {
		kind := rpc.NotSupported
		return &kind
	}
	r.accepted = r.Connector.BeginTransaction(req.IdTag)
	return nil
}

func (r *RemoteStartTransaction) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	status := "Rejected"
	if r.accepted {
		status = "Accepted"
	}
	payload, err := marshalCompact(struct {
		Status string `json:"status"`
	}{status})
	if err != nil {
		return nil, rpc.ResultFailure
	}
	return payload, rpc.ResultSuccess
}

var _ rpc.Operation = (*RemoteStartTransaction)(nil)

// RemoteStopTransaction is the server-initiated counterpart, grounded in
// the same original_source file. The Call addresses a transaction by server
// transactionId; ProcessRequest records that id in TransactionID but does
// not match it against anything, and ends whatever transaction the bound
// Connector has active.
type RemoteStopTransaction struct {
	Connector     RemoteControlledConnector
	TransactionID int // the transactionId of the last Call processed

	accepted bool
}

func (r *RemoteStopTransaction) Type() string { return "RemoteStopTransaction" }

func (r *RemoteStopTransaction) CreateRequest() (json.RawMessage, error) {
	return nil, errNeverSentBySelf("RemoteStopTransaction")
}

func (r *RemoteStopTransaction) ProcessResponse(payload json.RawMessage) error {
	return errNeverSentBySelf("RemoteStopTransaction")
}

func (r *RemoteStopTransaction) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	var req struct {
		TransactionID int `json:"transactionId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		kind := rpc.FormationViolation
		return &kind
	}
	r.TransactionID = req.TransactionID
	if r.Connector == nil {
		kind := rpc.NotSupported
		return &kind
	}
	r.accepted = r.Connector.EndTransaction("Remote")
	return nil
}

func (r *RemoteStopTransaction) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	status := "Rejected"
	if r.accepted {
		status = "Accepted"
	}
	payload, err := marshalCompact(struct {
		Status string `json:"status"`
	}{status})
	if err != nil {
		return nil, rpc.ResultFailure
	}
	return payload, rpc.ResultSuccess
}

var _ rpc.Operation = (*RemoteStopTransaction)(nil)

// TriggerMessage demonstrates the Pending CreateResult path the Operation
// contract describes (§4.1, §4.13): it enqueues the requested follow-up
// message and only answers Accepted once that's been done, grounded in
// original_source's Operations/TriggerMessage.cpp.
type TriggerMessage struct {
	Queue Enqueuer
	// BuildFollowUp constructs the requested follow-up Operation (e.g. a
	// fresh StatusNotification) for the given requestedMessage/connectorId.
	// Returns nil if requestedMessage isn't supported, mapped to
	// status=NotImplemented in the response rather than a CallError since
	// TriggerMessage.conf always replies with a status field.
	BuildFollowUp func(requestedMessage string, connectorID uint32) rpc.Operation

	requestedMessage string
	connectorID      uint32
	enqueued         bool
	status           string
}

func (t *TriggerMessage) Type() string { return "TriggerMessage" }

func (t *TriggerMessage) CreateRequest() (json.RawMessage, error) {
	return nil, errNeverSentBySelf("TriggerMessage")
}

func (t *TriggerMessage) ProcessResponse(payload json.RawMessage) error {
	return errNeverSentBySelf("TriggerMessage")
}

func (t *TriggerMessage) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	var req struct {
		RequestedMessage string `json:"requestedMessage"`
		ConnectorID      uint32 `json:"connectorId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		kind := rpc.FormationViolation
		return &kind
	}
	t.requestedMessage = req.RequestedMessage
	t.connectorID = req.ConnectorID
	return nil
}

// CreateResponse enqueues the follow-up Operation on its first call and
// returns Pending; once enqueued, it returns Success. This mirrors
// original_source re-invoking createConf() on the next Loop tick until the
// follow-up Request has actually been handed to a Queue.
func (t *TriggerMessage) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	if !t.enqueued {
		t.enqueued = true
		t.status = "NotImplemented"
		if t.BuildFollowUp != nil && t.Queue != nil {
			if op := t.BuildFollowUp(t.requestedMessage, t.connectorID); op != nil {
				t.Queue.EnqueueVolatile(op)
				t.status = "Accepted"
			}
		}
		return nil, rpc.ResultPending
	}
	payload, err := marshalCompact(struct {
		Status string `json:"status"`
	}{t.status})
	if err != nil {
		return nil, rpc.ResultFailure
	}
	return payload, rpc.ResultSuccess
}

var _ rpc.Operation = (*TriggerMessage)(nil)

type errString string

func (e errString) Error() string { return string(e) }

func errNeverSentBySelf(opType string) error {
	return errString(opType + " is server-initiated and never sends its own request")
}
