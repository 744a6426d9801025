package operations

import (
	"encoding/json"

	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/rpc"
)

// StatusNotification reports a Connector's debounced OCPP status (§4.11,
// added here because spec.md §4.7 names the effect — "emits a
// StatusNotification" — without specifying the wire shape). Never
// write-ahead logged: a missed one after reboot is superseded by
// internal/connector re-deriving and re-sending status from scratch,
// matching original_source's ConnectorStatus.cpp.
type StatusNotification struct {
	ConnectorID uint32
	ErrorCode   string // OCPP ChargePointErrorCode, "NoError" in the common case
	Status      string // OCPP ChargePointStatus
	Timestamp   clock.Timestamp
	Info        string
}

func (s *StatusNotification) Type() string { return "StatusNotification" }

func (s *StatusNotification) CreateRequest() (json.RawMessage, error) {
	return marshalCompact(struct {
		ConnectorID uint32 `json:"connectorId"`
		ErrorCode   string `json:"errorCode"`
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		Info        string `json:"info,omitempty"`
	}{s.ConnectorID, s.ErrorCode, s.Status, clock.ToJSONString(s.Timestamp), s.Info})
}

// ProcessResponse is a no-op: StatusNotification.conf's body is always {}.
func (s *StatusNotification) ProcessResponse(payload json.RawMessage) error {
	return nil
}

func (s *StatusNotification) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	kind := rpc.NotSupported
	return &kind
}

func (s *StatusNotification) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	return nil, rpc.ResultFailure
}

var _ rpc.Operation = (*StatusNotification)(nil)
