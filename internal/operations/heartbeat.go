package operations

import (
	"encoding/json"
	"fmt"

	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/rpc"
)

// Heartbeat keeps the Central System's idle-timeout from firing and
// opportunistically re-syncs the Clock anchor (§4.12, added because
// spec.md §4.3 mentions "Heartbeats are suppressed while a request is in
// flight" without defining the message itself). Grounded in
// original_source's ChargeControlCommon.cpp heartbeat timer, keyed off
// HeartbeatInterval from the Accepted BootNotification.
type Heartbeat struct {
	Clock *clock.Clock

	CurrentTime string
}

func (h *Heartbeat) Type() string { return "Heartbeat" }

func (h *Heartbeat) CreateRequest() (json.RawMessage, error) {
	return json.RawMessage("{}"), nil
}

func (h *Heartbeat) ProcessResponse(payload json.RawMessage) error {
	var resp struct {
		CurrentTime string `json:"currentTime"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("operations: Heartbeat.conf: %w", err)
	}
	h.CurrentTime = resp.CurrentTime
	// SetTime replaces the anchor with whatever the server's clock says
	// now, which may move it backward as well as forward. A Transaction
	// timestamp already committed to disk is not rewritten by this:
	// AdjustPrebootTimestamp only consults the anchor that is current at
	// the moment a pre-boot timestamp is rebased.
	if h.Clock != nil && resp.CurrentTime != "" {
		h.Clock.SetTime(resp.CurrentTime)
	}
	return nil
}

func (h *Heartbeat) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	kind := rpc.NotSupported
	return &kind
}

func (h *Heartbeat) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	return nil, rpc.ResultFailure
}

var _ rpc.Operation = (*Heartbeat)(nil)
