package operations

import (
	"encoding/json"
	"fmt"

	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/rpc"
	"github.com/microocpp-go/engine/internal/txstore"
)

// StartTransaction is the write-ahead-logged Operation that announces a
// Transaction's start to the server (§4.6). Grounded in
// original_source's StartTransaction handling: emit a preboot-rebased
// timestamp, then on CallResult bind the server-assigned transactionId
// and flag deauthorization if idTagInfo wasn't Accepted.
type StartTransaction struct {
	Tx          *txstore.Transaction
	Clock       *clock.Clock
	AuthCache   interfaces.AuthorizationCache
	Sink        interfaces.TxNotificationSink
	// Store commits Tx back to disk after CreateRequest/ProcessResponse
	// mutate it (§4.4's "every mutation calls commit()" applied to
	// StartSync.Requested/Confirmed and the server-assigned TransactionID).
	Store         *txstore.Store
	ReservationID *int
}

func (s *StartTransaction) Type() string { return "StartTransaction" }

func (s *StartTransaction) CreateRequest() (json.RawMessage, error) {
	ts := s.Tx.StartTimestamp
	if !ts.Anchored {
		ts = s.Clock.AdjustPrebootTimestamp(ts, s.Tx.StartBootNr)
	}

	type reqBody struct {
		ConnectorID   uint32 `json:"connectorId"`
		IdTag         string `json:"idTag"`
		MeterStart    int    `json:"meterStart"`
		Timestamp     string `json:"timestamp"`
		ReservationID *int   `json:"reservationId,omitempty"`
	}
	s.Tx.StartSync.Requested = true
	s.commit()
	return marshalCompact(reqBody{
		ConnectorID:   s.Tx.ConnectorID,
		IdTag:         s.Tx.IdTag,
		MeterStart:    s.Tx.MeterStart,
		Timestamp:     clock.ToJSONString(ts),
		ReservationID: s.ReservationID,
	})
}

// commit persists Tx's current state if a Store was supplied. A write
// error here doesn't fail the Operation — Tx's in-memory state (and so the
// correctness of this exchange) is unaffected; only recovery after an
// ensuing reboot would miss the update.
func (s *StartTransaction) commit() {
	if s.Store == nil {
		return
	}
	_ = s.Store.Save(s.Tx)
}

func (s *StartTransaction) ProcessResponse(payload json.RawMessage) error {
	var resp struct {
		TransactionID int `json:"transactionId"`
		IdTagInfo     struct {
			Status      string `json:"status"`
			ParentIdTag string `json:"parentIdTag"`
			ExpiryDate  string `json:"expiryDate"`
		} `json:"idTagInfo"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("operations: StartTransaction.conf: %w", err)
	}

	s.Tx.TransactionID = resp.TransactionID
	s.Tx.StartSync.Confirmed = true

	if resp.IdTagInfo.Status != "Accepted" {
		s.Tx.Deauthorized = true
		if s.Sink != nil {
			s.Sink.OnTxNotification(s.Tx.ConnectorID, interfaces.EventDeAuthorized, resp.IdTagInfo.Status)
		}
	} else if s.Sink != nil {
		s.Sink.OnTxNotification(s.Tx.ConnectorID, interfaces.EventStartTx, "")
	}

	if s.AuthCache != nil {
		expiry := interfaces.RawTimestamp{}
		if resp.IdTagInfo.ExpiryDate != "" {
			if t, err := clock.ParseISO8601(resp.IdTagInfo.ExpiryDate); err == nil {
				expiry = interfaces.RawTimestamp{Seconds: t.Unix(), Anchored: true}
			}
		}
		s.AuthCache.Put(s.Tx.IdTag, resp.IdTagInfo.Status, expiry)
	}
	s.commit()
	return nil
}

func (s *StartTransaction) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	kind := rpc.NotSupported
	return &kind
}

func (s *StartTransaction) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	return nil, rpc.ResultFailure
}

// WriteAheadPayload persists enough of the Request to recreate this
// Operation after a reboot without duplicating the Call (§8's "re-emits
// the same StartTransaction request ... NOT re-creating a new
// Transaction").
func (s *StartTransaction) WriteAheadPayload() (json.RawMessage, error) {
	return marshalCompact(struct {
		ConnectorID uint32 `json:"connectorId"`
		TxNr        uint32 `json:"txNr"`
	}{s.Tx.ConnectorID, s.Tx.TxNr})
}

// RestoreFromPayload is a no-op here: the Transaction handle itself (not
// this Operation) is what's restored, by ChargePoint.recoverWriteAhead
// (chargepoint.go) re-looking up (connectorId, txNr) in the txstore and
// reconstructing a StartTransaction around it.
func (s *StartTransaction) RestoreFromPayload(payload json.RawMessage) error {
	return nil
}

var (
	_ rpc.Operation           = (*StartTransaction)(nil)
	_ rpc.WriteAheadOperation = (*StartTransaction)(nil)
)
