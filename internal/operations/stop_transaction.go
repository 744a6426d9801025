package operations

import (
	"encoding/json"
	"fmt"

	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/meterstore"
	"github.com/microocpp-go/engine/internal/rpc"
	"github.com/microocpp-go/engine/internal/txstore"
)

// StopTransaction is the write-ahead-logged Operation that closes out a
// Transaction (§4.6). Grounded in original_source's StopTransaction
// handling: rebase the stop timestamp the same way StartTransaction does,
// guarantee it strictly follows the start timestamp, and attach up to
// MO_MAX_STOPTXDATA_LEN sampled values from the Meter Value Store as
// transactionData.
type StopTransaction struct {
	Tx         *txstore.Transaction
	Clock      *clock.Clock
	MeterStore *meterstore.Store
	Sink       interfaces.TxNotificationSink
	// Store commits Tx back to disk after mutation and, once StopSync
	// confirms, purges every completed leading record for Tx.ConnectorID
	// (§4.4's "every mutation calls commit()" plus §4.4's purge-on-complete
	// invariant).
	Store *txstore.Store

	// responseErr records the CallError this side received, if any — per
	// §4.6 "On CallError response the Operation still marks stop-sync
	// confirmed to avoid infinite retry (data-loss acknowledged)".
	responseErr error
}

func (s *StopTransaction) Type() string { return "StopTransaction" }

// stopTxData is one entry of StopTransaction.req's optional
// transactionData array: a MeterValues-shaped sample.
type stopTxData struct {
	Timestamp     string           `json:"timestamp"`
	SampledValue  []stopTxSampled  `json:"sampledValue"`
}

type stopTxSampled struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Format    string `json:"format,omitempty"`
	Context   string `json:"context,omitempty"`
}

func (s *StopTransaction) CreateRequest() (json.RawMessage, error) {
	ts := s.Tx.StopTimestamp
	if !ts.Anchored {
		ts = s.Clock.AdjustPrebootTimestamp(ts, s.Tx.StopBootNr)
	}

	// §4.6: "guarantees stopTimestamp >= startTimestamp+1s".
	if seconds, ok := s.Clock.Delta(s.Tx.StartTimestamp, ts); ok && seconds < 1 {
		ts.Seconds = s.Tx.StartTimestamp.Seconds + 1
	}
	s.Tx.StopTimestamp = ts

	var txData []stopTxData
	if s.MeterStore != nil {
		for _, rec := range s.MeterStore.All(s.Tx.ConnectorID, s.Tx.TxNr) {
			entry := stopTxData{Timestamp: clock.ToJSONString(rec.Timestamp)}
			for _, sv := range rec.SampledValues {
				entry.SampledValue = append(entry.SampledValue, stopTxSampled{
					Value: sv.Value, Measurand: sv.Measurand, Phase: sv.Phase,
					Location: sv.Location, Unit: sv.Unit, Format: sv.Format,
					Context: string(sv.Context),
				})
			}
			txData = append(txData, entry)
		}
	}

	type reqBody struct {
		TransactionID   int          `json:"transactionId"`
		IdTag           string       `json:"idTag,omitempty"`
		MeterStop       int          `json:"meterStop"`
		Timestamp       string       `json:"timestamp"`
		Reason          string       `json:"reason,omitempty"`
		TransactionData []stopTxData `json:"transactionData,omitempty"`
	}
	s.Tx.StopSync.Requested = true
	s.commit()
	return marshalCompact(reqBody{
		TransactionID:   s.Tx.TransactionID,
		IdTag:           s.Tx.IdTag,
		MeterStop:       s.Tx.MeterStop,
		Timestamp:       clock.ToJSONString(ts),
		Reason:          s.Tx.StopReason,
		TransactionData: txData,
	})
}

// commit persists Tx's current state if a Store was supplied. A write
// error here doesn't fail the Operation — Tx's in-memory state (and so the
// correctness of this exchange) is unaffected; only recovery after an
// ensuing reboot would miss the update.
func (s *StopTransaction) commit() {
	if s.Store == nil {
		return
	}
	_ = s.Store.Save(s.Tx)
}

// purge runs once StopSync confirms: advances the Transaction Store's
// retention window past every completed leading record for this
// connector, then deletes the purged records' Meter Value Store entries
// (§4.4/§4.5: "Any purge advances txNrBegin ... deleting completed
// leading records" / "all sd files for its txNr are deleted").
func (s *StopTransaction) purge() {
	if s.Store == nil {
		return
	}
	purged := s.Store.Purge(s.Tx.ConnectorID)
	if s.MeterStore == nil {
		return
	}
	for _, txNr := range purged {
		s.MeterStore.Clear(s.Tx.ConnectorID, txNr)
	}
}

func (s *StopTransaction) ProcessResponse(payload json.RawMessage) error {
	var resp struct {
		IdTagInfo *struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("operations: StopTransaction.conf: %w", err)
	}
	s.Tx.StopSync.Confirmed = true
	s.commit()
	s.purge()
	if s.Sink != nil {
		s.Sink.OnTxNotification(s.Tx.ConnectorID, interfaces.EventStopTx, "")
	}
	return nil
}

// ProcessCallError implements the §4.6 data-loss-acknowledged path: a
// CallError reply still confirms StopSync so the write-ahead retry loop
// doesn't spin on a server that will never accept this message. Called by
// internal/message.Service instead of ProcessResponse when the reply was
// a CallError.
func (s *StopTransaction) ProcessCallError(code rpc.ErrorKind, description string) {
	s.responseErr = fmt.Errorf("operations: StopTransaction.conf CallError %s: %s", code, description)
	s.Tx.StopSync.Confirmed = true
	s.commit()
	s.purge()
	if s.Sink != nil {
		s.Sink.OnTxNotification(s.Tx.ConnectorID, interfaces.EventStopTx, s.responseErr.Error())
	}
}

func (s *StopTransaction) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	kind := rpc.NotSupported
	return &kind
}

func (s *StopTransaction) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	return nil, rpc.ResultFailure
}

// WriteAheadPayload persists enough to recreate this Operation after a
// reboot (§4.6).
func (s *StopTransaction) WriteAheadPayload() (json.RawMessage, error) {
	return marshalCompact(struct {
		ConnectorID uint32 `json:"connectorId"`
		TxNr        uint32 `json:"txNr"`
	}{s.Tx.ConnectorID, s.Tx.TxNr})
}

// RestoreFromPayload is a no-op; the Transaction handle is restored by
// looking up (connectorId, txNr) in txstore, same as StartTransaction.
func (s *StopTransaction) RestoreFromPayload(payload json.RawMessage) error {
	return nil
}

var (
	_ rpc.Operation           = (*StopTransaction)(nil)
	_ rpc.WriteAheadOperation = (*StopTransaction)(nil)
)
