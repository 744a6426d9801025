// Package txstore implements the Transaction Record (C8) and the
// ring-indexed, persistent Transaction Store (C9) that holds the last
// few transactions per connector across reboots. Grounded in the
// teacher's Device/DeviceState pattern of a small struct with explicit
// accessor methods, persisted through the Filesystem Adapter the way
// internal/config persists Configurations.
package txstore

import (
	"github.com/microocpp-go/engine/internal/interfaces"
)

// SyncState tracks whether a transaction-boundary message has been sent
// and acknowledged. A Transaction is "completed" iff both StartSync and
// StopSync are Confirmed (§3 Transaction).
type SyncState struct {
	Requested bool
	Confirmed bool
}

// Transaction is the persisted record of one charging session.
type Transaction struct {
	ConnectorID     uint32
	TxNr            uint32
	IdTag           string
	StartTimestamp  interfaces.Timestamp
	StopTimestamp   interfaces.Timestamp
	MeterStart      int
	MeterStop       int
	TransactionID   int // server-assigned; 0 until StartTransaction.conf
	StopReason      string
	StartBootNr     uint16
	StopBootNr      uint16
	StartSync       SyncState
	StopSync        SyncState

	Active         bool
	Authorized     bool
	Deauthorized   bool
	Silent         bool
	ReservationID  int
	TxProfileID    int
}

// Completed reports whether both the start and stop messages have been
// acknowledged by the server.
func (t *Transaction) Completed() bool {
	return t.StartSync.Confirmed && t.StopSync.Confirmed
}

// wireTransaction is Transaction's JSON-on-disk shape.
type wireTransaction struct {
	ConnectorID    uint32 `json:"connectorId"`
	TxNr           uint32 `json:"txNr"`
	IdTag          string `json:"idTag"`
	StartSeconds   int64  `json:"startSeconds"`
	StartAnchored  bool   `json:"startAnchored"`
	StopSeconds    int64  `json:"stopSeconds"`
	StopAnchored   bool   `json:"stopAnchored"`
	MeterStart     int    `json:"meterStart"`
	MeterStop      int    `json:"meterStop"`
	TransactionID  int    `json:"transactionId"`
	StopReason     string `json:"stopReason"`
	StartBootNr    uint16 `json:"startBootNr"`
	StopBootNr     uint16 `json:"stopBootNr"`
	StartRequested bool   `json:"startRequested"`
	StartConfirmed bool   `json:"startConfirmed"`
	StopRequested  bool   `json:"stopRequested"`
	StopConfirmed  bool   `json:"stopConfirmed"`
	Active         bool   `json:"active"`
	Authorized     bool   `json:"authorized"`
	Deauthorized   bool   `json:"deauthorized"`
	Silent         bool   `json:"silent"`
	ReservationID  int    `json:"reservationId"`
	TxProfileID    int    `json:"txProfileId"`
}

func (t *Transaction) toWire() wireTransaction {
	return wireTransaction{
		ConnectorID:    t.ConnectorID,
		TxNr:           t.TxNr,
		IdTag:          t.IdTag,
		StartSeconds:   t.StartTimestamp.Seconds,
		StartAnchored:  t.StartTimestamp.Anchored,
		StopSeconds:    t.StopTimestamp.Seconds,
		StopAnchored:   t.StopTimestamp.Anchored,
		MeterStart:     t.MeterStart,
		MeterStop:      t.MeterStop,
		TransactionID:  t.TransactionID,
		StopReason:     t.StopReason,
		StartBootNr:    t.StartBootNr,
		StopBootNr:     t.StopBootNr,
		StartRequested: t.StartSync.Requested,
		StartConfirmed: t.StartSync.Confirmed,
		StopRequested:  t.StopSync.Requested,
		StopConfirmed:  t.StopSync.Confirmed,
		Active:         t.Active,
		Authorized:     t.Authorized,
		Deauthorized:   t.Deauthorized,
		Silent:         t.Silent,
		ReservationID:  t.ReservationID,
		TxProfileID:    t.TxProfileID,
	}
}

func (w wireTransaction) toTransaction() *Transaction {
	return &Transaction{
		ConnectorID:    w.ConnectorID,
		TxNr:           w.TxNr,
		IdTag:          w.IdTag,
		StartTimestamp: interfaces.Timestamp{Seconds: w.StartSeconds, Anchored: w.StartAnchored},
		StopTimestamp:  interfaces.Timestamp{Seconds: w.StopSeconds, Anchored: w.StopAnchored},
		MeterStart:     w.MeterStart,
		MeterStop:      w.MeterStop,
		TransactionID:  w.TransactionID,
		StopReason:     w.StopReason,
		StartBootNr:    w.StartBootNr,
		StopBootNr:     w.StopBootNr,
		StartSync:      SyncState{Requested: w.StartRequested, Confirmed: w.StartConfirmed},
		StopSync:       SyncState{Requested: w.StopRequested, Confirmed: w.StopConfirmed},
		Active:         w.Active,
		Authorized:     w.Authorized,
		Deauthorized:   w.Deauthorized,
		Silent:         w.Silent,
		ReservationID:  w.ReservationID,
		TxProfileID:    w.TxProfileID,
	}
}
