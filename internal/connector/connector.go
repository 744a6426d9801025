// Package connector implements the Connector/EVSE state machine (C14):
// status derivation from physical inputs, the debounced StatusNotification
// emission, the transaction-begin gate, connection-timeout abort and
// free-vend auto-authorization. Grounded in original_source's
// ConnectorStatus.cpp/Connector.cpp for the derivation and gating rules,
// expressed in the teacher's style of a small struct whose Tick method is
// driven once per host loop iteration rather than by its own goroutine
// (§4.7, §5).
package connector

import (
	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/config"
	"github.com/microocpp-go/engine/internal/constants"
	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/logging"
	"github.com/microocpp-go/engine/internal/meterstore"
	"github.com/microocpp-go/engine/internal/operations"
	"github.com/microocpp-go/engine/internal/queue"
	"github.com/microocpp-go/engine/internal/rpc"
	"github.com/microocpp-go/engine/internal/txstore"
)

// Status is one of the nine OCPP 1.6 ChargePointStatus values (§4.7).
type Status string

const (
	StatusAvailable     Status = "Available"
	StatusPreparing     Status = "Preparing"
	StatusCharging      Status = "Charging"
	StatusSuspendedEV   Status = "SuspendedEV"
	StatusSuspendedEVSE Status = "SuspendedEVSE"
	StatusFinishing     Status = "Finishing"
	StatusReserved      Status = "Reserved"
	StatusUnavailable   Status = "Unavailable"
	StatusFaulted       Status = "Faulted"
)

// Inputs is the physical/session state the host reports every tick. The
// connector never reads hardware directly — the host translates GPIO,
// CAN bus or simulator state into this struct (§4.7).
type Inputs struct {
	Plugged        bool
	EVReady        bool
	EVSEReady      bool
	Operative      bool // availabilityBool
	ReservationID  *int // non-nil when a reservation is held for this connector
	Faulted        bool
	ErrorCode      string // only meaningful when Faulted
}

// AuthResolver decides whether idTag may start a transaction, either by
// sending Authorize online or falling back to the cache/offline policy.
// internal/operations.Authorize implements the online half; Connector
// itself resolves the offline fallback via AllowOfflineTxForUnknownId.
type AuthResolver interface {
	// Resolve returns (accepted, idTagInfo-status-string).
	Resolve(idTag string) (bool, string)
}

// VolatileEnqueuer is the narrow surface Connector needs to send
// StatusNotification — implemented by internal/message.Service.
type VolatileEnqueuer interface {
	EnqueueVolatile(op rpc.Operation)
}

// Connector drives one EVSE's status machine and transaction lifecycle.
type Connector struct {
	ID uint32

	Clock      *clock.Clock
	Config     *config.Store
	TxStore    *txstore.Store
	MeterStore *meterstore.Store
	AuthCache  interfaces.AuthorizationCache
	Auth       AuthResolver
	Sink       interfaces.TxNotificationSink
	TxQueue    *queue.FIFOQueue
	Volatile   VolatileEnqueuer
	Log        *logging.Logger

	status         Status
	pendingStatus  Status
	pendingSinceMs int64
	lastSentStatus Status
	lastSentErr    string

	active *txstore.Transaction

	pendingIdTag      string // set by PreAuthorize, cleared once plugged starts the transaction
	authorizedSinceMs int64  // set once idTag accepted, not yet plugged
	pluggedSinceMs    int64  // set once plugged, not yet authorized

	freeVendTrackPlugged bool
	lastInputs           Inputs
}

// New creates a Connector in the Available state.
func New(id uint32) *Connector {
	return &Connector{ID: id, status: StatusAvailable, pendingStatus: StatusAvailable, Log: logging.Default()}
}

func (c *Connector) logger() *logging.Logger {
	if c.Log == nil {
		c.Log = logging.Default()
	}
	return c.Log
}

// Status reports the last-debounced, externally visible status.
func (c *Connector) Status() Status { return c.status }

// Active reports the in-progress Transaction, or nil. Until this Connector
// begins a Transaction itself, it reports the one TxStore holds as still
// active for this connector (e.g. one recovered after a restart).
func (c *Connector) Active() *txstore.Transaction {
	if c.active == nil && c.TxStore != nil {
		return c.TxStore.Active(c.ID)
	}
	return c.active
}

// PreAuthorize runs the authorization half of the transaction-begin gate
// without requiring the EV to be plugged yet, for the "tap card, then plug
// in" session order. Once accepted, Tick starts the transaction as soon as
// Plugged goes true; if neither happens within ConnectionTimeOut, the
// pending authorization is dropped (§4.7 "authorized but not plugged").
func (c *Connector) PreAuthorize(idTag string, nowMs int64) bool {
	if c.active != nil || c.pendingIdTag != "" {
		return false
	}
	authorized := false
	status := "Invalid"
	if c.Auth != nil {
		authorized, status = c.Auth.Resolve(idTag)
	}
	if !authorized && c.allowOfflineTxForUnknownId() {
		authorized, status = true, "Accepted"
	}
	if !authorized {
		if c.Sink != nil {
			c.Sink.OnTxNotification(c.ID, interfaces.EventAuthorizationRejected, status)
		}
		return false
	}
	c.pendingIdTag = idTag
	c.authorizedSinceMs = nowMs
	return true
}

// Tick re-derives status from inputs, debounces the transition, emits a
// StatusNotification when one settles, checks the connection-timeout abort,
// and runs the free-vend auto-authorize trigger (§4.7).
func (c *Connector) Tick(inputs Inputs, nowMs int64) {
	c.lastInputs = inputs
	c.checkConnectionTimeout(inputs, nowMs)
	c.checkFreeVend(inputs, nowMs)

	if inputs.Plugged && c.pendingIdTag != "" && c.active == nil {
		idTag := c.pendingIdTag
		c.pendingIdTag = ""
		c.authorizedSinceMs = 0
		c.BeginTransaction(idTag)
	}

	derived := c.derive(inputs)
	if derived != c.pendingStatus {
		c.pendingStatus = derived
		c.pendingSinceMs = nowMs
	}
	if c.pendingStatus == c.status {
		return
	}

	debounceMs := c.minimumStatusDurationMs()
	if nowMs-c.pendingSinceMs < debounceMs {
		return
	}

	c.status = c.pendingStatus
	c.emitStatus(inputs, nowMs)
}

func (c *Connector) minimumStatusDurationMs() int64 {
	if c.Config == nil {
		return constants.DefaultMinimumStatusDuration.Milliseconds()
	}
	v, ok := c.Config.Get(config.KeyMinimumStatusDuration)
	if !ok {
		return constants.DefaultMinimumStatusDuration.Milliseconds()
	}
	return v.Int * 1000
}

func (c *Connector) connectionTimeoutMs() int64 {
	if c.Config == nil {
		return constants.DefaultConnectionTimeOut.Milliseconds()
	}
	v, ok := c.Config.Get(config.KeyConnectionTimeOut)
	if !ok {
		return constants.DefaultConnectionTimeOut.Milliseconds()
	}
	return v.Int * 1000
}

// derive implements §4.7's derivation rules, evaluated in priority order.
func (c *Connector) derive(inputs Inputs) Status {
	switch {
	case inputs.Faulted:
		return StatusFaulted
	case !inputs.Operative:
		return StatusUnavailable
	case inputs.ReservationID != nil && c.active == nil:
		return StatusReserved
	case c.active != nil:
		switch {
		case !inputs.EVReady:
			return StatusSuspendedEV
		case !inputs.EVSEReady:
			return StatusSuspendedEVSE
		default:
			return StatusCharging
		}
	case inputs.Plugged:
		if c.status == StatusFinishing {
			return StatusFinishing
		}
		return StatusPreparing
	default:
		return StatusAvailable
	}
}

func (c *Connector) emitStatus(inputs Inputs, nowMs int64) {
	errCode := "NoError"
	if inputs.Faulted && inputs.ErrorCode != "" {
		errCode = inputs.ErrorCode
	}
	if c.status == c.lastSentStatus && errCode == c.lastSentErr {
		return
	}
	c.lastSentStatus = c.status
	c.lastSentErr = errCode

	if c.Volatile == nil {
		return
	}
	ts := c.Clock.Now()
	c.Volatile.EnqueueVolatile(&operations.StatusNotification{
		ConnectorID: c.ID,
		ErrorCode:   errCode,
		Status:      string(c.status),
		Timestamp:   ts,
	})
}

// checkConnectionTimeout aborts a pending session that has sat "authorized
// but not plugged" or "plugged but not authorized" for longer than
// ConnectionTimeOut (§4.7).
func (c *Connector) checkConnectionTimeout(inputs Inputs, nowMs int64) {
	if c.active != nil {
		c.authorizedSinceMs, c.pluggedSinceMs = 0, 0
		return
	}

	if !inputs.Plugged {
		c.pluggedSinceMs = 0
	} else if c.pluggedSinceMs == 0 && c.pendingIdTag == "" {
		c.pluggedSinceMs = nowMs
	}

	timeoutMs := c.connectionTimeoutMs()
	if c.authorizedSinceMs != 0 && nowMs-c.authorizedSinceMs > timeoutMs {
		c.authorizedSinceMs = 0
		c.pendingIdTag = ""
		if c.Sink != nil {
			c.Sink.OnTxNotification(c.ID, interfaces.EventConnectionTimeout, "authorized but not plugged")
		}
	}
	if c.pluggedSinceMs > 0 && nowMs-c.pluggedSinceMs > timeoutMs {
		c.pluggedSinceMs = -1 // fired; re-armed only after unplug
		if c.Sink != nil {
			c.Sink.OnTxNotification(c.ID, interfaces.EventConnectionTimeout, "plugged but not authorized")
		}
	}
}

// checkFreeVend auto-authorizes with FreeVendIdTag the first time an EV is
// plugged while FreeVendActive, and resets the one-shot tracker on unplug
// (§4.7).
func (c *Connector) checkFreeVend(inputs Inputs, nowMs int64) {
	if c.Config == nil {
		return
	}
	active, _ := c.Config.Get(config.KeyFreeVendActive)
	if !active.Bool {
		c.freeVendTrackPlugged = false
		return
	}
	if !inputs.Plugged {
		c.freeVendTrackPlugged = false
		return
	}
	if c.freeVendTrackPlugged || c.active != nil {
		return
	}
	c.freeVendTrackPlugged = true
	idTag, _ := c.Config.Get(config.KeyFreeVendIdTag)
	if idTag.Str == "" {
		return
	}
	c.BeginTransaction(idTag.Str)
}

// txStartPointSatisfied evaluates the configured TxStartPoint trigger
// against the inputs a transaction is being considered under (§4.7).
func (c *Connector) txStartPointSatisfied(inputs Inputs) bool {
	point := "PowerPathClosed"
	if c.Config != nil {
		if v, ok := c.Config.Get(config.KeyTxStartPoint); ok {
			point = v.Str
		}
	}
	switch point {
	case "ParkingBayOccupancy", "EVConnected":
		return inputs.Plugged
	case "Authorized":
		return true // authorization itself is gated separately before this check runs
	case "EnergyTransfer":
		return inputs.Plugged && inputs.EVReady && inputs.EVSEReady
	default: // PowerPathClosed
		return inputs.Plugged
	}
}

func (c *Connector) allowOfflineTxForUnknownId() bool {
	if c.Config == nil {
		return false
	}
	v, _ := c.Config.Get(config.KeyAllowOfflineTxForUnknownId)
	return v.Bool
}

// BeginTransaction runs the transaction-begin gate (§4.7: idTag authorized
// OR AllowOfflineTxForUnknownId, connector operative, no reservation
// mismatch, TxStartPoint satisfied) and, if it passes, allocates a
// Transaction and enqueues its StartTransaction. Implements
// operations.RemoteControlledConnector for RemoteStartTransaction/FreeVend.
func (c *Connector) BeginTransaction(idTag string) bool {
	if c.active != nil {
		return false
	}
	lastInputs := c.lastInputsSnapshot()
	if !lastInputs.Operative {
		return false
	}
	if lastInputs.ReservationID != nil && idTag == "" {
		if c.Sink != nil {
			c.Sink.OnTxNotification(c.ID, interfaces.EventReservationConflict, "")
		}
		return false
	}
	if !c.txStartPointSatisfied(lastInputs) {
		return false
	}

	authorized := false
	status := "Invalid"
	if c.Auth != nil {
		authorized, status = c.Auth.Resolve(idTag)
	}
	if !authorized && c.allowOfflineTxForUnknownId() {
		authorized = true
		status = "Accepted"
	}
	if !authorized {
		if c.Sink != nil {
			c.Sink.OnTxNotification(c.ID, interfaces.EventAuthorizationRejected, status)
		}
		return false
	}

	bootNr := uint16(0)
	if c.Clock != nil {
		bootNr = c.Clock.BootNr()
	}
	tx, err := c.TxStore.Begin(c.ID, bootNr)
	if err != nil {
		c.logger().Errorf("connector %d: begin transaction: %v", c.ID, err)
		return false
	}
	tx.IdTag = idTag
	tx.Authorized = true
	tx.StartTimestamp = c.now()
	if c.Clock != nil {
		tx.StartTimestamp.Anchored = c.Clock.IsAnchored()
	}
	if err := c.TxStore.Save(tx); err != nil {
		c.logger().Errorf("connector %d: save transaction: %v", c.ID, err)
	}
	c.active = tx
	c.authorizedSinceMs, c.pluggedSinceMs = 0, 0

	if c.Sink != nil {
		c.Sink.OnTxNotification(c.ID, interfaces.EventAuthorized, idTag)
	}
	if c.TxQueue != nil {
		req := rpc.NewRequest(&operations.StartTransaction{Tx: tx, Clock: c.Clock, AuthCache: c.AuthCache, Sink: c.Sink, Store: c.TxStore})
		req.ConnectorID = c.ID
		req.TxNr = tx.TxNr
		req.OpNr = c.TxQueue.OpNr()
		c.TxQueue.Enqueue(req)
	}
	return true
}

// EndTransaction stops the active Transaction, if any, enqueuing its
// StopTransaction. Implements operations.RemoteControlledConnector.
func (c *Connector) EndTransaction(reason string) bool {
	if c.active == nil {
		return false
	}
	tx := c.active
	tx.Active = false
	tx.StopReason = reason
	tx.StopTimestamp = c.now()
	if c.Clock != nil {
		tx.StopTimestamp.Anchored = c.Clock.IsAnchored()
		tx.StopBootNr = c.Clock.BootNr()
	}
	if err := c.TxStore.Save(tx); err != nil {
		c.logger().Errorf("connector %d: save transaction: %v", c.ID, err)
	}
	c.active = nil
	c.status = StatusFinishing

	if c.TxQueue != nil {
		req := rpc.NewRequest(&operations.StopTransaction{Tx: tx, Clock: c.Clock, MeterStore: c.MeterStore, Sink: c.Sink, Store: c.TxStore})
		req.ConnectorID = c.ID
		req.TxNr = tx.TxNr
		req.OpNr = c.TxQueue.OpNr()
		c.TxQueue.Enqueue(req)
	}
	return true
}

func (c *Connector) now() interfaces.Timestamp {
	if c.Clock == nil {
		return interfaces.RawTimestamp{}
	}
	return c.Clock.Now()
}

// lastInputsSnapshot is a placeholder the gate checks consult for
// operative/reservation state outside of a Tick call (e.g. when
// RemoteStartTransaction invokes BeginTransaction directly). Connector
// caches the most recent Inputs passed to Tick for this purpose.
func (c *Connector) lastInputsSnapshot() Inputs { return c.lastInputs }

var _ operations.RemoteControlledConnector = (*Connector)(nil)
