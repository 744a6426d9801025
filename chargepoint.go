// Package microocpp is the top-level Operation Engine of an embeddable
// OCPP 1.6-J/2.0.1-J charge point client: reliable, ordered,
// write-ahead-persisted Call/CallResult/CallError exchange, transaction
// record storage, prioritized operation queues and per-connector status
// derivation, driven entirely by a host-called Loop — no goroutine of its
// own does blocking work (§5 of SPEC_FULL.md).
//
// Grounded in the teacher's backend.go: ChargePoint/New/Close play the
// role CreateAndServe/StopAndDelete/Device played for a ublk block
// device, wiring the same kind of Config-struct-plus-constructor
// collaborators (there: io_uring queue runners and a netlink controller;
// here: Request queues and a boot-gated Message Service) before handing
// back a single handle the host drives one tick at a time.
package microocpp

import (
	"context"
	"fmt"
	"time"

	"github.com/microocpp-go/engine/internal/authcache"
	"github.com/microocpp-go/engine/internal/boot"
	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/config"
	"github.com/microocpp-go/engine/internal/connector"
	"github.com/microocpp-go/engine/internal/constants"
	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/logging"
	"github.com/microocpp-go/engine/internal/message"
	"github.com/microocpp-go/engine/internal/meterstore"
	"github.com/microocpp-go/engine/internal/operations"
	"github.com/microocpp-go/engine/internal/queue"
	"github.com/microocpp-go/engine/internal/rpc"
	"github.com/microocpp-go/engine/internal/txstore"
	"github.com/microocpp-go/engine/internal/wal"
)

// Connection is the transport collaborator a ChargePoint sends/receives
// OCPP-J frames through (C4, §6). internal/transport.WebsocketConnection
// is the default implementation; MockConnection (testing.go) is the one
// used by tests and cmd/microocpp-demo.
type Connection interface {
	SendText(ctx context.Context, msg string) error
	SetOnReceiveText(cb func(msg string))
	IsConnected() bool
	LastConnectedMs() int64
}

// drainer is implemented by Connections that buffer inbound frames off
// their own goroutine (internal/transport.WebsocketConnection); Loop
// drains one if the configured Connection happens to support it.
type drainer interface {
	Drain()
}

// Params configures a new ChargePoint, grounded in the teacher's
// DeviceParams: one struct naming every collaborator and tunable a host
// supplies, with DefaultParams-style zero-value fallbacks applied in New.
type Params struct {
	FS         interfaces.FileSystem
	Connection Connection

	ChargePointVendor       string
	ChargePointModel        string
	ChargePointSerialNumber string
	FirmwareVersion         string
	// CurrentVersion is this build's MicroOcppVersion; BootService wipes
	// volatile state on a version bump (§4.9).
	CurrentVersion string

	// NumConnectors is how many Connector state machines to create,
	// numbered 1..NumConnectors. Defaults to 1.
	NumConnectors uint32

	// BootRetryInterval overrides the BootService retry period absent a
	// server-supplied Interval. Defaults to constants.DefaultBootRetryInterval.
	BootRetryInterval time.Duration

	Observer interfaces.Observer
	Sink     interfaces.TxNotificationSink
	Metrics  *Metrics

	// NowFn overrides the wall-clock source (tests only); nil uses time.Now.
	NowFn func() time.Time
}

// ChargePoint is the engine's top-level handle: one per physical charge
// point, wiring together every internal component named in SPEC_FULL.md
// §2's component table.
type ChargePoint struct {
	fs         interfaces.FileSystem
	conn       Connection
	clock      *clock.Clock
	config     *config.Store
	txStore    *txstore.Store
	meterStore *meterstore.Store
	authCache  *authcache.Cache
	sink       interfaces.TxNotificationSink
	wal        *wal.Store
	observer   interfaces.Observer
	log        *logging.Logger

	manager  *queue.Manager
	preBoot  *queue.FIFOQueue
	volatile *queue.FIFOQueue
	registry *message.Registry
	svc      *message.Service
	boot     *boot.Service

	connectors map[uint32]*connector.Connector
	primaryID  uint32 // connector routed to for RemoteStart/RemoteStop/TriggerMessage

	// nextHeartbeatMs is the uptime at which the next periodic Heartbeat
	// should be enqueued, in the engine's NowMs time base. Armed the first
	// Loop tick after BootNotification is Accepted (§4.12).
	nextHeartbeatMs int64
	heartbeatArmed  bool

	started bool
}

// nowMsClock adapts internal/clock.Clock to the narrow NowMs() surface
// internal/message.Service consumes, using elapsed uptime (monotonic
// regardless of clock anchoring) for Request timeout bookkeeping.
type nowMsClock struct{ c *clock.Clock }

func (n nowMsClock) NowMs() int64 { return n.c.Uptime().Seconds * 1000 }

// New creates a ChargePoint wired to its collaborators. It does not talk
// to the Connection yet — call Start to recover persisted state and begin
// the BootNotification retry loop.
func New(params Params) (*ChargePoint, error) {
	if params.FS == nil {
		return nil, NewError("New", rpc.InternalError, "Params.FS is required")
	}
	if params.Connection == nil {
		return nil, NewError("New", rpc.InternalError, "Params.Connection is required")
	}
	numConnectors := params.NumConnectors
	if numConnectors == 0 {
		numConnectors = 1
	}
	retryInterval := params.BootRetryInterval
	if retryInterval <= 0 {
		retryInterval = constants.DefaultBootRetryInterval
	}

	clk := clock.New(clock.Config{NowFn: params.NowFn})
	cfgStore := config.NewStore(params.FS)
	config.DeclareStandardKeys(cfgStore)

	authCache, err := authcache.New(AuthCacheCapacity, clk.Now)
	if err != nil {
		return nil, WrapError("New", err)
	}

	manager := queue.NewManager()
	preBoot := queue.NewPreBootQueue()
	volatile := queue.NewVolatileQueue()
	manager.Register(preBoot)
	manager.Register(volatile)

	registry := message.NewRegistry()

	observer := params.Observer
	if observer == nil && params.Metrics != nil {
		observer = params.Metrics
	}

	walStore := wal.NewStore(params.FS)

	svc := message.New(message.Config{
		Connection:    params.Connection,
		Manager:       manager,
		Registry:      registry,
		Clock:         nowMsClock{c: clk},
		Observer:      observer,
		PreBootQueue:  preBoot,
		VolatileQueue: volatile,
		WAL:           walStore,
	})

	gate := &bootGate{svc: svc}
	bootSvc := boot.New(boot.Config{
		FS:                      params.FS,
		Clock:                   clk,
		PreBoot:                 preBoot,
		Gate:                    gate,
		ChargePointVendor: params.ChargePointVendor,
		ChargePointModel:  params.ChargePointModel,
		SerialNumber:      params.ChargePointSerialNumber,
		FirmwareVersion:   params.FirmwareVersion,
		CurrentVersion:    params.CurrentVersion,
		RetryInterval:     retryInterval,
	})

	cp := &ChargePoint{
		fs:         params.FS,
		conn:       params.Connection,
		clock:      clk,
		config:     cfgStore,
		txStore:    txstore.NewStore(params.FS),
		meterStore: meterstore.NewStoreWithFS(params.FS),
		authCache:  authCache,
		wal:        walStore,
		observer:   observer,
		log:        logging.Default(),
		manager:    manager,
		preBoot:    preBoot,
		volatile:   volatile,
		registry:   registry,
		svc:        svc,
		boot:       bootSvc,
		connectors: make(map[uint32]*connector.Connector, numConnectors),
		primaryID:  1,
	}

	sink := &txSink{host: params.Sink, metrics: params.Metrics}
	resolver := &cacheAuthResolver{cache: authCache}
	cp.sink = sink

	for id := uint32(1); id <= numConnectors; id++ {
		c := connector.New(id)
		c.Clock = clk
		c.Config = cfgStore
		c.TxStore = cp.txStore
		c.MeterStore = cp.meterStore
		c.AuthCache = authCache
		c.Auth = resolver
		c.Sink = sink
		c.TxQueue = queue.NewTransactionQueue(id)
		c.Volatile = svc
		manager.Register(c.TxQueue)
		cp.connectors[id] = c
	}

	cp.registerInboundOperations()

	return cp, nil
}

// registerInboundOperations wires the server-initiated Calls this engine
// answers (§4.13), routing RemoteStartTransaction/RemoteStopTransaction to
// the primary connector regardless of the Call's connectorId — see
// DESIGN.md. TriggerMessage's StatusNotification follow-up is built for the
// connectorId the Call names.
func (cp *ChargePoint) registerInboundOperations() {
	primary := func() *connector.Connector {
		if c, ok := cp.connectors[cp.primaryID]; ok {
			return c
		}
		for _, c := range cp.connectors {
			return c
		}
		return nil
	}

	cp.registry.RegisterOperation("RemoteStartTransaction", func() rpc.Operation {
		return &operations.RemoteStartTransaction{Connector: primary()}
	})
	cp.registry.RegisterOperation("RemoteStopTransaction", func() rpc.Operation {
		return &operations.RemoteStopTransaction{Connector: primary()}
	})
	cp.registry.RegisterOperation("TriggerMessage", func() rpc.Operation {
		return &operations.TriggerMessage{
			Queue: cp.svc,
			BuildFollowUp: func(requestedMessage string, connectorID uint32) rpc.Operation {
				return cp.buildTriggeredMessage(requestedMessage, connectorID)
			},
		}
	})
}

func (cp *ChargePoint) buildTriggeredMessage(requestedMessage string, connectorID uint32) rpc.Operation {
	switch requestedMessage {
	case "StatusNotification":
		c, ok := cp.connectors[connectorID]
		if !ok {
			return nil
		}
		return &operations.StatusNotification{
			ConnectorID: connectorID,
			ErrorCode:   "NoError",
			Status:      string(c.Status()),
			Timestamp:   cp.clock.Now(),
		}
	case "Heartbeat":
		return &operations.Heartbeat{Clock: cp.clock}
	default:
		return nil
	}
}

// bootGate adapts message.Service to boot.GateController.
type bootGate struct{ svc *message.Service }

func (g *bootGate) SetBootGated(gated bool) { g.svc.SetBootGated(gated) }

// Start recovers persisted Transaction/MeterValue/config state and begins
// the BootNotification retry loop. Must be called exactly once before
// Loop.
func (cp *ChargePoint) Start() error {
	if cp.started {
		return ErrAlreadyStarted
	}
	if err := cp.config.Load(config.StandardConfigFile); err != nil {
		return WrapError("Start", err)
	}
	wipePrefixes, err := cp.boot.Load()
	if err != nil {
		return WrapError("Start", err)
	}
	if len(wipePrefixes) > 0 {
		cp.wipe(wipePrefixes)
	}
	if err := cp.txStore.Recover(); err != nil {
		return WrapError("Start", err)
	}
	if err := cp.meterStore.Recover(); err != nil {
		return WrapError("Start", err)
	}
	if err := cp.recoverWriteAhead(); err != nil {
		return WrapError("Start", err)
	}
	cp.started = true
	return nil
}

// wipe removes every file whose name has one of prefixes, implementing
// BootService's boot-loop-escape and version-migration purges (§4.9).
func (cp *ChargePoint) wipe(prefixes []string) {
	for _, prefix := range prefixes {
		_ = cp.fs.Walk(prefix, func(name string) error {
			if err := cp.fs.Remove(name); err != nil {
				cp.log.Warnf("chargepoint: wipe %s: %v", name, err)
			}
			return nil
		})
	}
}

// recoverWriteAhead reconstructs and re-enqueues every pending
// StartTransaction/StopTransaction whose op-<opNr>.jsn slot survived a
// reboot, so the same Call is re-sent rather than lost (§8 Testable
// Property 5, Scenario S2: "no duplicate StartTransaction sent"). A slot
// referencing a Transaction txStore can no longer find is discarded —
// referential integrity lost, nothing left to recover.
func (cp *ChargePoint) recoverWriteAhead() error {
	records, err := cp.wal.Recover()
	if err != nil {
		return err
	}
	for opNr, rec := range records {
		c, ok := cp.connectors[rec.ConnectorID]
		if !ok {
			cp.log.Warnf("chargepoint: write-ahead opNr=%d references unknown connector %d, discarding", opNr, rec.ConnectorID)
			_ = cp.wal.Clear(opNr)
			continue
		}
		tx, ok := cp.txStore.Get(rec.ConnectorID, rec.TxNr)
		if !ok {
			cp.log.Warnf("chargepoint: write-ahead opNr=%d references unknown tx %d/%d, discarding", opNr, rec.ConnectorID, rec.TxNr)
			_ = cp.wal.Clear(opNr)
			continue
		}

		var op rpc.Operation
		switch rec.OperationType {
		case "StartTransaction":
			op = &operations.StartTransaction{Tx: tx, Clock: cp.clock, AuthCache: cp.authCache, Sink: cp.sink, Store: cp.txStore}
		case "StopTransaction":
			op = &operations.StopTransaction{Tx: tx, Clock: cp.clock, MeterStore: cp.meterStore, Sink: cp.sink, Store: cp.txStore}
		default:
			cp.log.Warnf("chargepoint: write-ahead opNr=%d has unknown operationType %q, discarding", opNr, rec.OperationType)
			_ = cp.wal.Clear(opNr)
			continue
		}

		req := rpc.NewRequest(op)
		req.ConnectorID = rec.ConnectorID
		req.TxNr = rec.TxNr
		req.OpNr = opNr
		c.TxQueue.Enqueue(req)
	}
	return nil
}

// Loop drives one iteration of the engine: connection drain, boot retry,
// and Message Service dispatch. Never blocks; returns immediately whether
// or not work was done (§5). Host code is responsible for calling
// Connector(id).Tick(inputs, nowMs) once per loop for every connector it
// drives, since only the host knows the physical input state.
func (cp *ChargePoint) Loop(ctx context.Context) error {
	if d, ok := cp.conn.(drainer); ok {
		d.Drain()
	}
	nowMs := cp.NowMs()
	cp.boot.Tick(nowMs)
	if err := cp.svc.Tick(ctx); err != nil {
		return WrapError("Loop", err)
	}
	cp.tickHeartbeat(nowMs)
	if cp.observer != nil {
		for name, depth := range cp.manager.Depths() {
			cp.observer.ObserveQueueDepth(name, depth)
		}
	}
	return nil
}

// tickHeartbeat enqueues a periodic Heartbeat once BootNotification has
// been Accepted and the negotiated interval has elapsed since the last
// one was sent (§4.12). It's suppressed while a Request is in flight
// (§4.3: "heartbeats are suppressed while a request is in flight") by
// simply not advancing nextHeartbeatMs until one is actually enqueued, so
// the next idle tick retries rather than drifting the schedule.
func (cp *ChargePoint) tickHeartbeat(nowMs int64) {
	if !cp.boot.Accepted() {
		return
	}
	if !cp.heartbeatArmed {
		// First tick after acceptance: arm the schedule rather than firing
		// immediately, so "every interval" is measured from acceptance.
		cp.nextHeartbeatMs = nowMs + cp.boot.HeartbeatInterval()*1000
		cp.heartbeatArmed = true
		return
	}
	if nowMs < cp.nextHeartbeatMs {
		return
	}
	if !cp.svc.Idle() {
		return
	}
	cp.volatile.Enqueue(rpc.NewRequest(&operations.Heartbeat{Clock: cp.clock}))
	cp.nextHeartbeatMs = nowMs + cp.boot.HeartbeatInterval()*1000
}

// NowMs returns the engine's current uptime in milliseconds, the same
// time base Connector.Tick/PreAuthorize and boot.Service.Tick expect.
func (cp *ChargePoint) NowMs() int64 { return cp.clock.Uptime().Seconds * 1000 }

// Connector returns connector id's state machine, or false if id wasn't
// configured via Params.NumConnectors.
func (cp *ChargePoint) Connector(id uint32) (*connector.Connector, bool) {
	c, ok := cp.connectors[id]
	return c, ok
}

// Swipe resolves idTag against the authorization cache and, if accepted,
// pre-authorizes connectorID for the "tap card, then plug in" session
// order (§4.7). On a cache miss it sends an online Authorize and retries
// the pre-authorization once that settles, returning false immediately —
// callers observe the eventual outcome through the TxNotificationSink
// (EventAuthorized/EventAuthorizationRejected).
func (cp *ChargePoint) Swipe(connectorID uint32, idTag string) bool {
	c, ok := cp.connectors[connectorID]
	if !ok {
		return false
	}
	if _, cached := cp.authCache.Get(idTag); cached {
		return c.PreAuthorize(idTag, cp.NowMs())
	}

	op := &operations.Authorize{IdTag: idTag, Cache: cp.authCache, Clock: cp.clock}
	req := rpc.NewRequest(op)
	req.OnResponse(func(_ *rpc.Request, err error) {
		c.PreAuthorize(idTag, cp.NowMs())
	})
	cp.volatile.Enqueue(req)
	return false
}

// SampleMeterValue appends a meter reading to the Meter Value Store and
// enqueues a MeterValues Call reporting it (§4.6). transactionID is 0 if
// the sample isn't tied to connectorID's active transaction.
func (cp *ChargePoint) SampleMeterValue(connectorID uint32, context meterstore.Context, values []meterstore.SampledValue) error {
	c, ok := cp.connectors[connectorID]
	if !ok {
		return ErrNoSuchConnector
	}
	txNr := uint32(0)
	transactionID := 0
	if tx := c.Active(); tx != nil {
		txNr = tx.TxNr
		transactionID = tx.TransactionID
	}
	rec := operations.BuildMeterValueRecord(cp.clock.Now(), context, values)
	cp.meterStore.Append(connectorID, txNr, rec)
	cp.volatile.Enqueue(rpc.NewRequest(&operations.MeterValues{
		ConnectorID:   connectorID,
		TransactionID: transactionID,
		Records:       []meterstore.MeterValueRecord{rec},
	}))
	return nil
}

// Close persists configuration and closes the underlying Connection if it
// implements io.Closer, mirroring the teacher's StopAndDelete.
func (cp *ChargePoint) Close() error {
	if err := cp.config.Commit(); err != nil {
		cp.log.Warnf("chargepoint: commit config on close: %v", err)
	}
	type closer interface{ Close() error }
	if c, ok := cp.conn.(closer); ok {
		return c.Close()
	}
	return nil
}

// QueueDepths exposes every Request Queue's current depth for diagnostics.
func (cp *ChargePoint) QueueDepths() map[string]int { return cp.manager.Depths() }

// BootAccepted reports whether BootNotification has been Accepted.
func (cp *ChargePoint) BootAccepted() bool { return cp.boot.Accepted() }

// String implements fmt.Stringer for logging/debugging convenience.
func (cp *ChargePoint) String() string {
	return fmt.Sprintf("ChargePoint{connectors=%d, bootAccepted=%v}", len(cp.connectors), cp.boot.Accepted())
}
