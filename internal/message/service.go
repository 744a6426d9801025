package message

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/microocpp-go/engine/internal/constants"
	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/logging"
	"github.com/microocpp-go/engine/internal/queue"
	"github.com/microocpp-go/engine/internal/rpc"
	"github.com/microocpp-go/engine/internal/wal"
)

// Connection is the narrow transport surface the Service needs —
// mirrors internal/transport.Connection without importing that package,
// since transport has no reason to depend on message and Go import
// cycles are otherwise free to form between sibling internal packages
// wired together only at the root.
type Connection interface {
	SendText(ctx context.Context, msg string) error
	SetOnReceiveText(cb func(msg string))
	IsConnected() bool
	LastConnectedMs() int64
}

// inFlight tracks the single outstanding outbound Request the one-in-
// flight invariant (§3 Request, §5) allows.
type inFlight struct {
	req      *rpc.Request
	sentAtMs int64
}

// pendingIncoming tracks a Call this side is still answering — kept
// across Loop ticks when CreateResponse returns ResultPending (§4.2).
type pendingIncoming struct {
	messageID string
	op        rpc.Operation
}

// Service is the Message Service (C12): arbitrates internal/queue.Manager,
// serializes/deserializes OCPP-J frames, and drives exactly one in-flight
// Request at a time (§4.8).
type Service struct {
	conn     Connection
	manager  *queue.Manager
	registry *Registry
	clock    clockSource
	observer interfaces.Observer
	log      *logging.Logger
	wal      *wal.Store

	bootGated bool
	preBoot   *queue.FIFOQueue
	volatile  *queue.FIFOQueue

	current  *inFlight
	incoming []*pendingIncoming
	recvBuf  []string
}

// clockSource is the narrow time surface the Service needs: the current
// time in milliseconds for timeout bookkeeping. internal/clock.Clock
// satisfies this through the small adapter callers pass in (see nowMsClock
// in chargepoint.go, which reports the clock's Uptime).
type clockSource interface {
	NowMs() int64
}

// Config configures a new Service.
type Config struct {
	Connection Connection
	Manager    *queue.Manager
	Registry   *Registry
	Clock      clockSource
	Observer   interfaces.Observer
	// PreBootQueue is the opNr=0 queue the Service drains exclusively
	// until BootGated is cleared (§4.3 pre-boot gating).
	PreBootQueue *queue.FIFOQueue
	// VolatileQueue backs EnqueueVolatile (operations.Enqueuer), the
	// default non-transaction queue (opNr=1).
	VolatileQueue *queue.FIFOQueue
	// WAL persists write-ahead Operations (StartTransaction,
	// StopTransaction) once their Request reaches the front of its Queue,
	// so a reboot mid-exchange can recover and re-enqueue them (§4.4).
	WAL *wal.Store
}

// New creates a Service wired to its collaborators. BootGated starts
// true: callers clear it via SetBootGated(false) once BootNotification is
// Accepted.
func New(config Config) *Service {
	observer := config.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	s := &Service{
		conn:      config.Connection,
		manager:   config.Manager,
		registry:  config.Registry,
		clock:     config.Clock,
		observer:  observer,
		log:       logging.Default(),
		bootGated: true,
		preBoot:   config.PreBootQueue,
		volatile:  config.VolatileQueue,
		wal:       config.WAL,
	}
	if config.Connection != nil {
		config.Connection.SetOnReceiveText(s.onReceiveText)
	}
	return s
}

// SetBootGated toggles pre-boot gating (§4.3: "After Accepted, it
// activates other queues").
func (s *Service) SetBootGated(gated bool) { s.bootGated = gated }

// BootGated reports whether only the pre-boot queue is currently drained.
func (s *Service) BootGated() bool { return s.bootGated }

// onReceiveText buffers an inbound frame for the next Tick to process,
// keeping actual handling on the caller's Loop goroutine per spec.md §5.
func (s *Service) onReceiveText(msg string) {
	s.recvBuf = append(s.recvBuf, msg)
}

// Tick drives one iteration: process any buffered inbound frames, check
// the in-flight Request for a timeout, and if nothing is in flight, start
// the next Request the Queue arbitration picks. Never blocks; returns
// immediately whether or not work was done (§5).
func (s *Service) Tick(ctx context.Context) error {
	buf := s.recvBuf
	s.recvBuf = nil
	for _, raw := range buf {
		s.handleIncomingFrame(raw)
	}

	s.driveIncoming()

	if s.current != nil {
		if s.checkTimeout() {
			return nil
		}
		return nil
	}

	return s.sendNext(ctx)
}

func (s *Service) sendNext(ctx context.Context) error {
	// Offline: leave every Request sitting in its Queue unfetched rather
	// than pulling one off and stalling it as "in flight" — a Request
	// only starts its timeout clock once actually sent (§4.3 "requests
	// remain queued" while offline).
	if s.conn == nil || !s.conn.IsConnected() {
		return nil
	}

	req := s.nextRequest()
	if req == nil {
		return nil
	}

	payload, err := req.Operation.CreateRequest()
	if err != nil {
		s.log.Errorf("message: CreateRequest failed for %s: %v", req.Operation.Type(), err)
		req.Settle(fmt.Errorf("message: %w", err))
		return nil
	}

	s.writeAhead(req)

	frame, err := rpc.EncodeCall(rpc.CallFrame{MessageID: req.MessageID, Action: req.Operation.Type(), Payload: payload})
	if err != nil {
		req.Settle(fmt.Errorf("message: encode: %w", err))
		return nil
	}

	if err := s.conn.SendText(ctx, string(frame)); err != nil {
		s.log.Warnf("message: send %s: %v", req.Operation.Type(), err)
		req.Settle(fmt.Errorf("message: send: %w", err))
		return nil
	}

	req.MarkSent()
	s.observer.ObserveRequestSent(req.Operation.Type())
	s.current = &inFlight{req: req, sentAtMs: s.nowMs()}
	return nil
}

// writeAhead persists req's write-ahead payload once its Request reaches
// the front of its Queue, if a WAL is wired and its Operation opts in
// (§4.4: "written on initiation"). A write failure is logged, not fatal —
// it only weakens recovery after an ensuing reboot.
func (s *Service) writeAhead(req *rpc.Request) {
	if s.wal == nil {
		return
	}
	waOp, ok := req.Operation.(rpc.WriteAheadOperation)
	if !ok {
		return
	}
	payload, err := waOp.WriteAheadPayload()
	if err != nil {
		s.log.Errorf("message: write-ahead payload for %s: %v", req.Operation.Type(), err)
		return
	}
	if err := s.wal.Write(req.OpNr, req.Operation.Type(), payload); err != nil {
		s.log.Errorf("message: write-ahead log for %s (opNr=%d): %v", req.Operation.Type(), req.OpNr, err)
	}
}

// clearWriteAhead removes req's write-ahead slot once it has settled in a
// way that won't be retried from the beginning (success, or a CallError an
// Operation chose to treat as data-loss-acknowledged) — never on a
// timeout, since the persisted slot is exactly what permits recovery after
// a timeout-then-reboot.
func (s *Service) clearWriteAhead(req *rpc.Request) {
	if s.wal == nil {
		return
	}
	if _, ok := req.Operation.(rpc.WriteAheadOperation); !ok {
		return
	}
	if err := s.wal.Clear(req.OpNr); err != nil {
		s.log.Warnf("message: clear write-ahead slot for %s (opNr=%d): %v", req.Operation.Type(), req.OpNr, err)
	}
}

// nextRequest honors pre-boot gating: while gated, only the pre-boot
// queue is consulted, regardless of what Manager would otherwise pick.
func (s *Service) nextRequest() *rpc.Request {
	if s.bootGated {
		if s.preBoot == nil {
			return nil
		}
		return s.preBoot.FetchFront()
	}
	return s.manager.FetchNext()
}

func (s *Service) nowMs() int64 {
	if s.clock == nil {
		return 0
	}
	return s.clock.NowMs()
}

func (s *Service) checkTimeout() bool {
	elapsedMs := s.nowMs() - s.current.sentAtMs
	if elapsedMs < s.current.req.TimeoutPeriod.Milliseconds() {
		return false
	}
	req := s.current.req
	req.MarkTimedOut()
	s.observer.ObserveRequestTimeout(req.Operation.Type())
	s.log.Warnf("message: %s (messageId=%s) timed out after %dms", req.Operation.Type(), req.MessageID, elapsedMs)
	req.Settle(fmt.Errorf("message: %s timed out", req.Operation.Type()))
	s.current = nil
	return true
}

func (s *Service) handleIncomingFrame(raw string) {
	call, result, callErr, err := rpc.Decode([]byte(raw))
	if err != nil {
		s.log.Warnf("message: discarding unparseable frame: %v", err)
		return
	}

	switch {
	case call != nil:
		s.handleCall(call)
	case result != nil:
		s.handleCallResult(result)
	case callErr != nil:
		s.handleCallError(callErr)
	}
}

func (s *Service) handleCallResult(result *rpc.CallResultFrame) {
	if s.current == nil || s.current.req.MessageID != result.MessageID {
		s.log.Warnf("message: CallResult for unknown/mismatched messageId %s", result.MessageID)
		return
	}
	req := s.current.req
	sentAtMs := s.current.sentAtMs
	s.current = nil

	err := req.Operation.ProcessResponse(result.Payload)
	s.observer.ObserveRequestCompleted(req.Operation.Type(), uint64(s.nowMs()-sentAtMs)*1_000_000, err == nil)
	if err == nil {
		s.clearWriteAhead(req)
	}
	req.Settle(err)
}

func (s *Service) handleCallError(callErr *rpc.CallErrorFrame) {
	if s.current == nil || s.current.req.MessageID != callErr.MessageID {
		s.log.Warnf("message: CallError for unknown/mismatched messageId %s", callErr.MessageID)
		return
	}
	req := s.current.req
	s.current = nil

	s.observer.ObserveRequestCompleted(req.Operation.Type(), 0, false)
	if errHandler, ok := req.Operation.(callErrorHandler); ok {
		errHandler.ProcessCallError(rpc.ErrorKind(callErr.Code), callErr.Description)
		s.clearWriteAhead(req)
		req.Settle(nil)
		return
	}
	req.Settle(fmt.Errorf("message: %s CallError %s: %s", req.Operation.Type(), callErr.Code, callErr.Description))
}

// callErrorHandler is implemented by Operations that need to react to a
// CallError differently than a generic failure — currently only
// StopTransaction (§4.6's data-loss-acknowledged path).
type callErrorHandler interface {
	ProcessCallError(code rpc.ErrorKind, description string)
}

func (s *Service) handleCall(call *rpc.CallFrame) {
	op, ok := s.registry.Resolve(call.Action)
	if !ok {
		if handler, ok := s.registry.ResolveFunc(call.Action); ok {
			op = &funcOperation{operationType: call.Action, handler: handler}
		} else {
			s.replyError(call.MessageID, rpc.NotImplemented, fmt.Sprintf("unknown action %q", call.Action))
			return
		}
	}

	if errKind := op.ProcessRequest(call.Payload); errKind != nil {
		s.replyError(call.MessageID, *errKind, fmt.Sprintf("%s rejected", call.Action))
		return
	}

	s.incoming = append(s.incoming, &pendingIncoming{messageID: call.MessageID, op: op})
	s.driveIncoming()
}

// driveIncoming re-invokes CreateResponse for every pending incoming Call,
// completing those that settle (Success/Failure) and leaving Pending ones
// for the next Tick (§4.2).
func (s *Service) driveIncoming() {
	remaining := s.incoming[:0]
	for _, pending := range s.incoming {
		payload, result := pending.op.CreateResponse()
		switch result {
		case rpc.ResultPending:
			remaining = append(remaining, pending)
		case rpc.ResultSuccess:
			s.replyResult(pending.messageID, payload)
		case rpc.ResultFailure:
			s.replyError(pending.messageID, rpc.GenericError, fmt.Sprintf("%s failed", pending.op.Type()))
		}
	}
	s.incoming = remaining
}

func (s *Service) replyResult(messageID string, payload json.RawMessage) {
	frame, err := rpc.EncodeCallResult(rpc.CallResultFrame{MessageID: messageID, Payload: payload})
	if err != nil {
		s.log.Errorf("message: encode CallResult: %v", err)
		return
	}
	s.send(frame)
}

func (s *Service) replyError(messageID string, code rpc.ErrorKind, description string) {
	frame, err := rpc.EncodeCallError(rpc.CallErrorFrame{MessageID: messageID, Code: code, Description: description})
	if err != nil {
		s.log.Errorf("message: encode CallError: %v", err)
		return
	}
	s.send(frame)
}

func (s *Service) send(frame []byte) {
	if s.conn == nil {
		return
	}
	if err := s.conn.SendText(context.Background(), string(frame)); err != nil {
		s.log.Warnf("message: send reply: %v", err)
	}
}

// EnqueueVolatile implements operations.Enqueuer: it wraps op in a fresh
// Request and appends it to the volatile queue, used by TriggerMessage's
// Pending follow-up path (§4.13).
func (s *Service) EnqueueVolatile(op rpc.Operation) {
	if s.volatile == nil {
		return
	}
	s.volatile.Enqueue(rpc.NewRequest(op))
}

// Idle reports whether no Request is currently in flight — used to
// suppress periodic Heartbeats while a Call is outstanding (§4.3/§4.12).
func (s *Service) Idle() bool { return s.current == nil }

// QueueDepths exposes internal/queue.Manager.Depths for Observer wiring.
func (s *Service) QueueDepths() map[string]int {
	return s.manager.Depths()
}

// Offline reports whether the Connection has gone without a reply long
// enough to be considered degraded (§4.3: "no reply within 20s").
func (s *Service) Offline() bool {
	if s.conn == nil {
		return true
	}
	if !s.conn.IsConnected() {
		return true
	}
	return s.nowMs()-s.conn.LastConnectedMs() > constants.OfflineGraceDuration.Milliseconds()
}

type noopObserver struct{}

func (noopObserver) ObserveRequestSent(string)                      {}
func (noopObserver) ObserveRequestCompleted(string, uint64, bool)    {}
func (noopObserver) ObserveRequestTimeout(string)                   {}
func (noopObserver) ObserveQueueDepth(string, int)                  {}

var _ interfaces.Observer = noopObserver{}
