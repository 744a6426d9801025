package message

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microocpp-go/engine/internal/fsadapter"
	"github.com/microocpp-go/engine/internal/queue"
	"github.com/microocpp-go/engine/internal/rpc"
	"github.com/microocpp-go/engine/internal/wal"
)

// stubWriteAheadOp is a minimal rpc.WriteAheadOperation stub for exercising
// the Service's write-ahead log wiring without a real txstore.Transaction.
type stubWriteAheadOp struct {
	typ         string
	errOnCreate error
}

func (s *stubWriteAheadOp) Type() string { return s.typ }
func (s *stubWriteAheadOp) CreateRequest() (json.RawMessage, error) {
	if s.errOnCreate != nil {
		return nil, s.errOnCreate
	}
	return json.RawMessage(`{}`), nil
}
func (s *stubWriteAheadOp) ProcessResponse(payload json.RawMessage) error { return nil }
func (s *stubWriteAheadOp) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind { return nil }
func (s *stubWriteAheadOp) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	return nil, rpc.ResultFailure
}
func (s *stubWriteAheadOp) WriteAheadPayload() (json.RawMessage, error) {
	return json.RawMessage(`{"connectorId":1,"txNr":3}`), nil
}
func (s *stubWriteAheadOp) RestoreFromPayload(payload json.RawMessage) error { return nil }

var _ rpc.WriteAheadOperation = (*stubWriteAheadOp)(nil)

type fakeConn struct {
	connected bool
	sent      []string
	cb        func(string)
}

func (f *fakeConn) SendText(ctx context.Context, msg string) error {
	f.sent = append(f.sent, msg)
	return nil
}
func (f *fakeConn) SetOnReceiveText(cb func(msg string)) { f.cb = cb }
func (f *fakeConn) IsConnected() bool                    { return f.connected }
func (f *fakeConn) LastConnectedMs() int64               { return 0 }

type fakeClock struct{ ms int64 }

func (f *fakeClock) NowMs() int64 { return f.ms }

func newTestService(t *testing.T, conn *fakeConn) (*Service, *queue.Manager, *queue.FIFOQueue, *queue.FIFOQueue) {
	t.Helper()
	s, manager, preBoot, volatile, _ := newTestServiceWithWAL(t, conn)
	return s, manager, preBoot, volatile
}

func newTestServiceWithWAL(t *testing.T, conn *fakeConn) (*Service, *queue.Manager, *queue.FIFOQueue, *queue.FIFOQueue, *wal.Store) {
	t.Helper()
	manager := queue.NewManager()
	preBoot := queue.NewPreBootQueue()
	volatile := queue.NewVolatileQueue()
	manager.Register(preBoot)
	manager.Register(volatile)
	walStore := wal.NewStore(fsadapter.NewMemory())

	s := New(Config{
		Connection:    conn,
		Manager:       manager,
		Registry:      NewRegistry(),
		Clock:         &fakeClock{},
		PreBootQueue:  preBoot,
		VolatileQueue: volatile,
		WAL:           walStore,
	})
	return s, manager, preBoot, volatile, walStore
}

func TestServiceStaysBootGatedUntilCleared(t *testing.T) {
	conn := &fakeConn{connected: true}
	s, _, preBoot, volatile := newTestService(t, conn)

	volatile.Enqueue(rpc.NewRequest(&stubOp{typ: "StatusNotification"}))
	require.NoError(t, s.Tick(context.Background()))
	require.Empty(t, conn.sent, "gated Service must not drain the volatile queue")

	preBoot.Enqueue(rpc.NewRequest(&stubOp{typ: "BootNotification"}))
	require.NoError(t, s.Tick(context.Background()))
	require.Len(t, conn.sent, 1)

	s.SetBootGated(false)
	require.NoError(t, s.Tick(context.Background()))
	require.Len(t, conn.sent, 1, "a Request is already in flight, so the volatile queue must still wait")
}

func TestServiceOfflineLeavesRequestsQueued(t *testing.T) {
	conn := &fakeConn{connected: false}
	s, _, preBoot, _ := newTestService(t, conn)
	s.SetBootGated(false)

	preBoot.Enqueue(rpc.NewRequest(&stubOp{typ: "BootNotification"}))
	require.NoError(t, s.Tick(context.Background()))

	require.Empty(t, conn.sent)
	require.Equal(t, 1, preBoot.Len(), "offline Service must not pop the Request off its Queue")
}

func TestServiceHandleCallResultSettlesInFlightRequest(t *testing.T) {
	conn := &fakeConn{connected: true}
	s, _, preBoot, _ := newTestService(t, conn)

	req := rpc.NewRequest(&stubOp{typ: "Heartbeat"})
	var settled bool
	req.OnResponse(func(_ *rpc.Request, err error) { settled = true; require.NoError(t, err) })
	preBoot.Enqueue(req)

	require.NoError(t, s.Tick(context.Background()))
	require.Len(t, conn.sent, 1)

	conn.cb(`[3,"` + req.MessageID + `",{}]`)
	require.NoError(t, s.Tick(context.Background()))
	require.True(t, settled)
}

func TestServiceUnknownActionRepliesNotImplemented(t *testing.T) {
	conn := &fakeConn{connected: true}
	s, _, _, _ := newTestService(t, conn)

	conn.cb(`[2,"abc","NotRegistered",{}]`)
	require.NoError(t, s.Tick(context.Background()))

	require.Len(t, conn.sent, 1)
	require.Contains(t, conn.sent[0], "NotImplemented")
}

func TestServiceWritesWriteAheadSlotOnSend(t *testing.T) {
	conn := &fakeConn{connected: true}
	s, _, preBoot, _, walStore := newTestServiceWithWAL(t, conn)

	req := rpc.NewRequest(&stubWriteAheadOp{typ: "StartTransaction"})
	req.OpNr = 11
	preBoot.Enqueue(req)

	require.NoError(t, s.Tick(context.Background()))
	require.Len(t, conn.sent, 1)

	records, err := walStore.Recover()
	require.NoError(t, err)
	rec, ok := records[11]
	require.True(t, ok, "write-ahead slot should exist once the Request was sent")
	require.Equal(t, "StartTransaction", rec.OperationType)
	require.Equal(t, uint32(1), rec.ConnectorID)
	require.Equal(t, uint32(3), rec.TxNr)
}

func TestServiceClearsWriteAheadSlotOnSuccessfulCallResult(t *testing.T) {
	conn := &fakeConn{connected: true}
	s, _, preBoot, _, walStore := newTestServiceWithWAL(t, conn)

	req := rpc.NewRequest(&stubWriteAheadOp{typ: "StartTransaction"})
	req.OpNr = 11
	preBoot.Enqueue(req)

	require.NoError(t, s.Tick(context.Background()))
	conn.cb(`[3,"` + req.MessageID + `",{}]`)
	require.NoError(t, s.Tick(context.Background()))

	records, err := walStore.Recover()
	require.NoError(t, err)
	_, ok := records[11]
	require.False(t, ok, "write-ahead slot should be cleared once settled successfully")
}

func TestServiceDoesNotClearWriteAheadSlotOnTimeout(t *testing.T) {
	conn := &fakeConn{connected: true}
	s, _, preBoot, _, walStore := newTestServiceWithWAL(t, conn)
	clk := &fakeClock{}
	s.clock = clk

	req := rpc.NewRequest(&stubWriteAheadOp{typ: "StartTransaction"})
	req.OpNr = 11
	req.TimeoutPeriod = 0
	preBoot.Enqueue(req)

	require.NoError(t, s.Tick(context.Background()))
	clk.ms = 1
	require.NoError(t, s.Tick(context.Background()))

	records, err := walStore.Recover()
	require.NoError(t, err)
	_, ok := records[11]
	require.True(t, ok, "write-ahead slot must survive a timeout so a reboot can still recover it")
}
