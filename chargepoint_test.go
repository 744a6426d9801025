package microocpp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microocpp-go/engine/internal/connector"
	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/meterstore"
	"github.com/microocpp-go/engine/internal/rpc"
)

func newTestChargePoint(t *testing.T, numConnectors uint32, sink interfaces.TxNotificationSink) (*ChargePoint, *MockConnection) {
	t.Helper()
	conn := NewMockConnection()
	cp, err := New(Params{
		FS:                      NewMockFileSystem(),
		Connection:              conn,
		ChargePointVendor:       "acme",
		ChargePointModel:        "test-evse",
		ChargePointSerialNumber: "SN-1",
		FirmwareVersion:         "1.0.0",
		CurrentVersion:          "1.0.0",
		NumConnectors:           numConnectors,
		Sink:                    sink,
	})
	require.NoError(t, err)
	require.NoError(t, cp.Start())
	return cp, conn
}

// lastCallAction decodes the most recently sent frame as a Call and
// returns its action and messageId, failing the test if none was sent or
// the frame isn't a Call.
func lastCallAction(t *testing.T, conn *MockConnection) (action, messageID string) {
	t.Helper()
	sent := conn.Sent()
	require.NotEmpty(t, sent)
	call, result, callErr, err := rpc.Decode([]byte(sent[len(sent)-1]))
	require.NoError(t, err)
	require.Nil(t, result)
	require.Nil(t, callErr)
	require.NotNil(t, call)
	return call.Action, call.MessageID
}

func TestNewRejectsMissingFS(t *testing.T) {
	_, err := New(Params{Connection: NewMockConnection()})
	require.Error(t, err)
}

func TestNewRejectsMissingConnection(t *testing.T) {
	_, err := New(Params{FS: NewMockFileSystem()})
	require.Error(t, err)
}

func TestStartTwiceFails(t *testing.T) {
	cp, _ := newTestChargePoint(t, 1, nil)
	require.ErrorIs(t, cp.Start(), ErrAlreadyStarted)
}

func TestBootHandshakeAccepts(t *testing.T) {
	cp, conn := newTestChargePoint(t, 1, nil)
	ctx := context.Background()

	require.NoError(t, cp.Loop(ctx))
	action, messageID := lastCallAction(t, conn)
	require.Equal(t, "BootNotification", action)
	require.False(t, cp.BootAccepted())

	resp, err := rpc.EncodeCallResult(rpc.CallResultFrame{
		MessageID: messageID,
		Payload:   []byte(`{"status":"Accepted","interval":60,"currentTime":"2026-01-01T00:00:00Z"}`),
	})
	require.NoError(t, err)
	conn.Deliver(string(resp))

	require.NoError(t, cp.Loop(ctx))
	require.True(t, cp.BootAccepted())
}

func bootAccept(t *testing.T, cp *ChargePoint, conn *MockConnection) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, cp.Loop(ctx))
	_, messageID := lastCallAction(t, conn)
	resp, err := rpc.EncodeCallResult(rpc.CallResultFrame{
		MessageID: messageID,
		Payload:   []byte(`{"status":"Accepted","interval":60,"currentTime":"2026-01-01T00:00:00Z"}`),
	})
	require.NoError(t, err)
	conn.Deliver(string(resp))
	require.NoError(t, cp.Loop(ctx))
	require.True(t, cp.BootAccepted())
}

func TestConnectorUnknownIDNotRegistered(t *testing.T) {
	cp, _ := newTestChargePoint(t, 1, nil)
	_, ok := cp.Connector(2)
	require.False(t, ok)
}

func TestSwipeCacheHitPreAuthorizesAndStartsTransaction(t *testing.T) {
	var events []string
	sink := recorderSink(func(connectorID uint32, event interfaces.TxNotificationEvent, detail string) {
		events = append(events, string(event))
	})
	cp, conn := newTestChargePoint(t, 1, sink)
	bootAccept(t, cp, conn)

	cp.authCache.Put("GOODTAG", "Accepted", interfaces.RawTimestamp{})

	require.True(t, cp.Swipe(1, "GOODTAG"))

	c, ok := cp.Connector(1)
	require.True(t, ok)
	c.Tick(connector.Inputs{Plugged: true, EVReady: true, EVSEReady: true, Operative: true}, cp.NowMs())

	require.NotNil(t, c.Active())

	// The connector's StatusNotification(Charging) sits in the volatile
	// queue, ahead of the transaction queue, so it is sent and answered
	// first.
	ctx := context.Background()
	require.NoError(t, cp.Loop(ctx))
	_, statusID := lastCallAction(t, conn)
	conn.Deliver(`[3,"` + statusID + `",{}]`)
	require.NoError(t, cp.Loop(ctx))

	action, messageID := lastCallAction(t, conn)
	require.Equal(t, "StartTransaction", action)

	// StartTx is reported once the server accepts the StartTransaction.
	conn.Deliver(`[3,"` + messageID + `",{"transactionId":1,"idTagInfo":{"status":"Accepted"}}]`)
	require.NoError(t, cp.Loop(ctx))
	require.Contains(t, events, "StartTx")
}

func TestSwipeUnknownConnectorReturnsFalse(t *testing.T) {
	cp, _ := newTestChargePoint(t, 1, nil)
	require.False(t, cp.Swipe(99, "ANYTAG"))
}

func TestSampleMeterValueEnqueuesRequest(t *testing.T) {
	cp, conn := newTestChargePoint(t, 1, nil)
	bootAccept(t, cp, conn)

	err := cp.SampleMeterValue(1, meterstore.ContextSamplePeriodic, []meterstore.SampledValue{
		{Value: "100", Measurand: "Energy.Active.Import.Register", Unit: "Wh"},
	})
	require.NoError(t, err)

	require.NoError(t, cp.Loop(context.Background()))
	action, _ := lastCallAction(t, conn)
	require.Equal(t, "MeterValues", action)
}

func TestSampleMeterValueUnknownConnector(t *testing.T) {
	cp, _ := newTestChargePoint(t, 1, nil)
	err := cp.SampleMeterValue(7, meterstore.ContextOther, nil)
	require.ErrorIs(t, err, ErrNoSuchConnector)
}

func TestQueueDepthsIncludesTransactionQueue(t *testing.T) {
	cp, _ := newTestChargePoint(t, 2, nil)
	depths := cp.QueueDepths()
	require.Contains(t, depths, "pre-boot")
	require.Contains(t, depths, "volatile")
	require.Contains(t, depths, "tx")
}

func TestCloseCommitsConfig(t *testing.T) {
	cp, _ := newTestChargePoint(t, 1, nil)
	require.NoError(t, cp.Close())
}

func TestStringIncludesConnectorCount(t *testing.T) {
	cp, _ := newTestChargePoint(t, 3, nil)
	require.Contains(t, cp.String(), "connectors=3")
}

// TestRestartMidStartTransactionReSendsSameCall exercises the write-ahead
// recovery path: a StartTransaction sent but never confirmed survives a
// restart and is re-sent referencing the same txNr rather than a fresh one
// (§8 Testable Property 5 / Scenario S2).
func TestRestartMidStartTransactionReSendsSameCall(t *testing.T) {
	fs := NewMockFileSystem()

	conn1 := NewMockConnection()
	cp1, err := New(Params{
		FS:                fs,
		Connection:        conn1,
		ChargePointVendor: "acme",
		ChargePointModel:  "test-evse",
		CurrentVersion:    "1.0.0",
		NumConnectors:     1,
	})
	require.NoError(t, err)
	require.NoError(t, cp1.Start())
	bootAccept(t, cp1, conn1)

	cp1.authCache.Put("GOODTAG", "Accepted", interfaces.RawTimestamp{})
	require.True(t, cp1.Swipe(1, "GOODTAG"))
	c1, ok := cp1.Connector(1)
	require.True(t, ok)
	c1.Tick(connector.Inputs{Plugged: true, EVReady: true, EVSEReady: true, Operative: true}, cp1.NowMs())

	// The StatusNotification(Charging) queued ahead of it goes out and is
	// answered first.
	require.NoError(t, cp1.Loop(context.Background()))
	_, statusID := lastCallAction(t, conn1)
	conn1.Deliver(`[3,"` + statusID + `",{}]`)
	require.NoError(t, cp1.Loop(context.Background()))
	action, _ := lastCallAction(t, conn1)
	require.Equal(t, "StartTransaction", action)
	tx := c1.Active()
	require.NotNil(t, tx)

	// cp1 "crashes" here: no CallResult is ever delivered.

	conn2 := NewMockConnection()
	cp2, err := New(Params{
		FS:                fs,
		Connection:        conn2,
		ChargePointVendor: "acme",
		ChargePointModel:  "test-evse",
		CurrentVersion:    "1.0.0",
		NumConnectors:     1,
	})
	require.NoError(t, err)
	require.NoError(t, cp2.Start())
	bootAccept(t, cp2, conn2)

	require.NoError(t, cp2.Loop(context.Background()))
	action2, _ := lastCallAction(t, conn2)
	require.Equal(t, "StartTransaction", action2)

	sent := conn2.Sent()
	call, _, _, err := rpc.Decode([]byte(sent[len(sent)-1]))
	require.NoError(t, err)
	var payload struct {
		ConnectorID uint32 `json:"connectorId"`
	}
	require.NoError(t, json.Unmarshal(call.Payload, &payload))
	require.Equal(t, uint32(1), payload.ConnectorID)

	c2, ok := cp2.Connector(1)
	require.True(t, ok)
	require.NotNil(t, c2.Active())
	require.Equal(t, tx.TxNr, c2.Active().TxNr, "recovery must reuse the original txNr, not allocate a new one")
}

// TestPeriodicHeartbeatAfterAcceptance confirms a Heartbeat is not sent
// before the negotiated interval elapses after BootNotification Accepted
// (§4.12), and is enqueued and sent once it has.
func TestPeriodicHeartbeatAfterAcceptance(t *testing.T) {
	cp, conn := newTestChargePoint(t, 1, nil)
	bootAccept(t, cp, conn)

	require.NoError(t, cp.Loop(context.Background()))
	action, _ := lastCallAction(t, conn)
	require.NotEqual(t, "Heartbeat", action, "heartbeat must not fire before the interval elapses")

	cp.nextHeartbeatMs = cp.NowMs()
	require.NoError(t, cp.Loop(context.Background())) // enqueues the Heartbeat
	require.NoError(t, cp.Loop(context.Background())) // sends it
	action, _ = lastCallAction(t, conn)
	require.Equal(t, "Heartbeat", action)
}

// recorderSink adapts a func literal to interfaces.TxNotificationSink so
// tests can assert on emitted events without a dedicated struct per case.
type recorderSink func(connectorID uint32, event interfaces.TxNotificationEvent, detail string)

func (r recorderSink) OnTxNotification(connectorID uint32, event interfaces.TxNotificationEvent, detail string) {
	r(connectorID, event, detail)
}
