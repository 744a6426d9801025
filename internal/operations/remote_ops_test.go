package operations

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microocpp-go/engine/internal/rpc"
)

type fakeConnector struct {
	beginResult bool
	endResult   bool
	lastIdTag   string
	lastReason  string
}

func (f *fakeConnector) BeginTransaction(idTag string) bool {
	f.lastIdTag = idTag
	return f.beginResult
}

func (f *fakeConnector) EndTransaction(reason string) bool {
	f.lastReason = reason
	return f.endResult
}

func TestRemoteStartTransactionAccepted(t *testing.T) {
	conn := &fakeConnector{beginResult: true}
	r := &RemoteStartTransaction{Connector: conn}

	require.Nil(t, r.ProcessRequest(json.RawMessage(`{"connectorId":1,"idTag":"ABC"}`)))
	require.Equal(t, "ABC", conn.lastIdTag)

	payload, result := r.CreateResponse()
	require.Equal(t, rpc.ResultSuccess, result)
	require.JSONEq(t, `{"status":"Accepted"}`, string(payload))
}

func TestRemoteStartTransactionRejectedWithoutIdTag(t *testing.T) {
	r := &RemoteStartTransaction{Connector: &fakeConnector{}}
	kind := r.ProcessRequest(json.RawMessage(`{"connectorId":1,"idTag":""}`))
	require.NotNil(t, kind)
	require.Equal(t, rpc.PropertyConstraintViolation, *kind)
}

func TestRemoteStopTransactionAccepted(t *testing.T) {
	conn := &fakeConnector{endResult: true}
	r := &RemoteStopTransaction{Connector: conn}
	require.Nil(t, r.ProcessRequest(json.RawMessage(`{"transactionId":5}`)))
	require.Equal(t, "Remote", conn.lastReason)

	payload, result := r.CreateResponse()
	require.Equal(t, rpc.ResultSuccess, result)
	require.JSONEq(t, `{"status":"Accepted"}`, string(payload))
}

func TestTriggerMessagePendingThenSuccess(t *testing.T) {
	var enqueued rpc.Operation
	queue := enqueueFunc(func(op rpc.Operation) { enqueued = op })

	tm := &TriggerMessage{
		Queue: queue,
		BuildFollowUp: func(requestedMessage string, connectorID uint32) rpc.Operation {
			return &StatusNotification{ConnectorID: connectorID, Status: "Available"}
		},
	}
	require.Nil(t, tm.ProcessRequest(json.RawMessage(`{"requestedMessage":"StatusNotification","connectorId":1}`)))

	_, result := tm.CreateResponse()
	require.Equal(t, rpc.ResultPending, result)
	require.NotNil(t, enqueued)

	payload, result := tm.CreateResponse()
	require.Equal(t, rpc.ResultSuccess, result)
	require.JSONEq(t, `{"status":"Accepted"}`, string(payload))
}

type enqueueFunc func(op rpc.Operation)

func (f enqueueFunc) EnqueueVolatile(op rpc.Operation) { f(op) }
