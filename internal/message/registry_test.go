package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microocpp-go/engine/internal/rpc"
)

type stubOp struct{ typ string }

func (s *stubOp) Type() string                                    { return s.typ }
func (s *stubOp) CreateRequest() (json.RawMessage, error)         { return json.RawMessage(`{}`), nil }
func (s *stubOp) ProcessResponse(payload json.RawMessage) error   { return nil }
func (s *stubOp) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind { return nil }
func (s *stubOp) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	return json.RawMessage(`{}`), rpc.ResultSuccess
}

func TestRegistryResolveOperation(t *testing.T) {
	r := NewRegistry()
	r.RegisterOperation("Heartbeat", func() rpc.Operation { return &stubOp{typ: "Heartbeat"} })

	op, ok := r.Resolve("Heartbeat")
	require.True(t, ok)
	require.Equal(t, "Heartbeat", op.Type())

	_, ok = r.Resolve("Unknown")
	require.False(t, ok)
}

func TestRegistryFuncHandlerSuccess(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("VendorExtra", func(payload json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})

	handler, ok := r.ResolveFunc("VendorExtra")
	require.True(t, ok)

	op := &funcOperation{operationType: "VendorExtra", handler: handler}
	require.Nil(t, op.ProcessRequest(json.RawMessage(`{}`)))

	payload, result := op.CreateResponse()
	require.Equal(t, rpc.ResultSuccess, result)
	require.JSONEq(t, `{"ok":true}`, string(payload))
}

func TestFuncOperationMapsHandlerErrorToGenericError(t *testing.T) {
	handler := func(payload json.RawMessage) (json.RawMessage, error) {
		return nil, require.AnError
	}
	op := &funcOperation{operationType: "VendorExtra", handler: handler}
	kind := op.ProcessRequest(json.RawMessage(`{}`))
	require.NotNil(t, kind)
	require.Equal(t, rpc.GenericError, *kind)
}
