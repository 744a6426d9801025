package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCallRoundTrip(t *testing.T) {
	raw, err := EncodeCall(CallFrame{MessageID: "abc", Action: "Heartbeat", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	call, result, callErr, err := Decode(raw)
	require.NoError(t, err)
	require.Nil(t, result)
	require.Nil(t, callErr)
	require.NotNil(t, call)
	require.Equal(t, "abc", call.MessageID)
	require.Equal(t, "Heartbeat", call.Action)
}

func TestEncodeDecodeCallResultRoundTrip(t *testing.T) {
	raw, err := EncodeCallResult(CallResultFrame{MessageID: "xyz", Payload: json.RawMessage(`{"status":"Accepted"}`)})
	require.NoError(t, err)

	call, result, callErr, err := Decode(raw)
	require.NoError(t, err)
	require.Nil(t, call)
	require.Nil(t, callErr)
	require.NotNil(t, result)
	require.Equal(t, "xyz", result.MessageID)
	require.JSONEq(t, `{"status":"Accepted"}`, string(result.Payload))
}

func TestEncodeDecodeCallErrorRoundTrip(t *testing.T) {
	raw, err := EncodeCallError(CallErrorFrame{
		MessageID:   "err1",
		Code:        FormationViolation,
		Description: "bad payload",
	})
	require.NoError(t, err)

	call, result, callErr, err := Decode(raw)
	require.NoError(t, err)
	require.Nil(t, call)
	require.Nil(t, result)
	require.NotNil(t, callErr)
	require.Equal(t, FormationViolation, callErr.Code)
	require.Equal(t, "bad payload", callErr.Description)
}

func TestDecodeRejectsTooShortFrame(t *testing.T) {
	_, _, _, err := Decode([]byte(`[2,"id"]`))
	require.Error(t, err)
}

func TestDecodeRejectsUnknownMessageType(t *testing.T) {
	_, _, _, err := Decode([]byte(`[9,"id","x"]`))
	require.Error(t, err)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, _, _, err := Decode([]byte(`not json`))
	require.Error(t, err)
}
