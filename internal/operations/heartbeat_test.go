package operations

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microocpp-go/engine/internal/clock"
)

func TestHeartbeatCreateRequestIsEmptyObject(t *testing.T) {
	h := &Heartbeat{}
	payload, err := h.CreateRequest()
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(payload))
}

func TestHeartbeatProcessResponseReanchorsClock(t *testing.T) {
	c := clock.New(clock.Config{})
	h := &Heartbeat{Clock: c}
	require.NoError(t, h.ProcessResponse(json.RawMessage(`{"currentTime":"2024-01-01T00:00:00Z"}`)))
	require.Equal(t, "2024-01-01T00:00:00Z", h.CurrentTime)
	require.True(t, c.IsAnchored())
}
