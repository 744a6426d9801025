package transport

import "testing"

import "github.com/stretchr/testify/require"

func TestNewWebsocketConnectionDefaultsBufferAndTimeout(t *testing.T) {
	w := NewWebsocketConnection(Config{URL: "ws://localhost/ocpp"})
	require.False(t, w.IsConnected())
	require.Equal(t, int64(0), w.LastConnectedMs())
	require.Equal(t, cap(w.recvCh), 32)
}

func TestDrainDeliversBufferedFramesInOrder(t *testing.T) {
	w := NewWebsocketConnection(Config{URL: "ws://localhost/ocpp", RecvBufferSize: 4})
	w.recvCh <- "one"
	w.recvCh <- "two"

	var got []string
	w.SetOnReceiveText(func(msg string) { got = append(got, msg) })
	w.Drain()

	require.Equal(t, []string{"one", "two"}, got)
}

func TestDrainWithoutCallbackDoesNotBlock(t *testing.T) {
	w := NewWebsocketConnection(Config{URL: "ws://localhost/ocpp"})
	w.recvCh <- "unread"
	w.Drain() // no callback registered; must return immediately, frame stays buffered
	require.Equal(t, 1, len(w.recvCh))
}
