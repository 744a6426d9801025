package microocpp

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockConnectionRecordsSent(t *testing.T) {
	conn := NewMockConnection()
	require.True(t, conn.IsConnected())

	require.NoError(t, conn.SendText(context.Background(), `[2,"1","Heartbeat",{}]`))
	require.Equal(t, []string{`[2,"1","Heartbeat",{}]`}, conn.Sent())
}

func TestMockConnectionDeliverInvokesCallback(t *testing.T) {
	conn := NewMockConnection()
	var received string
	conn.SetOnReceiveText(func(msg string) { received = msg })

	conn.Deliver(`[3,"1",{}]`)
	require.Equal(t, `[3,"1",{}]`, received)
}

func TestMockConnectionSetConnected(t *testing.T) {
	conn := NewMockConnection()
	conn.SetConnected(false, 42)
	require.False(t, conn.IsConnected())
	require.Equal(t, int64(42), conn.LastConnectedMs())
}

func TestMockFileSystemRoundTrip(t *testing.T) {
	fs := NewMockFileSystem()

	f, err := fs.Open("a.json", os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := fs.Open("a.json", os.O_RDONLY)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = f2.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestMockClockAdvancesOnPointerMutation(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, now := NewMockClock(start)

	require.Equal(t, int64(0), c.Uptime().Seconds)
	*now = now.Add(90 * time.Second)
	require.Equal(t, int64(90), c.Uptime().Seconds)
}
