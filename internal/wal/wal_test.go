package wal

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microocpp-go/engine/internal/fsadapter"
)

func payload(connectorID, txNr uint32) json.RawMessage {
	b, _ := json.Marshal(struct {
		ConnectorID uint32 `json:"connectorId"`
		TxNr        uint32 `json:"txNr"`
	}{connectorID, txNr})
	return b
}

func TestWriteAndRecoverRoundTrip(t *testing.T) {
	s := NewStore(fsadapter.NewMemory())
	require.NoError(t, s.Write(11, "StartTransaction", payload(1, 3)))

	recovered, err := s.Recover()
	require.NoError(t, err)
	require.Equal(t, Record{OperationType: "StartTransaction", ConnectorID: 1, TxNr: 3}, recovered[11])
}

func TestWriteOverwritesSameOpNr(t *testing.T) {
	s := NewStore(fsadapter.NewMemory())
	require.NoError(t, s.Write(11, "StartTransaction", payload(1, 3)))
	require.NoError(t, s.Write(11, "StopTransaction", payload(1, 3)))

	recovered, err := s.Recover()
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, "StopTransaction", recovered[11].OperationType)
}

func TestClearRemovesSlot(t *testing.T) {
	s := NewStore(fsadapter.NewMemory())
	require.NoError(t, s.Write(11, "StartTransaction", payload(1, 3)))
	require.NoError(t, s.Clear(11))

	recovered, err := s.Recover()
	require.NoError(t, err)
	require.Empty(t, recovered)
}

func TestRecoverDiscardsUnreadableSlot(t *testing.T) {
	fs := fsadapter.NewMemory()
	f, err := fs.Open("op-5.jsn", os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	require.NoError(t, err)
	_, err = f.Write([]byte("not json"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s := NewStore(fs)
	recovered, err := s.Recover()
	require.NoError(t, err)
	require.Empty(t, recovered)
}

func TestRecoverIgnoresNilFileSystem(t *testing.T) {
	s := NewStore(nil)
	recovered, err := s.Recover()
	require.NoError(t, err)
	require.Empty(t, recovered)
	require.NoError(t, s.Write(1, "StartTransaction", payload(1, 1)))
	require.NoError(t, s.Clear(1))
}
