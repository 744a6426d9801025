package fsadapter

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryOpenRequiresCreateFlag(t *testing.T) {
	fs := NewMemory()
	_, err := fs.Open("missing.json", os.O_RDONLY)
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestMemoryWriteReadRoundTrip(t *testing.T) {
	fs := NewMemory()

	f, err := fs.Open("tx.json", os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := fs.Open("tx.json", os.O_RDONLY)
	require.NoError(t, err)
	defer f2.Close()
	data, err := io.ReadAll(f2)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestMemoryTruncateClearsExisting(t *testing.T) {
	fs := NewMemory()
	f, _ := fs.Open("a", os.O_CREATE|os.O_WRONLY)
	f.Write([]byte("0123456789"))
	f.Close()

	f2, _ := fs.Open("a", os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	f2.Write([]byte("ab"))
	f2.Close()

	f3, _ := fs.Open("a", os.O_RDONLY)
	data, _ := io.ReadAll(f3)
	require.Equal(t, "ab", string(data))
}

func TestMemoryStat(t *testing.T) {
	fs := NewMemory()
	f, _ := fs.Open("sized", os.O_CREATE|os.O_WRONLY)
	f.Write([]byte("12345"))
	f.Close()

	info, err := fs.Stat("sized")
	require.NoError(t, err)
	require.Equal(t, int64(5), info.Size())
}

func TestMemoryRemoveIsIdempotent(t *testing.T) {
	fs := NewMemory()
	require.NoError(t, fs.Remove("never-existed"))

	f, _ := fs.Open("gone", os.O_CREATE|os.O_WRONLY)
	f.Close()
	require.NoError(t, fs.Remove("gone"))
	require.NoError(t, fs.Remove("gone"))

	_, err := fs.Stat("gone")
	require.Error(t, err)
}

func TestMemoryWalkSortedByPrefix(t *testing.T) {
	fs := NewMemory()
	for _, name := range []string{"tx-0003", "tx-0001", "sd-config", "tx-0002"} {
		f, _ := fs.Open(name, os.O_CREATE|os.O_WRONLY)
		f.Close()
	}

	var seen []string
	err := fs.Walk("tx-", func(name string) error {
		seen = append(seen, name)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"tx-0001", "tx-0002", "tx-0003"}, seen)
}

func TestMemorySeek(t *testing.T) {
	fs := NewMemory()
	f, _ := fs.Open("s", os.O_CREATE|os.O_WRONLY)
	f.Write([]byte("0123456789"))

	pos, err := f.Seek(3, os.SEEK_SET)
	require.NoError(t, err)
	require.Equal(t, int64(3), pos)
	f.Write([]byte("XYZ"))
	f.Close()

	f2, _ := fs.Open("s", os.O_RDONLY)
	data, _ := io.ReadAll(f2)
	require.Equal(t, "012XYZ6789", string(data))
}
