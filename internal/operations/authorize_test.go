package operations

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microocpp-go/engine/internal/authcache"
	"github.com/microocpp-go/engine/internal/interfaces"
)

func TestAuthorizeProcessResponseAcceptedCachesResult(t *testing.T) {
	cache, err := authcache.New(8, func() interfaces.RawTimestamp {
		return interfaces.RawTimestamp{Seconds: 0, Anchored: true}
	})
	require.NoError(t, err)

	a := &Authorize{IdTag: "ABC123", Cache: cache}
	payload, err := a.CreateRequest()
	require.NoError(t, err)
	require.JSONEq(t, `{"idTag":"ABC123"}`, string(payload))

	require.NoError(t, a.ProcessResponse(json.RawMessage(`{"idTagInfo":{"status":"Accepted"}}`)))
	require.True(t, a.Accepted())

	status, ok := cache.Get("ABC123")
	require.True(t, ok)
	require.Equal(t, "Accepted", status)
}

func TestAuthorizeResolveOfflineFallsBackToCache(t *testing.T) {
	cache, err := authcache.New(8, func() interfaces.RawTimestamp {
		return interfaces.RawTimestamp{Seconds: 0, Anchored: true}
	})
	require.NoError(t, err)
	cache.Put("ABC123", "Accepted", interfaces.RawTimestamp{})

	a := &Authorize{IdTag: "ABC123", Cache: cache}
	require.True(t, a.ResolveOffline())
}

func TestAuthorizeResolveOfflineMissIsFalse(t *testing.T) {
	a := &Authorize{IdTag: "UNKNOWN", Cache: nil}
	require.False(t, a.ResolveOffline())
}
