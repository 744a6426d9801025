package microocpp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microocpp-go/engine/internal/authcache"
	"github.com/microocpp-go/engine/internal/interfaces"
)

func newTestCache(t *testing.T) *authcache.Cache {
	t.Helper()
	c, err := authcache.New(4, func() interfaces.RawTimestamp {
		return interfaces.RawTimestamp{Seconds: 0, Anchored: false}
	})
	require.NoError(t, err)
	return c
}

func TestCacheAuthResolverMiss(t *testing.T) {
	r := &cacheAuthResolver{cache: newTestCache(t)}
	accepted, status := r.Resolve("UNKNOWNTAG")
	require.False(t, accepted)
	require.Equal(t, "Invalid", status)
}

func TestCacheAuthResolverAcceptedHit(t *testing.T) {
	cache := newTestCache(t)
	cache.Put("GOODTAG", "Accepted", interfaces.RawTimestamp{})
	r := &cacheAuthResolver{cache: cache}

	accepted, status := r.Resolve("GOODTAG")
	require.True(t, accepted)
	require.Equal(t, "Accepted", status)
}

func TestCacheAuthResolverBlockedHit(t *testing.T) {
	cache := newTestCache(t)
	cache.Put("BLOCKEDTAG", "Blocked", interfaces.RawTimestamp{})
	r := &cacheAuthResolver{cache: cache}

	accepted, status := r.Resolve("BLOCKEDTAG")
	require.False(t, accepted)
	require.Equal(t, "Blocked", status)
}
