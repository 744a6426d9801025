// Package authcache implements the Authorize Operation's online/offline
// authorization cache hook (C15 collaborator), backed by an LRU so a busy
// charge point with many distinct idTags can't grow this cache without
// bound. Grounded in estuary-flow's use of golang-lru for bounded
// in-memory lookup caches, wired here against the narrow
// interfaces.AuthorizationCache contract rather than a full local
// authorization list (SPEC_FULL.md §1).
package authcache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/microocpp-go/engine/internal/interfaces"
)

// DefaultCapacity bounds the number of distinct idTags cached at once.
const DefaultCapacity = 256

type entry struct {
	status  string
	expiry  interfaces.RawTimestamp
}

// Cache is an LRU-backed interfaces.AuthorizationCache. A zero Cache value
// is not usable; construct with New.
type Cache struct {
	lru *lru.Cache[string, entry]
	now func() interfaces.RawTimestamp
}

// New creates a Cache holding up to capacity entries. nowFn supplies the
// current time for TTL checks on Get (typically (*clock.Clock).Now).
func New(capacity int, nowFn func() interfaces.RawTimestamp) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c, now: nowFn}, nil
}

// Get returns the cached authorization status for idTag, or ok=false if
// absent or past its expiry — a cache hit for an expired entry is treated
// as a miss and the stale entry is evicted.
func (c *Cache) Get(idTag string) (status string, ok bool) {
	e, found := c.lru.Get(idTag)
	if !found {
		return "", false
	}
	now := c.now()
	if e.expiry.Anchored && now.Anchored && now.Seconds >= e.expiry.Seconds {
		c.lru.Remove(idTag)
		return "", false
	}
	return e.status, true
}

// Put caches status for idTag until expiry.
func (c *Cache) Put(idTag string, status string, expiry interfaces.RawTimestamp) {
	c.lru.Add(idTag, entry{status: status, expiry: expiry})
}

// Len reports the number of cached entries, for diagnostics.
func (c *Cache) Len() int { return c.lru.Len() }

var _ interfaces.AuthorizationCache = (*Cache)(nil)
