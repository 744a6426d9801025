package microocpp

import "github.com/microocpp-go/engine/internal/authcache"

// cacheAuthResolver implements connector.AuthResolver purely from the
// authorization cache: Authorize (C15) only represents one online round
// trip, so by the time Connector's transaction-begin gate runs, any idTag
// it needs to resolve synchronously must already be cached — either from
// a prior Authorize.conf or from Swipe's online round trip completing
// before the EV was plugged in. A cache miss here is a rejection; the
// connector's own AllowOfflineTxForUnknownId fallback (§4.7) covers the
// "never seen this idTag and we're offline" case.
type cacheAuthResolver struct {
	cache *authcache.Cache
}

// Resolve implements connector.AuthResolver.
func (r *cacheAuthResolver) Resolve(idTag string) (bool, string) {
	status, ok := r.cache.Get(idTag)
	if !ok {
		return false, "Invalid"
	}
	return status == "Accepted", status
}
