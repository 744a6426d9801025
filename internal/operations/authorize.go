package operations

import (
	"encoding/json"
	"fmt"

	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/rpc"
)

// Authorize is the online+offline authorization decision Operation (C15).
// Grounded in original_source's Authorize.cpp: ask the server whether
// idTag may start a transaction, cache the answer, and fall back to the
// cache (or an offline policy) when the server can't be reached —
// falling back is the caller's job (internal/connector), not this
// Operation's; Authorize only represents one online round trip.
type Authorize struct {
	IdTag string
	Cache interfaces.AuthorizationCache
	Clock *clock.Clock

	// Status/ParentIdTag are populated by ProcessResponse.
	Status      string
	ParentIdTag string
}

func (a *Authorize) Type() string { return "Authorize" }

func (a *Authorize) CreateRequest() (json.RawMessage, error) {
	return marshalCompact(struct {
		IdTag string `json:"idTag"`
	}{a.IdTag})
}

func (a *Authorize) ProcessResponse(payload json.RawMessage) error {
	var resp struct {
		IdTagInfo struct {
			Status      string `json:"status"`
			ParentIdTag string `json:"parentIdTag"`
			ExpiryDate  string `json:"expiryDate"`
		} `json:"idTagInfo"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("operations: Authorize.conf: %w", err)
	}
	a.Status = resp.IdTagInfo.Status
	a.ParentIdTag = resp.IdTagInfo.ParentIdTag

	if a.Cache != nil {
		expiry := interfaces.RawTimestamp{}
		if resp.IdTagInfo.ExpiryDate != "" {
			if t, err := clock.ParseISO8601(resp.IdTagInfo.ExpiryDate); err == nil {
				expiry = interfaces.RawTimestamp{Seconds: t.Unix(), Anchored: true}
			}
		}
		a.Cache.Put(a.IdTag, a.Status, expiry)
	}
	return nil
}

// Accepted reports whether the server (or, via ResolveOffline, the cache)
// granted authorization.
func (a *Authorize) Accepted() bool { return a.Status == "Accepted" }

// ResolveOffline answers this Authorize purely from the cache, for use
// when the connection is down (§4.3 "Connector may perform purely local
// authorization if configured"). Returns false if the cache has no
// unexpired entry.
func (a *Authorize) ResolveOffline() bool {
	if a.Cache == nil {
		return false
	}
	status, ok := a.Cache.Get(a.IdTag)
	if !ok {
		return false
	}
	a.Status = status
	return a.Accepted()
}

func (a *Authorize) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	kind := rpc.NotSupported
	return &kind
}

func (a *Authorize) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	return nil, rpc.ResultFailure
}

var _ rpc.Operation = (*Authorize)(nil)
