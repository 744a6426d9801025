// Package interfaces provides the collaborator contracts the engine
// consumes from its host, kept separate from the public package to avoid
// import cycles between root and the internal components.
package interfaces

import (
	"encoding/json"
	"io"
	"os"
)

// FileSystem is the uniform storage interface the engine performs all
// persistence through (C1). Hosts back it with flash, SPIFFS/LittleFS, or a
// plain os.* implementation; tests back it with an in-memory fake.
type FileSystem interface {
	// Open opens name with the given os.O_* flag combination, creating the
	// file (and any parent directory, if the adapter models one) when
	// os.O_CREATE is set.
	Open(name string, flag int) (File, error)
	Stat(name string) (os.FileInfo, error)
	Remove(name string) error
	// Walk invokes fn once per file whose name has the given prefix. Order
	// is adapter-defined; callers that need a specific order (e.g. ring
	// recovery) sort the names themselves.
	Walk(prefix string, fn func(name string) error) error
}

// File is a single open file handle.
type File interface {
	io.ReadWriteSeeker
	io.Closer
	// Sync flushes to stable storage. The filesystem adapter may make this
	// a no-op if the underlying medium has no write-back cache.
	Sync() error
}

// Logger is the single logging hook host applications may wire in. Level,
// file and line are left to the caller to avoid this engine depending on
// caller::source_location() style mechanisms the teacher's design notes
// (spec.md §9) call out for replacement.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer receives point-in-time notifications the host may forward to a
// metrics backend. Implementations must be safe to call from Loop().
type Observer interface {
	ObserveRequestSent(operationType string)
	ObserveRequestCompleted(operationType string, latencyNs uint64, success bool)
	ObserveRequestTimeout(operationType string)
	ObserveQueueDepth(queueName string, depth int)
}

// Clock is the wall-clock/uptime provider (C2). Timestamp values it returns
// are opaque tagged unions; callers compare/format them through the clock
// package's helpers rather than assuming a representation.
type Clock interface {
	Now() Timestamp
	Uptime() Timestamp
	SetTime(iso string) bool
	// Delta returns b-a in seconds. ok is false when a and b mix wall-clock
	// and uptime timestamps, and for two wall-clock timestamps until a
	// BootNotification has anchored unix time to uptime (§3 Clock state).
	Delta(a, b Timestamp) (seconds int64, ok bool)
}

// Timestamp is a tagged union: either a unix-epoch instant or an
// uninterpreted uptime instant recorded before the clock was anchored. The
// concrete representation lives in internal/clock; this alias lets
// collaborator interfaces reference it without importing that package,
// which would create an import cycle (clock depends on nothing, but several
// packages need to mention Timestamp in their own interfaces).
type Timestamp = RawTimestamp

// RawTimestamp is the wire-comparable representation of Timestamp.
type RawTimestamp struct {
	// Seconds holds a Unix epoch second count when Anchored is true,
	// otherwise an uptime second count relative to boot.
	Seconds  int64
	Anchored bool
}

// TxNotificationEvent discriminates the user-visible outcomes spec.md §7
// requires the engine surface ("TxNotification sink with discriminated
// events").
type TxNotificationEvent string

const (
	EventAuthorized            TxNotificationEvent = "Authorized"
	EventAuthorizationRejected TxNotificationEvent = "AuthorizationRejected"
	EventAuthorizationTimeout  TxNotificationEvent = "AuthorizationTimeout"
	EventStartTx               TxNotificationEvent = "StartTx"
	EventStopTx                 TxNotificationEvent = "StopTx"
	EventReservationConflict   TxNotificationEvent = "ReservationConflict"
	EventConnectionTimeout     TxNotificationEvent = "ConnectionTimeout"
	EventDeAuthorized           TxNotificationEvent = "DeAuthorized"
)

// TxNotificationSink receives transaction lifecycle events. Hosts typically
// forward these to UI/telemetry; the engine never blocks on it.
type TxNotificationSink interface {
	OnTxNotification(connectorID uint32, event TxNotificationEvent, detail string)
}

// AuthorizationCache is the narrow collaborator hook Authorize (C15) calls
// into. A nil cache is a permanent miss.
type AuthorizationCache interface {
	Get(idTag string) (status string, ok bool)
	Put(idTag string, status string, expiry RawTimestamp)
}

// MarshalCompact is a small helper every Operation implementation uses to
// build its request/response payloads without repeating
// json.Marshal-then-check-error boilerplate at every call site.
func MarshalCompact(v interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
