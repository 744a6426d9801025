// Package constants collects the tunable limits and default intervals
// shared across the engine's components.
package constants

import "time"

// Ring-buffer and retention limits (§3, §4.4, §4.5 of SPEC_FULL.md).
const (
	// MaxTxCount is the modulus transaction numbers (txNr) wrap around at.
	MaxTxCount = 1 << 16

	// DefaultTxRecordSize is the default number of live transaction records
	// retained on disk per connector.
	DefaultTxRecordSize = 4

	// DefaultMaxStopTxDataLen bounds the number of sampled MeterValues
	// attached to an outgoing StopTransaction's transactionData field.
	DefaultMaxStopTxDataLen = 16

	// BootStatsLongtimeDuration is the sustained post-Accepted uptime after
	// which BootService resets the boot attempt counter to zero.
	BootStatsLongtimeDuration = 180 * time.Second

	// MaxBootAttempts is the attempt count above which BootService wipes
	// volatile state files to escape a boot loop.
	MaxBootAttempts = 3
)

// Request/Request-queue timing.
const (
	// DefaultRequestTimeout is the timeout applied to a Request when the
	// Operation doesn't specify one (§3 Request, default 40s).
	DefaultRequestTimeout = 40 * time.Second

	// DefaultBootRetryInterval is BootService's retry interval absent a
	// server-supplied interval (§4.9, default 180s).
	DefaultBootRetryInterval = 180 * time.Second

	// InitialBootDelay bounds how soon after startup the first
	// BootNotification is sent (§4.9, "initial send <=5s after startup").
	InitialBootDelay = 5 * time.Second

	// OfflineGraceDuration is how long a Request may sit unacknowledged
	// before the engine is considered to have entered degraded/offline mode
	// (§4.3, "no reply within 20s").
	OfflineGraceDuration = 20 * time.Second
)

// opNr band boundaries (§4.3, §5). Configurable at service-registration
// time, but these are the defaults the teacher's registration path used.
const (
	OpNrPreBoot  uint32 = 0
	OpNrVolatile uint32 = 1
	OpNrTxBase   uint32 = 10
)

// NoOperation is the sentinel opNr returned by an empty Queue.
const NoOperation uint32 = ^uint32(0)

// Connector timing defaults (§4.7).
const (
	DefaultMinimumStatusDuration = 1 * time.Second
	DefaultConnectionTimeOut     = 30 * time.Second
)
