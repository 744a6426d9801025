package microocpp

import "github.com/microocpp-go/engine/internal/constants"

// Re-export the tunables a host embedding this engine most commonly needs
// to reference, without requiring an import of internal/constants.
const (
	DefaultRequestTimeout    = constants.DefaultRequestTimeout
	DefaultBootRetryInterval = constants.DefaultBootRetryInterval
	InitialBootDelay         = constants.InitialBootDelay
	OfflineGraceDuration     = constants.OfflineGraceDuration

	DefaultMinimumStatusDuration = constants.DefaultMinimumStatusDuration
	DefaultConnectionTimeOut     = constants.DefaultConnectionTimeOut

	DefaultTxRecordSize     = constants.DefaultTxRecordSize
	DefaultMaxStopTxDataLen = constants.DefaultMaxStopTxDataLen
	MaxBootAttempts         = constants.MaxBootAttempts
)

// AuthCacheCapacity bounds the number of distinct idTags the default
// authorization cache holds (internal/authcache.DefaultCapacity).
const AuthCacheCapacity = 256
