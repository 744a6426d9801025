package config

import "time"

// Standard OCPP 1.6 configuration key names this engine's own components
// read (SPEC_FULL.md §2, C16). Declared here so every component depends on
// a single shared constant rather than repeating string literals.
const (
	KeyHeartbeatInterval              = "HeartbeatInterval"
	KeyConnectionTimeOut               = "ConnectionTimeOut"
	KeyMinimumStatusDuration           = "MinimumStatusDuration"
	KeyTxStartPoint                    = "TxStartPoint"
	KeyAllowOfflineTxForUnknownId      = "AllowOfflineTxForUnknownId"
	KeyFreeVendActive                  = "FreeVendActive"
	KeyFreeVendIdTag                   = "FreeVendIdTag"
	KeyAuthorizationCacheEnabled       = "AuthorizationCacheEnabled"
	KeyTransactionMessageRetryInterval = "TransactionMessageRetryInterval"
	KeyTransactionMessageAttempts      = "TransactionMessageAttempts"
)

// StandardConfigFile is the on-disk container every C16 key is committed
// into; components needing a different persistence granularity declare
// their own keys against a different filename.
const StandardConfigFile = "sd-config.json"

// DeclareStandardKeys registers the C16 catalog with its OCPP-defined
// defaults and mutability classes. Idempotent: safe to call once per
// component that depends on one of these keys during startup.
func DeclareStandardKeys(store *Store) {
	store.Declare(KeyHeartbeatInterval, IntValue(int64(86400*time.Second/time.Second)), ReadWrite, false, StandardConfigFile)
	store.Declare(KeyConnectionTimeOut, IntValue(30), ReadWrite, false, StandardConfigFile)
	store.Declare(KeyMinimumStatusDuration, IntValue(0), ReadWrite, false, StandardConfigFile)
	store.Declare(KeyTxStartPoint, StringValue("PowerPathClosed"), ReadWrite, false, StandardConfigFile)
	store.Declare(KeyAllowOfflineTxForUnknownId, BoolValue(false), ReadWrite, false, StandardConfigFile)
	store.Declare(KeyFreeVendActive, BoolValue(false), ReadWrite, false, StandardConfigFile)
	store.Declare(KeyFreeVendIdTag, StringValue(""), ReadWrite, false, StandardConfigFile)
	store.Declare(KeyAuthorizationCacheEnabled, BoolValue(true), ReadWrite, false, StandardConfigFile)
	store.Declare(KeyTransactionMessageRetryInterval, IntValue(60), ReadWrite, false, StandardConfigFile)
	store.Declare(KeyTransactionMessageAttempts, IntValue(3), ReadWrite, false, StandardConfigFile)
}
