package common

import "time"

// AccessTokenHeaderName is the gRPC/HTTP metadata key used to carry the
// device credential on outbound requests.
const AccessTokenHeaderName = "access_token"

const (
	// SecretSize is the number of random bytes in a principal secret.
	SecretSize = 32

	// SecretLifetime is the maximum lifetime of a principal secret.
	SecretLifetime = 7 * 24 * time.Hour

	// SyncBatchSize is the default and maximum size of one ledger sync batch.
	SyncBatchSize = 100

	// MaxOfflineScanEntries caps the scanner's local ledger.
	MaxOfflineScanEntries = 50000

	// MaxDeviceSkew is the largest accepted distance between a live scan's
	// device time and the server clock.
	MaxDeviceSkew = 30 * time.Minute

	// MaxFailedAttempts and FailedAttemptsLock bound BAD_AUTHENTICATOR
	// outcomes per verifier.
	MaxFailedAttempts  = 5
	FailedAttemptsLock = 5 * time.Minute
)

// Locations are the accepted scan location tags.
var Locations = []string{"gate", "exam-hall", "hostel", "library"}

// ValidLocation reports whether loc is empty or one of Locations.
func ValidLocation(loc string) bool {
	if loc == "" {
		return true
	}
	for _, l := range Locations {
		if l == loc {
			return true
		}
	}
	return false
}
