package license

import (
	"math"
	"time"

	"license-server/internal/database"
)

// expiringSoonDays is the hard threshold for the expiring-soon flag,
// independent of any caller-supplied horizon.
const expiringSoonDays = 3

// DaysUntilExpiry returns the number of whole days until expiresAt, rounded
// up. It is negative for keys already past due.
func DaysUntilExpiry(expiresAt, now time.Time) int {
	return int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
}

// IsExpiringSoon reports whether a key expires within the soon threshold.
func IsExpiringSoon(expiresAt, now time.Time) bool {
	return DaysUntilExpiry(expiresAt, now) <= expiringSoonDays
}

// IsPastDue reports whether a key's expiry lies in the past. This is the
// derived notion of "expired" used to gate activation; it never rewrites the
// stored status, which only changes through an administrative update or the
// expiry sweep.
func IsPastDue(expiresAt, now time.Time) bool {
	return expiresAt.Before(now)
}

// CanTransition reports whether the normal lifecycle allows moving from one
// stored status to another. Administrative updates may force any status and
// bypass this check.
func CanTransition(from, to database.LicenseStatus) bool {
	switch from {
	case database.StatusPending:
		return to == database.StatusActive
	case database.StatusActive:
		return to == database.StatusSuspended || to == database.StatusExpired
	case database.StatusSuspended:
		return to == database.StatusActive
	}
	return false
}
