package security

import "time"

const (
	// DefaultRefreshMargin is the safety margin applied when deciding
	// whether a credential needs a refresh before use. A credential whose
	// expiry falls within the margin is refreshed proactively so that it
	// cannot expire mid-request.
	//
	// The margin is inclusive: an expiry exactly at now+margin counts as
	// needing refresh.
	DefaultRefreshMargin = 60 * time.Second

	// DefaultClockSkewGracePeriod is the grace period applied to hard
	// expiry checks (pending logins, stored credentials without a refresh
	// token). It prevents false expiration errors from NTP drift between
	// this process and the platform.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// NeedsRefresh reports whether a credential expiring at expiresAt should be
// refreshed before use, given the safety margin. A zero expiry means the
// credential never expires.
func NeedsRefresh(expiresAt time.Time, margin time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	// Inclusive boundary: expiry exactly at now+margin needs refresh.
	return !expiresAt.After(time.Now().Add(margin))
}

// IsExpired checks whether an instant has passed, with the default clock
// skew grace period.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod checks whether an instant has passed, treating a
// zero time as never expiring.
func IsExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}
