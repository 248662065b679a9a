package token

import "time"

// DefaultExpiringSoonWindow is how far ahead of expiry a token is treated as stale.
const DefaultExpiringSoonWindow = 5 * time.Minute

// IsExpired reports whether now is at or past expiry. A missing expiry counts as expired.
func IsExpired(expiry *time.Time, now time.Time) bool {
	if expiry == nil {
		return true
	}
	return !now.Before(*expiry)
}

// IsExpiringSoon reports whether expiry falls within window of now. A missing expiry counts as expiring.
func IsExpiringSoon(expiry *time.Time, now time.Time, window time.Duration) bool {
	if expiry == nil {
		return true
	}
	return !now.Add(window).Before(*expiry)
}
