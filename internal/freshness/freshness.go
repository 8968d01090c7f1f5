// Package freshness decides when a cached value needs to be re-fetched.
package freshness

import "time"

// Thresholds holds the maximum age of each cached kind of data.
type Thresholds struct {
	Battles       time.Duration
	DerivedViews  time.Duration
	Activity      time.Duration
	Snapshots     time.Duration
	Clan          time.Duration
	PlayerProfile time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Battles:       15 * time.Minute,
		DerivedViews:  24 * time.Hour,
		Activity:      15 * time.Minute,
		Snapshots:     24 * time.Hour,
		Clan:          24 * time.Hour,
		PlayerProfile: 1400 * time.Minute,
	}
}

// IsStale reports whether a value last updated at last is too old to serve
// without a refresh. A value that was never updated is always stale.
func IsStale(last *time.Time, threshold time.Duration, now time.Time) bool {
	if last == nil || last.IsZero() {
		return true
	}
	return now.Sub(*last) >= threshold
}
