package weather

import "time"

// Policy controls freshness, background refresh, retention and retry.
type Policy struct {
	// StaleTime is how long a successful result counts as fresh.
	StaleTime time.Duration
	// RefetchInterval is the period of the background refresh for active keys.
	RefetchInterval time.Duration
	// GCTime is how long an inactive entry is retained before eviction.
	GCTime time.Duration

	RefetchOnFocus     bool
	RefetchOnReconnect bool

	// Retry is the number of extra attempts after a transient failure.
	Retry      int
	RetryDelay time.Duration

	// GracePeriod keeps a key refreshing after its last subscriber leaves.
	GracePeriod time.Duration
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		StaleTime:          5 * time.Minute,
		RefetchInterval:    1 * time.Minute,
		GCTime:             30 * time.Minute,
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
		Retry:              1,
		RetryDelay:         1 * time.Second,
		GracePeriod:        2 * time.Minute,
	}
}
