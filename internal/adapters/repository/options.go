package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMaxSessions bounds the number of open sessions. When the bound is
// reached, creating a session evicts the least recently touched one.
func WithMaxSessions(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithIdleTimeout expires sessions that were not touched for d.
// Zero disables expiry.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d >= 0 {
			s.idleTimeout = d
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates
// and idle sweeps.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
