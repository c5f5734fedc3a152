package store

import (
	"time"

	"go.uber.org/zap"
)

// #region options
// Option configures a Store.
type Option func(*Store)

// WithCacheSize bounds the decoded cluster-model cache.
func WithCacheSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithBusyRetry retries writes that hit SQLITE_BUSY.
func WithBusyRetry(attempts uint, delay time.Duration) Option {
	return func(s *Store) {
		s.busyAttempts = max(attempts, 1)
		s.busyDelay = delay
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// #endregion options

// #region model-key
// modelKey identifies one activity model of one user.
type modelKey struct {
	user  string
	label string
}

// #endregion model-key

// #region stats
// Stats are the per-user activity counts.
type Stats struct {
	User       string   `json:"user"`
	Activities int      `json:"activities"`
	Labels     []string `json:"activity_labels"`
}

// #endregion stats
