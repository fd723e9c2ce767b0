package ledger

import (
	"time"

	"github.com/okian/callledger/pkg/logger"
)

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts bounds the read-merge-write attempts per append.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the first and largest delay between attempts.
func WithBackoff(initial, max time.Duration) Option {
	return func(s *Store) {
		if initial > 0 {
			s.initialBackoff = initial
		}
		if max >= s.initialBackoff {
			s.maxBackoff = max
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
