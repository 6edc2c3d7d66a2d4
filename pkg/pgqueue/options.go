package pgqueue

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Backend
type Option func(*Backend)

// WithPollInterval sets how often idle workers look for ready jobs
func WithPollInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithLogger sets the logger for the backend
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}
