package redisqueue

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Backend
type Option func(*Backend)

// WithPrefix sets the key namespace shared by all queues
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithBlockTimeout sets how long an idle worker blocks on the waiting list
func WithBlockTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.blockTimeout = d
		}
	}
}

// WithPollInterval sets how often delayed jobs are checked for promotion
func WithPollInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithSendEvents toggles publishing job outcomes over pub/sub
func WithSendEvents(enabled bool) Option {
	return func(b *Backend) {
		b.sendEvents = enabled
	}
}

// WithGetEvents toggles receiving job outcomes over pub/sub. When disabled,
// handlers only observe jobs processed by this backend.
func WithGetEvents(enabled bool) Option {
	return func(b *Backend) {
		b.getEvents = enabled
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
