package queueapi

import (
	"log/slog"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

// Option configures the API.
type Option func(*API)

// WithLogger sets the logger used for request failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithJobDefaults sets the job options applied to jobs created on queue when
// the request leaves an option unset.
func WithJobDefaults(queue string, defaults jobqueue.JobOptions) Option {
	return func(a *API) {
		a.defaults[queue] = defaults
	}
}

// WithMaxBodySize limits job creation bodies to n bytes.
func WithMaxBodySize(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}
