package jobqueue

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors
var (
	// ErrQueueNotFound is returned when a queue name has no registered backend
	ErrQueueNotFound = errors.New("queue does not exist")

	// ErrQueueNameRequired is returned when a queue config has an empty name
	ErrQueueNameRequired = errors.New("queue name cannot be empty")

	// ErrNoProcessor is returned when a queue config has neither a worker factory nor a process function
	ErrNoProcessor = errors.New("queue config must set a worker factory or a process function")

	// ErrAmbiguousProcessor is returned when a queue config sets both a worker factory and a process function
	ErrAmbiguousProcessor = errors.New("queue config cannot set both a worker factory and a process function")

	// ErrInvalidConcurrency is returned when a queue config has a negative concurrency
	ErrInvalidConcurrency = errors.New("concurrency must be a positive integer")

	// ErrNilBackendFactory is returned when a registry is created without a backend factory
	ErrNilBackendFactory = errors.New("backend factory cannot be nil")

	// ErrInvalidBackoff is returned when a backoff is missing its strategy or delay factor
	ErrInvalidBackoff = errors.New("backoff requires both strategy and delay factor")

	// ErrUnknownBackoffStrategy is returned for strategies other than immediate, fixed and exponential
	ErrUnknownBackoffStrategy = errors.New("unknown backoff strategy")

	// ErrInvalidJobOptions is returned when a job option is out of range
	ErrInvalidJobOptions = errors.New("invalid job options")

	// ErrInvalidBackendOption is returned when a backend option has an unexpected type
	ErrInvalidBackendOption = errors.New("invalid backend option")
)

// Validation errors
var (
	// ErrTypeRequired is returned by Find when no job type is given
	ErrTypeRequired = errors.New("type must be specified")

	// ErrInvalidType is returned by Find when the job type is not a known state
	ErrInvalidType = errors.New("invalid type. valid options are: " + quotedStates())

	// ErrInvalidFilter is returned when $limit or $skip is not an integer
	ErrInvalidFilter = errors.New("invalid query filter")

	// ErrPayloadMarshal is returned when a payload cannot be encoded as JSON
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")
)

// Backend errors
var (
	// ErrJobTimeout is the failure recorded for a job that exceeded its timeout
	ErrJobTimeout = errors.New("job timed out")

	// ErrBackendClosed is returned by a backend after Close
	ErrBackendClosed = errors.New("backend is closed")

	// ErrAlreadyProcessing is returned when Process is called twice on the same backend
	ErrAlreadyProcessing = errors.New("backend already has a processor")

	// ErrNilWorker is returned when a worker factory builds a nil worker
	ErrNilWorker = errors.New("worker factory returned nil worker")
)

func quotedStates() string {
	quoted := make([]string, len(JobStates))
	for i, s := range JobStates {
		quoted[i] = fmt.Sprintf("%q", string(s))
	}
	return strings.Join(quoted, ", ")
}
