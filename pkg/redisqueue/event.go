package redisqueue

import (
	"encoding/json"
	"errors"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

const (
	eventSucceeded = "succeeded"
	eventFailed    = "failed"
)

// message is the pub/sub payload announcing a job outcome.
type message struct {
	Event   string          `json:"event"`
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Timeout bool            `json:"timeout,omitempty"`
}

func newFailedMessage(id string, err error) message {
	return message{
		Event:   eventFailed,
		ID:      id,
		Error:   err.Error(),
		Timeout: errors.Is(err, jobqueue.ErrJobTimeout),
	}
}

// JobError is a job failure received from another process.
// It matches jobqueue.ErrJobTimeout when the job timed out.
type JobError struct {
	Message string
	Timeout bool
}

func (e *JobError) Error() string {
	return e.Message
}

func (e *JobError) Unwrap() error {
	if e.Timeout {
		return jobqueue.ErrJobTimeout
	}
	return nil
}

func (m message) err() error {
	return &JobError{Message: m.Error, Timeout: m.Timeout}
}
