package jobqueue

import (
	"encoding/json"
	"slices"
	"time"
)

// JobState is the lifecycle state a job is listed under.
type JobState string

const (
	StateActive    JobState = "active"
	StateWaiting   JobState = "waiting"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateDelayed   JobState = "delayed"
)

// JobStates lists every state accepted by Find, in display order.
var JobStates = []JobState{StateActive, StateWaiting, StateCompleted, StateFailed, StateDelayed}

// Valid reports whether s is one of JobStates.
func (s JobState) Valid() bool {
	return slices.Contains(JobStates, s)
}

// BackoffStrategy selects how retry delays grow.
type BackoffStrategy string

const (
	BackoffImmediate   BackoffStrategy = "immediate"
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// Valid reports whether the strategy is known.
func (s BackoffStrategy) Valid() bool {
	switch s {
	case BackoffImmediate, BackoffFixed, BackoffExponential:
		return true
	}
	return false
}

// Job is a unit of work as stored by a backend.
// Retries is the number of retries allowed after the first failure,
// Attempts counts failed attempts so far.
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	State      JobState        `json:"state"`
	Retries    int             `json:"retries"`
	Attempts   int             `json:"attempts"`
	Backoff    *Backoff        `json:"backoff,omitempty"`
	DelayUntil *time.Time      `json:"delay_until,omitempty"`
	Timeout    time.Duration   `json:"timeout,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Clone returns a copy that shares no pointers with j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Backoff != nil {
		b := *j.Backoff
		c.Backoff = &b
	}
	if j.DelayUntil != nil {
		t := *j.DelayUntil
		c.DelayUntil = &t
	}
	return &c
}

// NextRetry decides whether a job that just failed should run again.
// Attempts must already include the failed attempt.
func (j *Job) NextRetry(now time.Time) (time.Time, bool) {
	if j.Attempts > j.Retries {
		return time.Time{}, false
	}
	if j.Backoff == nil {
		return now, true
	}
	return now.Add(j.Backoff.Delay(j.Attempts)), true
}

// HealthCounts maps each state to the number of jobs in it.
type HealthCounts map[JobState]int

// Range is a half-open [Start, End) window over an ordered job listing.
type Range struct {
	Start int
	End   int
}

// Len returns the number of positions covered, never negative.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Window returns the part of items covered by r.
func Window[T any](items []T, r Range) []T {
	start := max(r.Start, 0)
	if start >= len(items) || r.End <= start {
		return []T{}
	}
	end := min(r.End, len(items))
	return items[start:end]
}
