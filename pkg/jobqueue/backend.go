package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type (
	// ProcessFunc handles one job. The returned value becomes the job result.
	ProcessFunc func(ctx context.Context, job *Job) (any, error)

	// SucceededHandler observes a job that completed.
	SucceededHandler func(job *Job, result any)

	// FailedHandler observes a job that failed with no retries left.
	FailedHandler func(job *Job, err error)
)

// JobBuilder accumulates a job's execution policy before saving it.
type JobBuilder interface {
	Retries(n int) JobBuilder
	Backoff(strategy BackoffStrategy, delayFactor time.Duration) JobBuilder
	DelayUntil(t time.Time) JobBuilder
	Timeout(d time.Duration) JobBuilder
	Save(ctx context.Context) (*Job, error)
}

// Backend is the storage and execution engine behind a single named queue.
// Implementations must be safe for concurrent use.
type Backend interface {
	// CreateJob starts building a job around an opaque payload.
	CreateJob(payload json.RawMessage) JobBuilder

	// Process registers fn and starts up to concurrency jobs at a time.
	Process(concurrency int, fn ProcessFunc) error

	// OnSucceeded registers a handler fired after each successful job.
	OnSucceeded(h SucceededHandler)

	// OnFailed registers a handler fired after each job fails for good.
	OnFailed(h FailedHandler)

	// CheckHealth returns a snapshot of job counts per state.
	CheckHealth(ctx context.Context) (HealthCounts, error)

	// GetJobs lists jobs in state within the half-open range r.
	GetJobs(ctx context.Context, state JobState, r Range) ([]*Job, error)

	// Close stops processing and releases resources.
	Close() error
}

// BackendFactory creates the backend for a queue from its opaque options.
type BackendFactory func(name string, options BackendOptions) (Backend, error)

// JobSpec is a job that has not been saved yet.
type JobSpec struct {
	Payload    json.RawMessage
	Retries    int
	Backoff    *Backoff
	DelayUntil *time.Time
	Timeout    time.Duration
}

// InitialState returns delayed when the job must wait past now, waiting otherwise.
// A delay in the past makes the job immediately eligible.
func (s JobSpec) InitialState(now time.Time) JobState {
	if s.DelayUntil != nil && s.DelayUntil.After(now) {
		return StateDelayed
	}
	return StateWaiting
}

// NewJob materializes the spec with the given id and queue name.
func (s JobSpec) NewJob(id, queue string, now time.Time) *Job {
	j := &Job{
		ID:        id,
		Queue:     queue,
		Payload:   s.Payload,
		State:     s.InitialState(now),
		Retries:   s.Retries,
		Backoff:   s.Backoff,
		Timeout:   s.Timeout,
		CreatedAt: now,
	}
	if j.State == StateDelayed {
		t := *s.DelayUntil
		j.DelayUntil = &t
	}
	return j
}

// SaveFunc persists a finished JobSpec.
type SaveFunc func(ctx context.Context, spec JobSpec) (*Job, error)

// NewJobBuilder returns a JobBuilder that hands the accumulated spec to save.
// Backends use it to share builder semantics.
func NewJobBuilder(payload json.RawMessage, save SaveFunc) JobBuilder {
	return &jobBuilder{spec: JobSpec{Payload: payload}, save: save}
}

type jobBuilder struct {
	spec JobSpec
	save SaveFunc
}

func (b *jobBuilder) Retries(n int) JobBuilder {
	b.spec.Retries = n
	return b
}

func (b *jobBuilder) Backoff(strategy BackoffStrategy, delayFactor time.Duration) JobBuilder {
	b.spec.Backoff = &Backoff{Strategy: strategy, DelayFactor: delayFactor}
	return b
}

func (b *jobBuilder) DelayUntil(t time.Time) JobBuilder {
	b.spec.DelayUntil = &t
	return b
}

func (b *jobBuilder) Timeout(d time.Duration) JobBuilder {
	b.spec.Timeout = d
	return b
}

func (b *jobBuilder) Save(ctx context.Context) (*Job, error) {
	if b.spec.Retries < 0 {
		return nil, fmt.Errorf("%w: retries cannot be negative", ErrInvalidJobOptions)
	}
	if b.spec.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout cannot be negative", ErrInvalidJobOptions)
	}
	if b.spec.Backoff != nil {
		if err := b.spec.Backoff.Validate(); err != nil {
			return nil, err
		}
	}
	return b.save(ctx, b.spec)
}

// Execute runs fn for job, enforcing job.Timeout and turning panics into errors.
// On timeout it returns ErrJobTimeout without waiting for fn to return.
func Execute(ctx context.Context, fn ProcessFunc, job *Job) (any, error) {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic in job handler: %v", r)}
			}
		}()
		result, err := fn(ctx, job)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && timedOut(ctx, job) {
			return nil, fmt.Errorf("%w after %s", ErrJobTimeout, job.Timeout)
		}
		return o.result, o.err
	case <-ctx.Done():
		if timedOut(ctx, job) {
			return nil, fmt.Errorf("%w after %s", ErrJobTimeout, job.Timeout)
		}
		return nil, ctx.Err()
	}
}

func timedOut(ctx context.Context, job *Job) bool {
	return job.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// EncodeResult marshals a job result; a nil result encodes to nil.
func EncodeResult(result any) (json.RawMessage, error) {
	if result == nil {
		return nil, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result of type %T: %w", result, err)
	}
	return b, nil
}

// BackendOptions is the opaque option map a queue config hands to its backend factory.
type BackendOptions map[string]any

// String returns the string at key or def when unset.
func (o BackendOptions) String(key, def string) (string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidBackendOption, key, v)
	}
	return s, nil
}

// Int returns the integer at key or def when unset.
func (o BackendOptions) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := toNumber(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidBackendOption, key, v)
	}
	return int(n), nil
}

// Duration returns the duration at key or def when unset. Strings are parsed
// with time.ParseDuration, numbers are milliseconds.
func (o BackendOptions) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidBackendOption, key, err)
		}
		return parsed, nil
	}
	n, ok := toNumber(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a duration, got %T", ErrInvalidBackendOption, key, v)
	}
	return millis(n), nil
}

// Bool returns the boolean at key or def when unset. The strings "true" and
// "false" are accepted.
func (o BackendOptions) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrInvalidBackendOption, key, err)
		}
		return parsed, nil
	}
	return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidBackendOption, key, v)
}
