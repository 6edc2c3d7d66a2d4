package pgqueue

import (
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

func scanJob(row pgx.CollectableRow) (*jobqueue.Job, error) {
	var (
		job             jobqueue.Job
		state           string
		backoffStrategy *string
		backoffDelayMS  *int64
		timeoutMS       int64
		errText         *string
	)

	err := row.Scan(
		&job.ID,
		&job.Queue,
		&job.Payload,
		&state,
		&job.Retries,
		&job.Attempts,
		&backoffStrategy,
		&backoffDelayMS,
		&job.DelayUntil,
		&timeoutMS,
		&job.Result,
		&errText,
		&job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.State = jobqueue.JobState(state)
	job.Timeout = time.Duration(timeoutMS) * time.Millisecond
	if backoffStrategy != nil && backoffDelayMS != nil {
		job.Backoff = &jobqueue.Backoff{
			Strategy:    jobqueue.BackoffStrategy(*backoffStrategy),
			DelayFactor: time.Duration(*backoffDelayMS) * time.Millisecond,
		}
	}
	if errText != nil {
		job.Error = *errText
	}
	return &job, nil
}

func backoffColumns(b *jobqueue.Backoff) (*string, *int64) {
	if b == nil {
		return nil, nil
	}
	strategy := string(b.Strategy)
	delay := ceilMillis(b.DelayFactor)
	return &strategy, &delay
}

// ceilMillis converts d to whole milliseconds for the *_ms columns. Any
// positive remainder rounds up so sub-millisecond values never become 0.
func ceilMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if d > 0 && d%time.Millisecond != 0 {
		ms++
	}
	return ms
}

// storedDurations rounds the job's durations the way they are persisted, so
// the job returned by save matches the one read back.
func storedDurations(job *jobqueue.Job) {
	job.Timeout = time.Duration(ceilMillis(job.Timeout)) * time.Millisecond
	if job.Backoff != nil {
		b := *job.Backoff
		b.DelayFactor = time.Duration(ceilMillis(b.DelayFactor)) * time.Millisecond
		job.Backoff = &b
	}
}

// jsonArg passes raw JSON through unchanged and empty values as NULL.
func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
