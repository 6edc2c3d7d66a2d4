package jobqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

func TestExecute(t *testing.T) {
	t.Parallel()

	t.Run("returns the handler result", func(t *testing.T) {
		t.Parallel()

		result, err := jobqueue.Execute(context.Background(), func(context.Context, *jobqueue.Job) (any, error) {
			return 42, nil
		}, &jobqueue.Job{})
		require.NoError(t, err)
		assert.Equal(t, 42, result)
	})

	t.Run("returns the handler error", func(t *testing.T) {
		t.Parallel()

		handlerErr := errors.New("bad input")
		_, err := jobqueue.Execute(context.Background(), func(context.Context, *jobqueue.Job) (any, error) {
			return nil, handlerErr
		}, &jobqueue.Job{Timeout: time.Minute})
		assert.Equal(t, handlerErr, err)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		started := time.Now()
		_, err := jobqueue.Execute(context.Background(), func(context.Context, *jobqueue.Job) (any, error) {
			time.Sleep(time.Second)
			return nil, nil
		}, &jobqueue.Job{Timeout: 10 * time.Millisecond})
		assert.ErrorIs(t, err, jobqueue.ErrJobTimeout)
		assert.Less(t, time.Since(started), 500*time.Millisecond)
	})

	t.Run("handler honouring the deadline still times out", func(t *testing.T) {
		t.Parallel()

		_, err := jobqueue.Execute(context.Background(), func(ctx context.Context, _ *jobqueue.Job) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, &jobqueue.Job{Timeout: 10 * time.Millisecond})
		assert.ErrorIs(t, err, jobqueue.ErrJobTimeout)
	})

	t.Run("panic", func(t *testing.T) {
		t.Parallel()

		_, err := jobqueue.Execute(context.Background(), func(context.Context, *jobqueue.Job) (any, error) {
			panic("oops")
		}, &jobqueue.Job{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oops")
	})

	t.Run("parent cancellation is not a timeout", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := jobqueue.Execute(ctx, func(ctx context.Context, _ *jobqueue.Job) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, &jobqueue.Job{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, jobqueue.ErrJobTimeout)
	})
}

func TestJobSpec_NewJob(t *testing.T) {
	t.Parallel()

	now := time.Now()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	job := jobqueue.JobSpec{Retries: 2, DelayUntil: &future}.NewJob("1", "q", now)
	assert.Equal(t, jobqueue.StateDelayed, job.State)
	assert.Equal(t, 2, job.Retries)
	require.NotNil(t, job.DelayUntil)
	assert.True(t, job.DelayUntil.Equal(future))

	job = jobqueue.JobSpec{DelayUntil: &past}.NewJob("2", "q", now)
	assert.Equal(t, jobqueue.StateWaiting, job.State)
	assert.Nil(t, job.DelayUntil)
}

func TestJobBuilder_SaveValidates(t *testing.T) {
	t.Parallel()

	saved := false
	b := jobqueue.NewJobBuilder(nil, func(context.Context, jobqueue.JobSpec) (*jobqueue.Job, error) {
		saved = true
		return &jobqueue.Job{}, nil
	})

	_, err := b.Backoff(jobqueue.BackoffFixed, 0).Save(context.Background())
	assert.ErrorIs(t, err, jobqueue.ErrInvalidBackoff)
	assert.False(t, saved)

	_, err = b.Backoff(jobqueue.BackoffFixed, time.Second).Retries(-1).Save(context.Background())
	assert.ErrorIs(t, err, jobqueue.ErrInvalidJobOptions)
	assert.False(t, saved)
}

func TestBackendOptions(t *testing.T) {
	t.Parallel()

	opts := jobqueue.BackendOptions{
		"prefix":   "bq",
		"count":    3,
		"float":    2.0,
		"interval": "250ms",
		"millis":   1500,
		"flag":     true,
		"flagstr":  "false",
		"bad":      []string{"x"},
	}

	s, err := opts.String("prefix", "def")
	require.NoError(t, err)
	assert.Equal(t, "bq", s)
	s, err = opts.String("missing", "def")
	require.NoError(t, err)
	assert.Equal(t, "def", s)
	_, err = opts.String("count", "")
	assert.ErrorIs(t, err, jobqueue.ErrInvalidBackendOption)

	n, err := opts.Int("count", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = opts.Int("float", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = opts.Int("bad", 0)
	assert.ErrorIs(t, err, jobqueue.ErrInvalidBackendOption)

	d, err := opts.Duration("interval", 0)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)
	d, err = opts.Duration("millis", 0)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
	d, err = opts.Duration("missing", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	b, err := opts.Bool("flag", false)
	require.NoError(t, err)
	assert.True(t, b)
	b, err = opts.Bool("flagstr", true)
	require.NoError(t, err)
	assert.False(t, b)
	_, err = opts.Bool("count", false)
	assert.ErrorIs(t, err, jobqueue.ErrInvalidBackendOption)
}
