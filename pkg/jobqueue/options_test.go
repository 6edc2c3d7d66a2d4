package jobqueue_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

func TestNewJobOptions(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		opts, err := jobqueue.NewJobOptions()
		require.NoError(t, err)
		assert.Equal(t, jobqueue.JobOptions{}, opts)
	})

	t.Run("negative retries", func(t *testing.T) {
		t.Parallel()

		_, err := jobqueue.NewJobOptions(jobqueue.WithRetries(-1))
		assert.ErrorIs(t, err, jobqueue.ErrInvalidJobOptions)
	})

	t.Run("negative timeout", func(t *testing.T) {
		t.Parallel()

		_, err := jobqueue.NewJobOptions(jobqueue.WithTimeout(-time.Second))
		assert.ErrorIs(t, err, jobqueue.ErrInvalidJobOptions)
	})

	t.Run("incomplete backoff", func(t *testing.T) {
		t.Parallel()

		_, err := jobqueue.NewJobOptions(jobqueue.WithBackoff(jobqueue.BackoffFixed, 0))
		assert.ErrorIs(t, err, jobqueue.ErrInvalidBackoff)

		_, err = jobqueue.NewJobOptions(jobqueue.WithBackoff("", time.Second))
		assert.ErrorIs(t, err, jobqueue.ErrInvalidBackoff)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		t.Parallel()

		_, err := jobqueue.NewJobOptions(jobqueue.WithBackoff("linear", time.Second))
		assert.ErrorIs(t, err, jobqueue.ErrUnknownBackoffStrategy)
	})

	t.Run("errors are joined", func(t *testing.T) {
		t.Parallel()

		_, err := jobqueue.NewJobOptions(
			jobqueue.WithRetries(-1),
			jobqueue.WithBackoff(jobqueue.BackoffFixed, 0),
		)
		assert.ErrorIs(t, err, jobqueue.ErrInvalidJobOptions)
		assert.ErrorIs(t, err, jobqueue.ErrInvalidBackoff)
	})

	t.Run("delay sets a future time", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		opts, err := jobqueue.NewJobOptions(jobqueue.WithDelay(time.Minute))
		require.NoError(t, err)
		require.NotNil(t, opts.DelayUntil)
		assert.True(t, opts.DelayUntil.After(before.Add(59*time.Second)))

		opts, err = jobqueue.NewJobOptions(jobqueue.WithDelay(0))
		require.NoError(t, err)
		assert.Nil(t, opts.DelayUntil)
	})
}

func TestParseJobOptions(t *testing.T) {
	t.Parallel()

	t.Run("json input", func(t *testing.T) {
		t.Parallel()

		var raw map[string]any
		require.NoError(t, json.Unmarshal([]byte(`{
			"retries": 3,
			"backoff": {"strategy": "exponential", "delayFactor": 250},
			"delayUntil": 1700000000000,
			"timeout": 5000
		}`), &raw))

		opts, err := jobqueue.ParseJobOptions(raw)
		require.NoError(t, err)

		assert.Equal(t, ptr(3), opts.Retries)
		assert.Equal(t, &jobqueue.Backoff{Strategy: jobqueue.BackoffExponential, DelayFactor: 250 * time.Millisecond}, opts.Backoff)
		require.NotNil(t, opts.DelayUntil)
		assert.Equal(t, int64(1700000000000), opts.DelayUntil.UnixMilli())
		assert.Equal(t, ptr(5*time.Second), opts.Timeout)
	})

	t.Run("numeric strings and rfc3339", func(t *testing.T) {
		t.Parallel()

		opts, err := jobqueue.ParseJobOptions(map[string]any{
			"retries":    "2",
			"delayUntil": "2030-01-02T03:04:05Z",
			"timeout":    "1500",
		})
		require.NoError(t, err)

		assert.Equal(t, ptr(2), opts.Retries)
		require.NotNil(t, opts.DelayUntil)
		assert.True(t, opts.DelayUntil.Equal(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)))
		assert.Equal(t, ptr(1500*time.Millisecond), opts.Timeout)
	})

	t.Run("non numeric values are ignored", func(t *testing.T) {
		t.Parallel()

		opts, err := jobqueue.ParseJobOptions(map[string]any{
			"retries":    "many",
			"delayUntil": "soon",
			"timeout":    true,
			"priority":   "high",
		})
		require.NoError(t, err)
		assert.Equal(t, jobqueue.JobOptions{}, opts)
	})

	t.Run("fractional or out of range retries", func(t *testing.T) {
		t.Parallel()

		for _, v := range []any{2.7, "1.5", 1e19, -1e12} {
			_, err := jobqueue.ParseJobOptions(map[string]any{"retries": v})
			assert.ErrorIs(t, err, jobqueue.ErrInvalidJobOptions, v)
		}

		opts, err := jobqueue.ParseJobOptions(map[string]any{"retries": 4.0})
		require.NoError(t, err)
		assert.Equal(t, ptr(4), opts.Retries)
	})

	t.Run("nil map", func(t *testing.T) {
		t.Parallel()

		opts, err := jobqueue.ParseJobOptions(nil)
		require.NoError(t, err)
		assert.Equal(t, jobqueue.JobOptions{}, opts)
	})

	t.Run("yaml style integers", func(t *testing.T) {
		t.Parallel()

		opts, err := jobqueue.ParseJobOptions(map[string]any{
			"retries": 4,
			"backoff": map[string]any{"strategy": "fixed", "delayFactor": 1000},
		})
		require.NoError(t, err)
		assert.Equal(t, ptr(4), opts.Retries)
		assert.Equal(t, time.Second, opts.Backoff.DelayFactor)
	})

	t.Run("malformed backoff", func(t *testing.T) {
		t.Parallel()

		for name, backoff := range map[string]any{
			"missing delay factor": map[string]any{"strategy": "fixed"},
			"missing strategy":     map[string]any{"delayFactor": 100},
			"zero delay factor":    map[string]any{"strategy": "fixed", "delayFactor": 0},
			"not an object":        "fixed",
		} {
			_, err := jobqueue.ParseJobOptions(map[string]any{"backoff": backoff})
			assert.ErrorIs(t, err, jobqueue.ErrInvalidBackoff, name)
		}
	})

	t.Run("unknown strategy", func(t *testing.T) {
		t.Parallel()

		_, err := jobqueue.ParseJobOptions(map[string]any{
			"backoff": map[string]any{"strategy": "linear", "delayFactor": 100},
		})
		assert.ErrorIs(t, err, jobqueue.ErrUnknownBackoffStrategy)
	})

	t.Run("negative retries", func(t *testing.T) {
		t.Parallel()

		_, err := jobqueue.ParseJobOptions(map[string]any{"retries": -2})
		assert.ErrorIs(t, err, jobqueue.ErrInvalidJobOptions)
	})
}

func TestJobOptions_WithDefaults(t *testing.T) {
	t.Parallel()

	defaults, err := jobqueue.NewJobOptions(
		jobqueue.WithRetries(5),
		jobqueue.WithBackoff(jobqueue.BackoffFixed, time.Second),
		jobqueue.WithTimeout(time.Minute),
	)
	require.NoError(t, err)

	t.Run("unset fields take defaults", func(t *testing.T) {
		t.Parallel()

		opts := jobqueue.JobOptions{}.WithDefaults(defaults)
		require.NotNil(t, opts.Retries)
		assert.Equal(t, 5, *opts.Retries)
		require.NotNil(t, opts.Backoff)
		assert.Equal(t, jobqueue.BackoffFixed, opts.Backoff.Strategy)
		require.NotNil(t, opts.Timeout)
		assert.Equal(t, time.Minute, *opts.Timeout)
		assert.Nil(t, opts.DelayUntil)
	})

	t.Run("set fields win", func(t *testing.T) {
		t.Parallel()

		own, err := jobqueue.NewJobOptions(
			jobqueue.WithRetries(0),
			jobqueue.WithBackoff(jobqueue.BackoffExponential, 10*time.Millisecond),
		)
		require.NoError(t, err)

		opts := own.WithDefaults(defaults)
		assert.Equal(t, 0, *opts.Retries)
		assert.Equal(t, jobqueue.BackoffExponential, opts.Backoff.Strategy)
		assert.Equal(t, 10*time.Millisecond, opts.Backoff.DelayFactor)
		assert.Equal(t, time.Minute, *opts.Timeout)
	})
}
