package redisqueue_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
	"github.com/dmitrymomot/queuekit/pkg/redisqueue"
)

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := redisqueue.New(nil, "q")
	assert.ErrorIs(t, err, redisqueue.ErrNilClient)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	_, err = redisqueue.New(client, "")
	assert.ErrorIs(t, err, jobqueue.ErrQueueNameRequired)
}

func TestFactory_InvalidOptions(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	factory := redisqueue.Factory(client)

	for name, opts := range map[string]jobqueue.BackendOptions{
		"prefix":        {"prefix": 12},
		"block timeout": {"block_timeout": "forever"},
		"poll interval": {"poll_interval": []int{1}},
		"send events":   {"send_events": "maybe"},
	} {
		_, err := factory("q", opts)
		assert.ErrorIs(t, err, jobqueue.ErrInvalidBackendOption, name)
	}

	backend, err := factory("q", jobqueue.BackendOptions{"prefix": "test", "get_events": false})
	require.NoError(t, err)
	require.NoError(t, backend.Close())
}

func TestJobError(t *testing.T) {
	t.Parallel()

	err := &redisqueue.JobError{Message: "job timed out after 1s", Timeout: true}
	assert.ErrorIs(t, err, jobqueue.ErrJobTimeout)
	assert.EqualError(t, err, "job timed out after 1s")

	err = &redisqueue.JobError{Message: "boom"}
	assert.False(t, errors.Is(err, jobqueue.ErrJobTimeout))
}

func TestConnect_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := redisqueue.Connect(context.Background(), redisqueue.Config{
		ConnectionURL:  "://nope",
		ConnectTimeout: time.Second,
	})
	assert.ErrorIs(t, err, redisqueue.ErrFailedToParseRedisConnString)
}

// newIntegrationClient connects to REDIS_URL or skips the test.
func newIntegrationClient(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	client, err := redisqueue.Connect(context.Background(), redisqueue.Config{
		ConnectionURL:  url,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, redisqueue.Healthcheck(client)(context.Background()))
	return client
}

func newIntegrationService(t *testing.T, client *redis.Client, opts ...redisqueue.Option) *jobqueue.Service {
	t.Helper()

	prefix := "test-" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	})

	opts = append([]redisqueue.Option{
		redisqueue.WithPrefix(prefix),
		redisqueue.WithBlockTimeout(100 * time.Millisecond),
		redisqueue.WithPollInterval(20 * time.Millisecond),
	}, opts...)

	svc, err := jobqueue.NewService(redisqueue.Factory(client, opts...))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

type collector struct {
	mu     sync.Mutex
	events []jobqueue.Event
}

func (c *collector) handle(e jobqueue.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) all() []jobqueue.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]jobqueue.Event(nil), c.events...)
}

func TestBackend_Integration_ProcessAndFind(t *testing.T) {
	client := newIntegrationClient(t)

	for name, getEvents := range map[string]bool{"pubsub events": true, "local events": false} {
		t.Run(name, func(t *testing.T) {
			svc := newIntegrationService(t, client, redisqueue.WithGetEvents(getEvents))
			events := &collector{}
			svc.Events().Subscribe(events.handle, jobqueue.EventCompleted, jobqueue.EventFailed)

			require.NoError(t, svc.SetupQueue(jobqueue.QueueConfig{
				Name:        "emails",
				Concurrency: 2,
				Process: func(_ context.Context, job *jobqueue.Job) (any, error) {
					if string(job.Payload) == `"bad"` {
						return nil, errors.New("bad payload")
					}
					return map[string]string{"ok": "yes"}, nil
				},
			}))

			ctx := context.Background()
			good, err := svc.Create(ctx, "good", jobqueue.CreateParams{Queue: "emails"})
			require.NoError(t, err)
			bad, err := svc.Create(ctx, "bad", jobqueue.CreateParams{Queue: "emails"})
			require.NoError(t, err)

			require.Eventually(t, func() bool { return len(events.all()) == 2 }, 5*time.Second, 20*time.Millisecond)

			byID := map[string]jobqueue.Event{}
			for _, e := range events.all() {
				byID[e.JobID] = e
			}
			assert.Equal(t, jobqueue.EventCompleted, byID[good.ID].Type)
			assert.Equal(t, jobqueue.EventFailed, byID[bad.ID].Type)
			assert.EqualError(t, byID[bad.ID].Err, "bad payload")

			counts, err := svc.Health(ctx, "emails")
			require.NoError(t, err)
			assert.Equal(t, 1, counts[jobqueue.StateCompleted])
			assert.Equal(t, 1, counts[jobqueue.StateFailed])
			assert.Equal(t, 0, counts[jobqueue.StateActive])

			page, err := svc.Find(ctx, jobqueue.FindParams{Queue: "emails", Type: jobqueue.StateCompleted})
			require.NoError(t, err)
			require.Len(t, page.Data, 1)
			assert.Equal(t, good.ID, page.Data[0].ID)
			assert.JSONEq(t, `{"ok":"yes"}`, string(page.Data[0].Result))
		})
	}
}

func TestBackend_Integration_DelayedRoundTrip(t *testing.T) {
	client := newIntegrationClient(t)
	svc := newIntegrationService(t, client)

	require.NoError(t, svc.SetupQueue(jobqueue.QueueConfig{Name: "q", Process: func(context.Context, *jobqueue.Job) (any, error) {
		return nil, nil
	}}))

	delayUntil := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	opts, err := jobqueue.NewJobOptions(
		jobqueue.WithRetries(3),
		jobqueue.WithDelayUntil(delayUntil),
		jobqueue.WithTimeout(5*time.Second),
	)
	require.NoError(t, err)

	ctx := context.Background()
	created, err := svc.Create(ctx, map[string]int{"n": 1}, jobqueue.CreateParams{Queue: "q", Job: opts})
	require.NoError(t, err)
	assert.Equal(t, jobqueue.StateDelayed, created.State)

	page, err := svc.Find(ctx, jobqueue.FindParams{Queue: "q", Type: jobqueue.StateDelayed, Query: map[string]string{"$limit": "5"}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Data, 1)

	got := page.Data[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 3, got.Retries)
	assert.Equal(t, 5*time.Second, got.Timeout)
	require.NotNil(t, got.DelayUntil)
	assert.True(t, got.DelayUntil.Equal(delayUntil))
}

func TestBackend_Integration_RetryWithBackoff(t *testing.T) {
	client := newIntegrationClient(t)
	svc := newIntegrationService(t, client)
	events := &collector{}
	svc.Events().Subscribe(events.handle, jobqueue.EventFailed)

	var mu sync.Mutex
	calls := 0
	require.NoError(t, svc.SetupQueue(jobqueue.QueueConfig{Name: "q", Process: func(context.Context, *jobqueue.Job) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, errors.New("flaky")
	}}))

	opts, err := jobqueue.NewJobOptions(
		jobqueue.WithRetries(2),
		jobqueue.WithBackoff(jobqueue.BackoffFixed, 50*time.Millisecond),
	)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), nil, jobqueue.CreateParams{Queue: "q", Job: opts})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(events.all()) == 1 }, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()

	page, err := svc.Find(context.Background(), jobqueue.FindParams{Queue: "q", Type: jobqueue.StateFailed})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 3, page.Data[0].Attempts)
}
