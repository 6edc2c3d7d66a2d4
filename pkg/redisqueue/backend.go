package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
	"github.com/dmitrymomot/queuekit/pkg/logger"
)

// Backend is a jobqueue.Backend storing one queue in Redis.
//
// Workers block on the waiting list and move jobs to the active list
// atomically, so a job is handed to at most one worker. Outcomes are
// published on the queue's events channel, which lets every process
// attached to the queue observe jobs finished elsewhere.
type Backend struct {
	client       redis.UniversalClient
	name         string
	prefix       string
	keys         keys
	blockTimeout time.Duration
	pollInterval time.Duration
	sendEvents   bool
	getEvents    bool
	logger       *slog.Logger

	mu         sync.Mutex
	succeeded  []jobqueue.SucceededHandler
	failed     []jobqueue.FailedHandler
	processing bool
	closed     bool
	pubsub     *redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a backend for the named queue on client. The client is not
// closed by Backend.Close.
func New(client redis.UniversalClient, name string, opts ...Option) (*Backend, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if name == "" {
		return nil, jobqueue.ErrQueueNameRequired
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Backend{
		client:       client,
		name:         name,
		prefix:       "bq",
		blockTimeout: time.Second,
		pollInterval: 500 * time.Millisecond,
		sendEvents:   true,
		getEvents:    true,
		logger:       slog.Default(),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.keys = newKeys(b.prefix, name)
	return b, nil
}

// Factory returns a jobqueue.BackendFactory creating backends on client.
// Per-queue options prefix, block_timeout, poll_interval, send_events and
// get_events override opts.
func Factory(client redis.UniversalClient, opts ...Option) jobqueue.BackendFactory {
	return func(name string, options jobqueue.BackendOptions) (jobqueue.Backend, error) {
		queueOpts, err := optionsFrom(options)
		if err != nil {
			return nil, fmt.Errorf("redis backend for queue %q: %w", name, err)
		}
		return New(client, name, append(slices.Clone(opts), queueOpts...)...)
	}
}

func optionsFrom(options jobqueue.BackendOptions) ([]Option, error) {
	var opts []Option

	prefix, err := options.String("prefix", "")
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithPrefix(prefix))

	block, err := options.Duration("block_timeout", 0)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithBlockTimeout(block))

	poll, err := options.Duration("poll_interval", 0)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithPollInterval(poll))

	for key, opt := range map[string]func(bool) Option{
		"send_events": WithSendEvents,
		"get_events":  WithGetEvents,
	} {
		if _, ok := options[key]; !ok {
			continue
		}
		v, err := options.Bool(key, false)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt(v))
	}

	return opts, nil
}

// CreateJob implements jobqueue.Backend
func (b *Backend) CreateJob(payload json.RawMessage) jobqueue.JobBuilder {
	return jobqueue.NewJobBuilder(payload, b.save)
}

func (b *Backend) save(ctx context.Context, spec jobqueue.JobSpec) (*jobqueue.Job, error) {
	if b.isClosed() {
		return nil, jobqueue.ErrBackendClosed
	}

	seq, err := b.client.Incr(ctx, b.keys.id).Result()
	if err != nil {
		return nil, fmt.Errorf("redisqueue: next job id: %w", err)
	}

	now := time.Now()
	job := spec.NewJob(strconv.FormatInt(seq, 10), b.name, now)
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("redisqueue: encode job: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.keys.jobs, job.ID, data)
	if job.State == jobqueue.StateDelayed {
		pipe.ZAdd(ctx, b.keys.delayed, redis.Z{Score: unixMilli(*job.DelayUntil), Member: job.ID})
	} else {
		pipe.RPush(ctx, b.keys.waiting, job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redisqueue: save job: %w", err)
	}

	return job, nil
}

// Process implements jobqueue.Backend. It starts concurrency workers, a
// delayed job promoter and, when events are received over pub/sub, the
// event listener.
func (b *Backend) Process(concurrency int, fn jobqueue.ProcessFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return jobqueue.ErrBackendClosed
	}
	if b.processing {
		return jobqueue.ErrAlreadyProcessing
	}

	if b.getEvents {
		if err := b.listen(); err != nil {
			return err
		}
	}
	b.processing = true

	b.wg.Add(1)
	go b.promoteLoop()

	for range max(concurrency, 1) {
		b.wg.Add(1)
		go b.work(fn)
	}

	b.logger.Info("redis queue processing",
		logger.Queue(b.name),
		logger.Concurrency(max(concurrency, 1)))
	return nil
}

// OnSucceeded implements jobqueue.Backend
func (b *Backend) OnSucceeded(h jobqueue.SucceededHandler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.succeeded = append(b.succeeded, h)
	b.mu.Unlock()
}

// OnFailed implements jobqueue.Backend
func (b *Backend) OnFailed(h jobqueue.FailedHandler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.failed = append(b.failed, h)
	b.mu.Unlock()
}

// CheckHealth implements jobqueue.Backend. Due delayed jobs are promoted
// before counting.
func (b *Backend) CheckHealth(ctx context.Context) (jobqueue.HealthCounts, error) {
	if err := b.promote(ctx); err != nil {
		return nil, err
	}

	var waiting, active, succeeded, failed, delayed *redis.IntCmd
	_, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.LLen(ctx, b.keys.waiting)
		active = pipe.LLen(ctx, b.keys.active)
		succeeded = pipe.ZCard(ctx, b.keys.succeeded)
		failed = pipe.ZCard(ctx, b.keys.failed)
		delayed = pipe.ZCard(ctx, b.keys.delayed)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redisqueue: check health: %w", err)
	}

	return jobqueue.HealthCounts{
		jobqueue.StateWaiting:   int(waiting.Val()),
		jobqueue.StateActive:    int(active.Val()),
		jobqueue.StateCompleted: int(succeeded.Val()),
		jobqueue.StateFailed:    int(failed.Val()),
		jobqueue.StateDelayed:   int(delayed.Val()),
	}, nil
}

// GetJobs implements jobqueue.Backend. Waiting and active jobs are listed
// in list order, the others by score.
func (b *Backend) GetJobs(ctx context.Context, state jobqueue.JobState, r jobqueue.Range) ([]*jobqueue.Job, error) {
	if r.Len() == 0 || r.Start < 0 {
		return []*jobqueue.Job{}, nil
	}

	start, stop := int64(r.Start), int64(r.End-1)
	var cmd *redis.StringSliceCmd
	switch state {
	case jobqueue.StateWaiting:
		cmd = b.client.LRange(ctx, b.keys.waiting, start, stop)
	case jobqueue.StateActive:
		cmd = b.client.LRange(ctx, b.keys.active, start, stop)
	case jobqueue.StateCompleted:
		cmd = b.client.ZRange(ctx, b.keys.succeeded, start, stop)
	case jobqueue.StateFailed:
		cmd = b.client.ZRange(ctx, b.keys.failed, start, stop)
	case jobqueue.StateDelayed:
		cmd = b.client.ZRange(ctx, b.keys.delayed, start, stop)
	default:
		return nil, fmt.Errorf("%w (got %q)", jobqueue.ErrInvalidType, state)
	}

	ids, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("redisqueue: list %s jobs: %w", state, err)
	}
	return b.loadJobs(ctx, state, ids)
}

// Close stops the workers, waits for running jobs and unsubscribes from
// events. It is idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pubsub := b.pubsub
	b.mu.Unlock()

	b.cancel()
	var err error
	if pubsub != nil {
		err = pubsub.Close()
	}
	b.wg.Wait()
	return err
}

func (b *Backend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Backend) loadJobs(ctx context.Context, state jobqueue.JobState, ids []string) ([]*jobqueue.Job, error) {
	if len(ids) == 0 {
		return []*jobqueue.Job{}, nil
	}

	values, err := b.client.HMGet(ctx, b.keys.jobs, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisqueue: load jobs: %w", err)
	}

	jobs := make([]*jobqueue.Job, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		job, err := decodeJob([]byte(raw))
		if err != nil {
			b.logger.Warn("skipping undecodable job",
				logger.Queue(b.name),
				logger.JobID(ids[i]),
				logger.Error(err))
			continue
		}
		job.State = state
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (b *Backend) loadJob(ctx context.Context, id string) (*jobqueue.Job, error) {
	raw, err := b.client.HGet(ctx, b.keys.jobs, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redisqueue: load job %s: %w", id, err)
	}
	return decodeJob(raw)
}

func decodeJob(raw []byte) (*jobqueue.Job, error) {
	var job jobqueue.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, errors.Join(ErrCorruptJob, err)
	}
	return &job, nil
}

func (b *Backend) promote(ctx context.Context) error {
	err := promoteDelayedScript.Run(ctx, b.client,
		[]string{b.keys.delayed, b.keys.waiting},
		time.Now().UnixMilli(), promoteBatch,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redisqueue: promote delayed jobs: %w", err)
	}
	return nil
}

func (b *Backend) promoteLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if err := b.promote(b.ctx); err != nil && b.ctx.Err() == nil {
				b.logger.Error("failed to promote delayed jobs",
					logger.Queue(b.name),
					logger.Error(err))
			}
		}
	}
}

func (b *Backend) work(fn jobqueue.ProcessFunc) {
	defer b.wg.Done()

	for {
		if b.ctx.Err() != nil {
			return
		}

		id, err := b.client.BLMove(b.ctx, b.keys.waiting, b.keys.active, "LEFT", "RIGHT", b.blockTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Error("failed to claim job",
				logger.Queue(b.name),
				logger.Error(err))
			select {
			case <-b.ctx.Done():
				return
			case <-time.After(b.pollInterval):
			}
			continue
		}

		// Running jobs finish even when the backend is closing.
		b.run(context.WithoutCancel(b.ctx), fn, id)
	}
}

func (b *Backend) run(ctx context.Context, fn jobqueue.ProcessFunc, id string) {
	job, err := b.loadJob(ctx, id)
	if err != nil {
		b.logger.Error("dropping claimed job",
			logger.Queue(b.name),
			logger.JobID(id),
			logger.Error(err))
		_ = b.client.LRem(ctx, b.keys.active, 0, id).Err()
		return
	}
	job.State = jobqueue.StateActive

	start := time.Now()
	result, err := jobqueue.Execute(ctx, fn, job)
	if err == nil {
		var encoded json.RawMessage
		if encoded, err = jobqueue.EncodeResult(result); err == nil {
			b.succeed(ctx, job, encoded, result, time.Since(start))
			return
		}
	}
	b.fail(ctx, job, err, time.Since(start))
}

func (b *Backend) succeed(ctx context.Context, job *jobqueue.Job, encoded json.RawMessage, result any, duration time.Duration) {
	job.State = jobqueue.StateCompleted
	job.Result = encoded

	if err := b.finish(ctx, job, b.keys.succeeded, time.Now()); err != nil {
		b.logger.Error("failed to record job success",
			logger.Queue(b.name),
			logger.JobID(job.ID),
			logger.Error(err))
		return
	}

	b.logger.Debug("job succeeded",
		logger.Queue(b.name),
		logger.JobID(job.ID),
		logger.Duration(duration))

	b.announce(ctx, message{Event: eventSucceeded, ID: job.ID, Data: encoded}, func() {
		b.fireSucceeded(job, result)
	})
}

func (b *Backend) fail(ctx context.Context, job *jobqueue.Job, execErr error, duration time.Duration) {
	now := time.Now()
	job.Attempts++
	job.Error = execErr.Error()

	if runAt, retry := job.NextRetry(now); retry {
		var err error
		if runAt.After(now) {
			job.State = jobqueue.StateDelayed
			job.DelayUntil = &runAt
			err = b.finish(ctx, job, b.keys.delayed, runAt)
		} else {
			job.State = jobqueue.StateWaiting
			err = b.finish(ctx, job, b.keys.waiting, now)
		}
		if err != nil {
			b.logger.Error("failed to schedule job retry",
				logger.Queue(b.name),
				logger.JobID(job.ID),
				logger.Error(err))
			return
		}

		b.logger.Debug("job retrying",
			logger.Queue(b.name),
			logger.JobID(job.ID),
			logger.Attempts(job.Attempts),
			logger.Error(execErr))
		return
	}

	job.State = jobqueue.StateFailed
	if err := b.finish(ctx, job, b.keys.failed, now); err != nil {
		b.logger.Error("failed to record job failure",
			logger.Queue(b.name),
			logger.JobID(job.ID),
			logger.Error(err))
		return
	}

	b.logger.Debug("job failed",
		logger.Queue(b.name),
		logger.JobID(job.ID),
		logger.Duration(duration),
		logger.Error(execErr))

	b.announce(ctx, newFailedMessage(job.ID, execErr), func() {
		b.fireFailed(job, execErr)
	})
}

// finish moves job out of the active list into dest atomically.
func (b *Backend) finish(ctx context.Context, job *jobqueue.Job, dest string, at time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redisqueue: encode job: %w", err)
	}

	kind := "zset"
	if dest == b.keys.waiting {
		kind = "list"
	}
	return finishScript.Run(ctx, b.client,
		[]string{b.keys.jobs, b.keys.active, dest},
		job.ID, data, kind, unixMilli(at),
	).Err()
}

// announce publishes m when sending is enabled and runs local when handlers
// are not fed from pub/sub.
func (b *Backend) announce(ctx context.Context, m message, local func()) {
	if b.sendEvents {
		payload, err := json.Marshal(m)
		if err == nil {
			err = b.client.Publish(ctx, b.keys.events, payload).Err()
		}
		if err != nil {
			b.logger.Error("failed to publish job event",
				logger.Queue(b.name),
				logger.JobID(m.ID),
				logger.Error(err))
		}
	}
	if !b.getEvents {
		local()
	}
}

// listen subscribes to the events channel. Caller holds mu.
func (b *Backend) listen() error {
	pubsub := b.client.Subscribe(b.ctx, b.keys.events)
	if _, err := pubsub.Receive(b.ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redisqueue: subscribe to %s: %w", b.keys.events, err)
	}
	b.pubsub = pubsub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range pubsub.Channel() {
			b.dispatch(msg.Payload)
		}
	}()
	return nil
}

func (b *Backend) dispatch(payload string) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		b.logger.Warn("ignoring malformed job event",
			logger.Queue(b.name),
			logger.Error(err))
		return
	}

	job, err := b.loadJob(context.WithoutCancel(b.ctx), m.ID)
	if err != nil {
		job = &jobqueue.Job{ID: m.ID, Queue: b.name}
	}

	switch m.Event {
	case eventSucceeded:
		job.State = jobqueue.StateCompleted
		var result any
		if len(m.Data) > 0 {
			result = m.Data
		}
		b.fireSucceeded(job, result)
	case eventFailed:
		job.State = jobqueue.StateFailed
		b.fireFailed(job, m.err())
	}
}

func (b *Backend) fireSucceeded(job *jobqueue.Job, result any) {
	b.mu.Lock()
	handlers := slices.Clone(b.succeeded)
	b.mu.Unlock()
	for _, h := range handlers {
		h(job.Clone(), result)
	}
}

func (b *Backend) fireFailed(job *jobqueue.Job, err error) {
	b.mu.Lock()
	handlers := slices.Clone(b.failed)
	b.mu.Unlock()
	for _, h := range handlers {
		h(job.Clone(), err)
	}
}

func unixMilli(t time.Time) float64 {
	return float64(t.UnixMilli())
}
