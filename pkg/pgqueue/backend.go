package pgqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
	"github.com/dmitrymomot/queuekit/pkg/logger"
)

// Backend is a jobqueue.Backend storing one queue in the queue_jobs table.
// Workers claim rows with FOR UPDATE SKIP LOCKED, so several processes may
// work the same queue. Outcome handlers observe only jobs processed by this
// backend.
type Backend struct {
	pool         *pgxpool.Pool
	name         string
	pollInterval time.Duration
	logger       *slog.Logger

	mu         sync.Mutex
	succeeded  []jobqueue.SucceededHandler
	failed     []jobqueue.FailedHandler
	processing bool
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	wg     sync.WaitGroup
}

// New creates a backend for the named queue. Migrate must have been run on
// the database. The pool is not closed by Backend.Close.
func New(pool *pgxpool.Pool, name string, opts ...Option) (*Backend, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	if name == "" {
		return nil, jobqueue.ErrQueueNameRequired
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Backend{
		pool:         pool,
		name:         name,
		pollInterval: 500 * time.Millisecond,
		logger:       slog.Default(),
		ctx:          ctx,
		cancel:       cancel,
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Factory returns a jobqueue.BackendFactory creating backends on pool.
// The per-queue poll_interval option overrides WithPollInterval.
func Factory(pool *pgxpool.Pool, opts ...Option) jobqueue.BackendFactory {
	return func(name string, options jobqueue.BackendOptions) (jobqueue.Backend, error) {
		poll, err := options.Duration("poll_interval", 0)
		if err != nil {
			return nil, fmt.Errorf("postgres backend for queue %q: %w", name, err)
		}
		return New(pool, name, append(slices.Clone(opts), WithPollInterval(poll))...)
	}
}

// CreateJob implements jobqueue.Backend
func (b *Backend) CreateJob(payload json.RawMessage) jobqueue.JobBuilder {
	return jobqueue.NewJobBuilder(payload, b.save)
}

func (b *Backend) save(ctx context.Context, spec jobqueue.JobSpec) (*jobqueue.Job, error) {
	if b.isClosed() {
		return nil, jobqueue.ErrBackendClosed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("pgqueue: generate job id: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	job := spec.NewJob(id.String(), b.name, now)
	storedDurations(job)
	runAt := now
	if job.DelayUntil != nil {
		runAt = *job.DelayUntil
	}
	strategy, delay := backoffColumns(job.Backoff)

	_, err = b.pool.Exec(ctx, insertJobQuery,
		id, b.name, jsonArg(job.Payload), string(job.State), job.Retries,
		strategy, delay, job.DelayUntil, runAt, job.Timeout.Milliseconds(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("pgqueue: save job: %w", err)
	}

	b.notify()
	return job, nil
}

// Process implements jobqueue.Backend
func (b *Backend) Process(concurrency int, fn jobqueue.ProcessFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return jobqueue.ErrBackendClosed
	}
	if b.processing {
		return jobqueue.ErrAlreadyProcessing
	}
	b.processing = true

	n := max(concurrency, 1)
	b.wake = make(chan struct{}, n)
	for range n {
		b.wg.Add(1)
		go b.work(fn, b.wake)
	}

	b.logger.Info("postgres queue processing",
		logger.Queue(b.name),
		logger.Concurrency(n))
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
	if _, err := b.pool.Exec(ctx, promoteDelayedQuery, b.name); err != nil {
		return nil, fmt.Errorf("pgqueue: promote delayed jobs: %w", err)
	}

	rows, err := b.pool.Query(ctx, countJobsQuery, b.name)
	if err != nil {
		return nil, fmt.Errorf("pgqueue: check health: %w", err)
	}

	counts := make(jobqueue.HealthCounts, len(jobqueue.JobStates))
	for _, s := range jobqueue.JobStates {
		counts[s] = 0
	}

	var (
		state string
		count int
	)
	_, err = pgx.ForEachRow(rows, []any{&state, &count}, func() error {
		counts[jobqueue.JobState(state)] = count
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgqueue: check health: %w", err)
	}
	return counts, nil
}

// GetJobs implements jobqueue.Backend
func (b *Backend) GetJobs(ctx context.Context, state jobqueue.JobState, r jobqueue.Range) ([]*jobqueue.Job, error) {
	query, ok := listJobsQueries[string(state)]
	if !ok {
		return nil, fmt.Errorf("%w (got %q)", jobqueue.ErrInvalidType, state)
	}
	if r.Len() == 0 {
		return []*jobqueue.Job{}, nil
	}

	rows, err := b.pool.Query(ctx, query, b.name, max(r.Start, 0), r.Len())
	if err != nil {
		return nil, fmt.Errorf("pgqueue: list %s jobs: %w", state, err)
	}
	jobs, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("pgqueue: list %s jobs: %w", state, err)
	}
	return jobs, nil
}

// Close stops the workers and waits for running jobs to finish. It is idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}

func (b *Backend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Backend) notify() {
	b.mu.Lock()
	wake := b.wake
	b.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}

func (b *Backend) work(fn jobqueue.ProcessFunc, wake <-chan struct{}) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		if b.ctx.Err() != nil {
			return
		}

		job, err := b.claim(b.ctx)
		switch {
		case err == nil:
			// Running jobs finish even when the backend is closing.
			b.run(context.WithoutCancel(b.ctx), fn, job)
			continue
		case errors.Is(err, pgx.ErrNoRows):
		case b.ctx.Err() != nil:
			return
		default:
			b.logger.Error("failed to claim job",
				logger.Queue(b.name),
				logger.Error(err))
		}

		select {
		case <-b.ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

func (b *Backend) claim(ctx context.Context) (*jobqueue.Job, error) {
	rows, err := b.pool.Query(ctx, claimJobQuery, b.name)
	if err != nil {
		return nil, err
	}
	return pgx.CollectExactlyOneRow(rows, scanJob)
}

func (b *Backend) run(ctx context.Context, fn jobqueue.ProcessFunc, job *jobqueue.Job) {
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
	if err := b.update(ctx, succeedJobQuery, job.ID, jsonArg(encoded)); err != nil {
		b.logger.Error("failed to record job success",
			logger.Queue(b.name),
			logger.JobID(job.ID),
			logger.Error(err))
		return
	}
	job.State = jobqueue.StateCompleted
	job.Result = encoded

	b.logger.Debug("job succeeded",
		logger.Queue(b.name),
		logger.JobID(job.ID),
		logger.Duration(duration))

	b.mu.Lock()
	handlers := slices.Clone(b.succeeded)
	b.mu.Unlock()
	for _, h := range handlers {
		h(job.Clone(), result)
	}
}

func (b *Backend) fail(ctx context.Context, job *jobqueue.Job, execErr error, duration time.Duration) {
	now := time.Now()
	job.Attempts++
	job.Error = execErr.Error()

	if runAt, retry := job.NextRetry(now); retry {
		state := jobqueue.StateWaiting
		var delayUntil *time.Time
		if runAt.After(now) {
			state = jobqueue.StateDelayed
			delayUntil = &runAt
		}
		if err := b.update(ctx, retryJobQuery, job.ID, string(state), job.Attempts, job.Error, delayUntil, runAt); err != nil {
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
		if state == jobqueue.StateWaiting {
			b.notify()
		}
		return
	}

	if err := b.update(ctx, failJobQuery, job.ID, job.Attempts, job.Error); err != nil {
		b.logger.Error("failed to record job failure",
			logger.Queue(b.name),
			logger.JobID(job.ID),
			logger.Error(err))
		return
	}
	job.State = jobqueue.StateFailed

	b.logger.Debug("job failed",
		logger.Queue(b.name),
		logger.JobID(job.ID),
		logger.Duration(duration),
		logger.Error(execErr))

	b.mu.Lock()
	handlers := slices.Clone(b.failed)
	b.mu.Unlock()
	for _, h := range handlers {
		h(job.Clone(), execErr)
	}
}

// update runs a single-row statement whose first argument is the job id.
func (b *Backend) update(ctx context.Context, query, jobID string, args ...any) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return fmt.Errorf("pgqueue: job id %q: %w", jobID, err)
	}
	_, err = b.pool.Exec(ctx, query, append([]any{id}, args...)...)
	return err
}
