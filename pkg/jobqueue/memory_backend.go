package jobqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/queuekit/pkg/logger"
)

// MemoryBackend implements Backend in process memory for tests and local development.
type MemoryBackend struct {
	name         string
	pollInterval time.Duration
	logger       *slog.Logger

	mu         sync.Mutex
	jobs       map[string]*Job
	byState    map[JobState][]string
	succeeded  []SucceededHandler
	failed     []FailedHandler
	processing bool
	closed     bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// MemoryOption is a functional option for configuring a MemoryBackend
type MemoryOption func(*MemoryBackend)

// WithMemoryPollInterval sets how often idle workers look for delayed jobs that became due
func WithMemoryPollInterval(d time.Duration) MemoryOption {
	return func(m *MemoryBackend) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithMemoryLogger sets the logger for the backend
func WithMemoryLogger(logger *slog.Logger) MemoryOption {
	return func(m *MemoryBackend) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMemoryBackend creates an empty in-memory backend for the named queue.
func NewMemoryBackend(name string, opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		name:         name,
		pollInterval: 100 * time.Millisecond,
		logger:       slog.Default(),
		jobs:         make(map[string]*Job),
		byState:      make(map[JobState][]string),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MemoryBackendFactory returns a BackendFactory producing MemoryBackends.
// The poll_interval option overrides WithMemoryPollInterval per queue.
func MemoryBackendFactory(opts ...MemoryOption) BackendFactory {
	return func(name string, options BackendOptions) (Backend, error) {
		poll, err := options.Duration("poll_interval", 0)
		if err != nil {
			return nil, err
		}
		return NewMemoryBackend(name, append(opts, WithMemoryPollInterval(poll))...), nil
	}
}

// CreateJob implements Backend
func (m *MemoryBackend) CreateJob(payload json.RawMessage) JobBuilder {
	return NewJobBuilder(payload, m.save)
}

func (m *MemoryBackend) save(_ context.Context, spec JobSpec) (*Job, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrBackendClosed
	}

	job := spec.NewJob(uuid.NewString(), m.name, time.Now())
	m.jobs[job.ID] = job
	m.byState[job.State] = append(m.byState[job.State], job.ID)
	saved := job.Clone()
	m.mu.Unlock()

	m.notify()
	return saved, nil
}

// Process implements Backend
func (m *MemoryBackend) Process(concurrency int, fn ProcessFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed
	}
	if m.processing {
		return ErrAlreadyProcessing
	}
	m.processing = true
	m.wake = make(chan struct{}, max(concurrency, 1))

	for range max(concurrency, 1) {
		m.wg.Add(1)
		go m.work(fn, m.wake)
	}
	return nil
}

// OnSucceeded implements Backend
func (m *MemoryBackend) OnSucceeded(h SucceededHandler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.succeeded = append(m.succeeded, h)
	m.mu.Unlock()
}

// OnFailed implements Backend
func (m *MemoryBackend) OnFailed(h FailedHandler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.failed = append(m.failed, h)
	m.mu.Unlock()
}

// CheckHealth implements Backend
func (m *MemoryBackend) CheckHealth(_ context.Context) (HealthCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrBackendClosed
	}
	m.promoteDelayed(time.Now())

	counts := make(HealthCounts, len(JobStates))
	for _, s := range JobStates {
		counts[s] = len(m.byState[s])
	}
	return counts, nil
}

// GetJobs implements Backend. Delayed jobs are ordered by due time, all
// other states by the order they entered the state.
func (m *MemoryBackend) GetJobs(_ context.Context, state JobState, r Range) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrBackendClosed
	}
	m.promoteDelayed(time.Now())

	ids := slices.Clone(m.byState[state])
	if state == StateDelayed {
		slices.SortStableFunc(ids, func(a, b string) int {
			return m.jobs[a].DelayUntil.Compare(*m.jobs[b].DelayUntil)
		})
	}

	window := Window(ids, r)
	jobs := make([]*Job, 0, len(window))
	for _, id := range window {
		jobs = append(jobs, m.jobs[id].Clone())
	}
	return jobs, nil
}

// Close stops the workers and waits for running jobs to finish. It is idempotent.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

func (m *MemoryBackend) notify() {
	m.mu.Lock()
	wake := m.wake
	m.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}

func (m *MemoryBackend) work(fn ProcessFunc, wake <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		default:
		}

		if job := m.claim(); job != nil {
			m.run(fn, job)
			continue
		}

		select {
		case <-m.done:
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

// claim moves the oldest waiting job to active and returns a copy of it.
func (m *MemoryBackend) claim() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.promoteDelayed(time.Now())

	waiting := m.byState[StateWaiting]
	if len(waiting) == 0 {
		return nil
	}

	job := m.jobs[waiting[0]]
	m.move(job, StateActive)
	return job.Clone()
}

func (m *MemoryBackend) run(fn ProcessFunc, job *Job) {
	start := time.Now()
	result, err := Execute(context.Background(), fn, job)
	if err == nil {
		var encoded json.RawMessage
		if encoded, err = EncodeResult(result); err == nil {
			m.succeed(job.ID, encoded, result, time.Since(start))
			return
		}
	}
	m.fail(job.ID, err, time.Since(start))
}

func (m *MemoryBackend) succeed(id string, encoded json.RawMessage, result any, duration time.Duration) {
	m.mu.Lock()
	job := m.jobs[id]
	job.Result = encoded
	m.move(job, StateCompleted)
	snapshot := job.Clone()
	handlers := slices.Clone(m.succeeded)
	m.mu.Unlock()

	m.logger.Debug("job succeeded",
		logger.Queue(m.name),
		logger.JobID(id),
		logger.Duration(duration))

	for _, h := range handlers {
		h(snapshot, result)
	}
}

func (m *MemoryBackend) fail(id string, execErr error, duration time.Duration) {
	now := time.Now()

	m.mu.Lock()
	job := m.jobs[id]
	job.Attempts++
	job.Error = execErr.Error()
	attempts := job.Attempts

	if runAt, retry := job.NextRetry(now); retry {
		if runAt.After(now) {
			job.DelayUntil = &runAt
			m.move(job, StateDelayed)
		} else {
			m.move(job, StateWaiting)
		}
		m.mu.Unlock()

		m.logger.Debug("job retrying",
			logger.Queue(m.name),
			logger.JobID(id),
			logger.Attempts(attempts),
			logger.Error(execErr))
		m.notify()
		return
	}

	m.move(job, StateFailed)
	snapshot := job.Clone()
	handlers := slices.Clone(m.failed)
	m.mu.Unlock()

	m.logger.Debug("job failed",
		logger.Queue(m.name),
		logger.JobID(id),
		logger.Duration(duration),
		logger.Error(execErr))

	for _, h := range handlers {
		h(snapshot, execErr)
	}
}

// promoteDelayed moves due delayed jobs to waiting. Caller holds mu.
func (m *MemoryBackend) promoteDelayed(now time.Time) {
	for _, id := range slices.Clone(m.byState[StateDelayed]) {
		job := m.jobs[id]
		if job.DelayUntil == nil || !job.DelayUntil.After(now) {
			m.move(job, StateWaiting)
		}
	}
}

// move transfers job between state indexes. Caller holds mu.
func (m *MemoryBackend) move(job *Job, to JobState) {
	m.byState[job.State] = slices.DeleteFunc(m.byState[job.State], func(id string) bool {
		return id == job.ID
	})
	job.State = to
	m.byState[to] = append(m.byState[to], job.ID)
}
