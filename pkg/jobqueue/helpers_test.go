package jobqueue_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

// mockBackend records admission through the shared job builder and lets tests
// stub health and listing calls.
type mockBackend struct {
	mock.Mock

	mu        sync.Mutex
	succeeded []jobqueue.SucceededHandler
	failed    []jobqueue.FailedHandler
	closed    bool
}

func (m *mockBackend) CreateJob(payload json.RawMessage) jobqueue.JobBuilder {
	return jobqueue.NewJobBuilder(payload, func(ctx context.Context, spec jobqueue.JobSpec) (*jobqueue.Job, error) {
		args := m.MethodCalled("Save", ctx, spec)
		if args.Get(0) == nil {
			return nil, args.Error(1)
		}
		return args.Get(0).(*jobqueue.Job), args.Error(1)
	})
}

func (m *mockBackend) Process(concurrency int, fn jobqueue.ProcessFunc) error {
	args := m.Called(concurrency, fn)
	return args.Error(0)
}

func (m *mockBackend) OnSucceeded(h jobqueue.SucceededHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.succeeded = append(m.succeeded, h)
}

func (m *mockBackend) OnFailed(h jobqueue.FailedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, h)
}

func (m *mockBackend) CheckHealth(ctx context.Context) (jobqueue.HealthCounts, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jobqueue.HealthCounts), args.Error(1)
}

func (m *mockBackend) GetJobs(ctx context.Context, state jobqueue.JobState, r jobqueue.Range) ([]*jobqueue.Job, error) {
	args := m.Called(ctx, state, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*jobqueue.Job), args.Error(1)
}

func (m *mockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockBackend) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockBackend) emitSucceeded(job *jobqueue.Job, result any) {
	m.mu.Lock()
	handlers := m.succeeded
	m.mu.Unlock()
	for _, h := range handlers {
		h(job, result)
	}
}

func (m *mockBackend) emitFailed(job *jobqueue.Job, err error) {
	m.mu.Lock()
	handlers := m.failed
	m.mu.Unlock()
	for _, h := range handlers {
		h(job, err)
	}
}

// newProcessingMock returns a backend that accepts any Process call.
func newProcessingMock() *mockBackend {
	m := &mockBackend{}
	m.On("Process", mock.Anything, mock.Anything).Return(nil)
	return m
}

// mockFactory hands out pre-built backends by queue name.
func mockFactory(backends map[string]*mockBackend) jobqueue.BackendFactory {
	return func(name string, _ jobqueue.BackendOptions) (jobqueue.Backend, error) {
		b, ok := backends[name]
		if !ok {
			b = newProcessingMock()
			backends[name] = b
		}
		return b, nil
	}
}

func noopProcess(context.Context, *jobqueue.Job) (any, error) {
	return nil, nil
}

// eventRecorder collects published events.
type eventRecorder struct {
	mu     sync.Mutex
	events []jobqueue.Event
}

func (r *eventRecorder) handle(e jobqueue.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []jobqueue.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]jobqueue.Event, len(r.events))
	copy(out, r.events)
	return out
}

func ptr[T any](v T) *T {
	return &v
}
