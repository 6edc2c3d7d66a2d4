package jobqueue_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

func TestQueueConfig_Validate(t *testing.T) {
	t.Parallel()

	worker := func(any, *jobqueue.Job) jobqueue.Worker { return nil }

	tests := []struct {
		name    string
		cfg     jobqueue.QueueConfig
		wantErr error
	}{
		{"empty name", jobqueue.QueueConfig{Process: noopProcess}, jobqueue.ErrQueueNameRequired},
		{"negative concurrency", jobqueue.QueueConfig{Name: "q", Concurrency: -1, Process: noopProcess}, jobqueue.ErrInvalidConcurrency},
		{"no processor", jobqueue.QueueConfig{Name: "q"}, jobqueue.ErrNoProcessor},
		{"both processors", jobqueue.QueueConfig{Name: "q", Process: noopProcess, NewWorker: worker}, jobqueue.ErrAmbiguousProcessor},
		{"process func", jobqueue.QueueConfig{Name: "q", Process: noopProcess}, nil},
		{"worker factory", jobqueue.QueueConfig{Name: "q", NewWorker: worker, Concurrency: 3}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	r, err := jobqueue.NewRegistry(nil)
	assert.ErrorIs(t, err, jobqueue.ErrNilBackendFactory)
	assert.Nil(t, r)
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	t.Run("unknown name never resolves", func(t *testing.T) {
		t.Parallel()

		r, err := jobqueue.NewRegistry(mockFactory(map[string]*mockBackend{}))
		require.NoError(t, err)
		require.NoError(t, r.Register(jobqueue.QueueConfig{Name: "a", Process: noopProcess}))

		_, err = r.Resolve("a")
		require.NoError(t, err)

		for _, name := range []string{"", "A", "b", "a "} {
			backend, err := r.Resolve(name)
			assert.ErrorIs(t, err, jobqueue.ErrQueueNotFound, name)
			assert.Nil(t, backend)
		}
	})

	t.Run("invalid config never reaches the factory", func(t *testing.T) {
		t.Parallel()

		called := false
		r, err := jobqueue.NewRegistry(func(string, jobqueue.BackendOptions) (jobqueue.Backend, error) {
			called = true
			return newProcessingMock(), nil
		})
		require.NoError(t, err)

		err = r.Register(jobqueue.QueueConfig{Name: "a"})
		assert.ErrorIs(t, err, jobqueue.ErrNoProcessor)
		assert.False(t, called)
	})

	t.Run("factory error", func(t *testing.T) {
		t.Parallel()

		factoryErr := errors.New("dial tcp: refused")
		r, err := jobqueue.NewRegistry(func(string, jobqueue.BackendOptions) (jobqueue.Backend, error) {
			return nil, factoryErr
		})
		require.NoError(t, err)

		err = r.Register(jobqueue.QueueConfig{Name: "a", Process: noopProcess})
		assert.ErrorIs(t, err, factoryErr)
		assert.Empty(t, r.Names())
	})

	t.Run("process error closes the backend", func(t *testing.T) {
		t.Parallel()

		backend := &mockBackend{}
		backend.On("Process", 1, mock.Anything).Return(jobqueue.ErrAlreadyProcessing).Once()
		r, err := jobqueue.NewRegistry(mockFactory(map[string]*mockBackend{"a": backend}))
		require.NoError(t, err)

		err = r.Register(jobqueue.QueueConfig{Name: "a", Process: noopProcess})
		assert.ErrorIs(t, err, jobqueue.ErrAlreadyProcessing)
		assert.True(t, backend.isClosed())
		assert.Empty(t, r.Names())
	})

	t.Run("concurrency defaults to one", func(t *testing.T) {
		t.Parallel()

		backend := &mockBackend{}
		backend.On("Process", 1, mock.Anything).Return(nil).Once()
		r, err := jobqueue.NewRegistry(mockFactory(map[string]*mockBackend{"a": backend}))
		require.NoError(t, err)

		require.NoError(t, r.Register(jobqueue.QueueConfig{Name: "a", Process: noopProcess}))
		backend.AssertExpectations(t)
	})

	t.Run("options reach the factory", func(t *testing.T) {
		t.Parallel()

		var got jobqueue.BackendOptions
		r, err := jobqueue.NewRegistry(func(_ string, opts jobqueue.BackendOptions) (jobqueue.Backend, error) {
			got = opts
			return newProcessingMock(), nil
		})
		require.NoError(t, err)

		opts := jobqueue.BackendOptions{"prefix": "bq"}
		require.NoError(t, r.Register(jobqueue.QueueConfig{Name: "a", Process: noopProcess, Options: opts}))
		assert.Equal(t, opts, got)
	})

	t.Run("re-register closes the previous backend", func(t *testing.T) {
		t.Parallel()

		first, second := newProcessingMock(), newProcessingMock()
		backends := []*mockBackend{first, second}
		var mu sync.Mutex
		r, err := jobqueue.NewRegistry(func(string, jobqueue.BackendOptions) (jobqueue.Backend, error) {
			mu.Lock()
			defer mu.Unlock()
			b := backends[0]
			backends = backends[1:]
			return b, nil
		})
		require.NoError(t, err)

		require.NoError(t, r.Register(jobqueue.QueueConfig{Name: "a", Process: noopProcess}))
		require.NoError(t, r.Register(jobqueue.QueueConfig{Name: "a", Process: noopProcess}))

		assert.True(t, first.isClosed())
		assert.False(t, second.isClosed())

		resolved, err := r.Resolve("a")
		require.NoError(t, err)
		assert.Same(t, second, resolved)
		assert.Equal(t, []string{"a"}, r.Names())
	})

	t.Run("names are sorted", func(t *testing.T) {
		t.Parallel()

		r, err := jobqueue.NewRegistry(mockFactory(map[string]*mockBackend{}))
		require.NoError(t, err)
		for _, name := range []string{"reports", "emails", "billing"} {
			require.NoError(t, r.Register(jobqueue.QueueConfig{Name: name, Process: noopProcess}))
		}
		assert.Equal(t, []string{"billing", "emails", "reports"}, r.Names())
	})
}

type greetWorker struct {
	app any
	job *jobqueue.Job
}

func (w *greetWorker) Process(context.Context) (any, error) {
	return map[string]any{"app": w.app, "job": w.job.ID}, nil
}

func TestRegistry_WorkerFactory(t *testing.T) {
	t.Parallel()

	t.Run("factory receives the app and the job", func(t *testing.T) {
		t.Parallel()

		backend := &mockBackend{}
		var fn jobqueue.ProcessFunc
		backend.On("Process", 2, mock.Anything).Run(func(args mock.Arguments) {
			fn = args.Get(1).(jobqueue.ProcessFunc)
		}).Return(nil).Once()

		svc, err := jobqueue.NewService(mockFactory(map[string]*mockBackend{"q": backend}))
		require.NoError(t, err)
		svc.Setup("my-app")

		require.NoError(t, svc.SetupQueue(jobqueue.QueueConfig{
			Name:        "q",
			Concurrency: 2,
			NewWorker: func(app any, job *jobqueue.Job) jobqueue.Worker {
				return &greetWorker{app: app, job: job}
			},
		}))
		require.NotNil(t, fn)

		result, err := fn(context.Background(), &jobqueue.Job{ID: "j1"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"app": "my-app", "job": "j1"}, result)
	})

	t.Run("nil worker", func(t *testing.T) {
		t.Parallel()

		backend := &mockBackend{}
		var fn jobqueue.ProcessFunc
		backend.On("Process", 1, mock.Anything).Run(func(args mock.Arguments) {
			fn = args.Get(1).(jobqueue.ProcessFunc)
		}).Return(nil).Once()

		r, err := jobqueue.NewRegistry(mockFactory(map[string]*mockBackend{"q": backend}))
		require.NoError(t, err)
		require.NoError(t, r.Register(jobqueue.QueueConfig{
			Name:      "q",
			NewWorker: func(any, *jobqueue.Job) jobqueue.Worker { return nil },
		}))

		_, err = fn(context.Background(), &jobqueue.Job{ID: "j1"})
		assert.ErrorIs(t, err, jobqueue.ErrNilWorker)
	})
}

func TestRegistry_EventBridge(t *testing.T) {
	t.Parallel()

	a, b := newProcessingMock(), newProcessingMock()
	svc := newTestService(t, map[string]*mockBackend{"a": a, "b": b})
	rec := &eventRecorder{}
	svc.Events().Subscribe(rec.handle)

	jobErr := errors.New("boom")
	a.emitSucceeded(&jobqueue.Job{ID: "1"}, "done")
	b.emitFailed(&jobqueue.Job{ID: "2"}, jobErr)
	a.emitFailed(&jobqueue.Job{ID: "3"}, jobErr)

	events := rec.all()
	require.Len(t, events, 3)

	assert.Equal(t, jobqueue.Event{Type: jobqueue.EventCompleted, Queue: "a", JobID: "1", Result: "done"}, events[0])
	assert.Equal(t, jobqueue.Event{Type: jobqueue.EventFailed, Queue: "b", JobID: "2", Err: jobErr}, events[1])
	assert.Equal(t, jobqueue.Event{Type: jobqueue.EventFailed, Queue: "a", JobID: "3", Err: jobErr}, events[2])
}
