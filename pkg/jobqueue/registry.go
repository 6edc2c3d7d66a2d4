package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/dmitrymomot/queuekit/pkg/logger"
)

// Worker processes a single job. A fresh Worker is built for every job.
type Worker interface {
	Process(ctx context.Context) (any, error)
}

// WorkerFactory builds the Worker for one job. app is the value passed to
// Service.Setup, nil if Setup was never called.
type WorkerFactory func(app any, job *Job) Worker

// QueueConfig describes one named queue. Exactly one of NewWorker and
// Process must be set.
type QueueConfig struct {
	Name        string
	Concurrency int
	NewWorker   WorkerFactory
	Process     ProcessFunc
	Options     BackendOptions
}

// Validate checks the config before any backend is created.
func (c QueueConfig) Validate() error {
	if c.Name == "" {
		return ErrQueueNameRequired
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: queue %q has concurrency %d", ErrInvalidConcurrency, c.Name, c.Concurrency)
	}
	switch {
	case c.NewWorker == nil && c.Process == nil:
		return fmt.Errorf("%w: queue %q", ErrNoProcessor, c.Name)
	case c.NewWorker != nil && c.Process != nil:
		return fmt.Errorf("%w: queue %q", ErrAmbiguousProcessor, c.Name)
	}
	return nil
}

// Registry owns the queue name to backend mapping.
// Register is expected to run before steady-state traffic.
type Registry struct {
	mu      sync.RWMutex
	queues  map[string]Backend
	app     any
	factory BackendFactory
	bus     *EventBus
	logger  *slog.Logger
}

// RegistryOption is a functional option for configuring a Registry
type RegistryOption func(*Registry)

// WithRegistryEventBus sets the bus outcome events are bridged to
func WithRegistryEventBus(bus *EventBus) RegistryOption {
	return func(r *Registry) {
		if bus != nil {
			r.bus = bus
		}
	}
}

// WithRegistryLogger sets the logger for the registry
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry whose backends come from factory.
func NewRegistry(factory BackendFactory, opts ...RegistryOption) (*Registry, error) {
	if factory == nil {
		return nil, ErrNilBackendFactory
	}
	r := &Registry{
		queues:  make(map[string]Backend),
		factory: factory,
		bus:     NewEventBus(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register creates the backend for cfg, bridges its events and starts
// processing. A queue registered under an existing name replaces the old one,
// which is closed.
func (r *Registry) Register(cfg QueueConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	backend, err := r.factory(cfg.Name, cfg.Options)
	if err != nil {
		return fmt.Errorf("failed to create backend for queue %q: %w", cfg.Name, err)
	}

	bridgeEvents(r.bus, cfg.Name, backend)

	concurrency := max(cfg.Concurrency, 1)
	if err := backend.Process(concurrency, r.processFunc(cfg)); err != nil {
		return errors.Join(fmt.Errorf("failed to start processing queue %q: %w", cfg.Name, err), backend.Close())
	}

	r.mu.Lock()
	prev := r.queues[cfg.Name]
	r.queues[cfg.Name] = backend
	r.mu.Unlock()

	if prev != nil {
		r.logger.Warn("queue re-registered, closing previous backend", logger.Queue(cfg.Name))
		if err := prev.Close(); err != nil {
			r.logger.Error("failed to close previous backend",
				logger.Queue(cfg.Name),
				logger.Error(err))
		}
	}

	r.logger.Info("queue registered",
		logger.Queue(cfg.Name),
		logger.Concurrency(concurrency))

	return nil
}

// Resolve returns the backend registered under name.
func (r *Registry) Resolve(name string) (Backend, error) {
	r.mu.RLock()
	backend, ok := r.queues[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrQueueNotFound, name)
	}
	return backend, nil
}

// Names returns the registered queue names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.queues))
}

// Close closes every registered backend.
func (r *Registry) Close() error {
	r.mu.Lock()
	queues := r.queues
	r.queues = make(map[string]Backend)
	r.mu.Unlock()

	var errs []error
	for name, backend := range queues {
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close queue %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) setApp(app any) {
	r.mu.Lock()
	r.app = app
	r.mu.Unlock()
}

func (r *Registry) appValue() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.app
}

func (r *Registry) processFunc(cfg QueueConfig) ProcessFunc {
	if cfg.Process != nil {
		return cfg.Process
	}
	newWorker := cfg.NewWorker
	return func(ctx context.Context, job *Job) (any, error) {
		w := newWorker(r.appValue(), job)
		if w == nil {
			return nil, ErrNilWorker
		}
		return w.Process(ctx)
	}
}
