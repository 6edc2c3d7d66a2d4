package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/queuekit/pkg/logger"
)

// CreateParams selects the queue and policy for Create.
type CreateParams struct {
	Queue string
	Job   JobOptions
}

// Service is the public face of the queue layer: admission, queries and events.
type Service struct {
	registry *Registry
	bus      *EventBus
	paginate Paginate
	logger   *slog.Logger
}

// NewService creates a Service whose queues are backed by factory.
func NewService(factory BackendFactory, opts ...ServiceOption) (*Service, error) {
	if factory == nil {
		return nil, ErrNilBackendFactory
	}

	options := &serviceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	bus := options.bus
	if bus == nil {
		bus = NewEventBus(options.events...)
	}

	registry, err := NewRegistry(factory,
		WithRegistryEventBus(bus),
		WithRegistryLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}
	if options.app != nil {
		registry.setApp(options.app)
	}

	return &Service{
		registry: registry,
		bus:      bus,
		paginate: options.paginate,
		logger:   options.logger,
	}, nil
}

// Setup stores the application value handed to every worker built by a
// queue's WorkerFactory.
func (s *Service) Setup(app any) {
	s.registry.setApp(app)
}

// SetupQueue registers a queue. See Registry.Register.
func (s *Service) SetupQueue(cfg QueueConfig) error {
	return s.registry.Register(cfg)
}

// Events returns the bus carrying queued, completed and failed notifications.
func (s *Service) Events() *EventBus {
	return s.bus
}

// Registry returns the queue registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Health returns the job counts of a queue.
func (s *Service) Health(ctx context.Context, queue string) (HealthCounts, error) {
	backend, err := s.registry.Resolve(queue)
	if err != nil {
		return nil, err
	}
	return backend.CheckHealth(ctx)
}

// Create saves payload as a job on params.Queue. It returns once the backend
// has accepted the job, not when the job runs. Backend errors are returned
// as is and no queued event is published for them.
func (s *Service) Create(ctx context.Context, payload any, params CreateParams) (*Job, error) {
	backend, err := s.registry.Resolve(params.Queue)
	if err != nil {
		return nil, err
	}

	opts := params.Job
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Join(ErrPayloadMarshal, fmt.Errorf("payload of type %T: %w", payload, err))
	}

	b := backend.CreateJob(raw)
	if opts.Retries != nil {
		b = b.Retries(*opts.Retries)
	}
	if opts.Backoff != nil {
		b = b.Backoff(opts.Backoff.Strategy, opts.Backoff.DelayFactor)
	}
	if opts.DelayUntil != nil {
		b = b.DelayUntil(*opts.DelayUntil)
	}
	if opts.Timeout != nil {
		b = b.Timeout(*opts.Timeout)
	}

	job, err := b.Save(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "job queued",
		logger.Queue(params.Queue),
		logger.JobID(job.ID))

	s.bus.Publish(Event{Type: EventQueued, Queue: params.Queue, JobID: job.ID, Job: job})

	return job, nil
}

// Close stops every queue.
func (s *Service) Close() error {
	return s.registry.Close()
}
