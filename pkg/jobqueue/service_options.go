package jobqueue

import "log/slog"

// ServiceOption is a functional option for configuring a Service
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	paginate Paginate
	events   []EventType
	bus      *EventBus
	app      any
	logger   *slog.Logger
}

// WithPaginate sets the default pagination for Find
func WithPaginate(p Paginate) ServiceOption {
	return func(o *serviceOptions) {
		o.paginate = p
	}
}

// WithEvents limits which event types the service publishes
func WithEvents(types ...EventType) ServiceOption {
	return func(o *serviceOptions) {
		o.events = append(o.events, types...)
	}
}

// WithEventBus uses a caller-owned bus. It takes precedence over WithEvents.
func WithEventBus(bus *EventBus) ServiceOption {
	return func(o *serviceOptions) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// WithApp sets the application value handed to workers
func WithApp(app any) ServiceOption {
	return func(o *serviceOptions) {
		o.app = app
	}
}

// WithLogger sets the logger for the service and its registry
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
