// Package jobqueue provides job admission, paginated queue inspection and
// outcome notifications on top of a pluggable queue backend.
//
// The package is organised around four components:
//
//   - Registry: owns the named queues and their Backend handles
//   - Service: admits jobs (Create) and lists them by state (Find)
//   - EventBus: delivers queued, completed and failed notifications
//   - Backend: the storage and execution engine for a single queue
//
// Backends are created by a BackendFactory when a queue is registered. This
// package ships MemoryBackend; Redis and PostgreSQL implementations live in
// the redisqueue and pgqueue packages.
//
// # Usage
//
//	svc, err := jobqueue.NewService(jobqueue.MemoryBackendFactory(),
//	    jobqueue.WithPaginate(jobqueue.Paginate{Default: 20, Max: 100}),
//	)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	err = svc.SetupQueue(jobqueue.QueueConfig{
//	    Name:        "emails",
//	    Concurrency: 4,
//	    Process: func(ctx context.Context, job *jobqueue.Job) (any, error) {
//	        return nil, send(ctx, job.Payload)
//	    },
//	})
//
//	opts, err := jobqueue.NewJobOptions(
//	    jobqueue.WithRetries(3),
//	    jobqueue.WithBackoff(jobqueue.BackoffExponential, time.Second),
//	    jobqueue.WithTimeout(30*time.Second),
//	)
//	job, err := svc.Create(ctx, EmailPayload{To: "a@b.c"}, jobqueue.CreateParams{
//	    Queue: "emails",
//	    Job:   opts,
//	})
//
//	page, err := svc.Find(ctx, jobqueue.FindParams{
//	    Queue: "emails",
//	    Type:  jobqueue.StateFailed,
//	    Query: map[string]string{"$limit": "10", "$skip": "20"},
//	})
//
// # Events
//
// Create publishes EventQueued after the backend saves a job. For every
// registered queue the registry bridges the backend's succeeded and failed
// hooks to EventCompleted and EventFailed. Delivery is synchronous and in
// emission order; subscribe with Service.Events().Subscribe.
//
// # Error Handling
//
// Configuration and validation problems are reported with package-level
// sentinel errors (ErrQueueNotFound, ErrInvalidBackoff, ErrInvalidType, ...)
// that can be checked with errors.Is. Backend errors are returned unchanged.
package jobqueue
