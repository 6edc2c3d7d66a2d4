// Package logger builds *slog.Logger values for queuekit services.
//
// New creates a JSON or text logger configured by functional options and
// wraps its handler with LogHandlerDecorator, which adds attributes pulled
// from the record's context (request ids, for example) on every call.
//
// The attr helpers keep key names consistent across packages: Queue, JobID,
// JobState, Attempts, Duration and Error are used by the queue backends and
// the HTTP API.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "queued"),
//	    logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	slog.SetDefault(log)
//
//	log.InfoContext(ctx, "job queued", logger.Queue("emails"), logger.JobID(job.ID))
package logger
