// Package redisqueue implements jobqueue.Backend on Redis.
//
// Each queue keeps its jobs under a "{prefix}:{queue}:" namespace:
//
//   - a hash of encoded jobs keyed by id, ids coming from an INCR counter
//   - waiting and active lists; workers move ids between them with BLMOVE
//   - delayed, succeeded and failed sorted sets scored by unix milliseconds
//   - an events pub/sub channel carrying succeeded and failed outcomes
//
// Delayed jobs are promoted to the waiting list by a Lua script, both on a
// timer while the backend is processing and before every health check.
//
// # Usage
//
//	client, err := redisqueue.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	svc, err := jobqueue.NewService(redisqueue.Factory(client, cfg.Options()...))
//
// # Events
//
// With GetEvents enabled (the default) OnSucceeded and OnFailed handlers are
// fed from the events channel once Process has been called, so they observe
// outcomes of every worker attached to the queue, in any process. Failures
// received this way are *JobError values. With GetEvents disabled handlers
// only see jobs processed locally.
//
// # Errors
//
// Connection problems are reported as ErrRedisNotReady or
// ErrFailedToParseRedisConnString joined with the driver error.
package redisqueue
