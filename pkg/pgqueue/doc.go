// Package pgqueue implements jobqueue.Backend on PostgreSQL using pgx/v5.
//
// All queues share the queue_jobs table created by Migrate from embedded
// goose migrations. A job row carries its state, its execution policy and a
// run_at column that is the creation time for ready jobs and the due time
// for delayed ones. Workers poll for the oldest ready row and claim it with
// FOR UPDATE SKIP LOCKED, so a job is handed to at most one worker across
// every process attached to the database.
//
// # Usage
//
//	pool, err := pgqueue.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pgqueue.Migrate(ctx, pool, cfg.MigrationsTable, logger); err != nil {
//	    return err
//	}
//
//	svc, err := jobqueue.NewService(pgqueue.Factory(pool,
//	    pgqueue.WithPollInterval(cfg.PollInterval),
//	    pgqueue.WithLogger(logger),
//	))
//
// Succeeded and failed handlers run in the process that executed the job.
package pgqueue
