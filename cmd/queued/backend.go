package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/queuekit/pkg/config"
	"github.com/dmitrymomot/queuekit/pkg/httpserver"
	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
	"github.com/dmitrymomot/queuekit/pkg/pgqueue"
	"github.com/dmitrymomot/queuekit/pkg/redisqueue"
)

// backend holds the chosen backend factory with its readiness probes and
// the cleanup to run after every queue is closed.
type backend struct {
	factory jobqueue.BackendFactory
	checks  []httpserver.Check
	close   func()
}

func openBackend(ctx context.Context, kind string, log *slog.Logger) (*backend, error) {
	switch kind {
	case "memory":
		return &backend{
			factory: jobqueue.MemoryBackendFactory(jobqueue.WithMemoryLogger(log)),
			close:   func() {},
		}, nil

	case "redis":
		var cfg redisqueue.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redisqueue.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts := append(cfg.Options(), redisqueue.WithLogger(log))
		return &backend{
			factory: redisqueue.Factory(client, opts...),
			checks:  []httpserver.Check{{Name: "redis", Probe: redisqueue.Healthcheck(client)}},
			close:   func() { _ = client.Close() },
		}, nil

	case "postgres":
		var cfg pgqueue.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pgqueue.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pgqueue.Migrate(ctx, pool, cfg.MigrationsTable, log); err != nil {
			pool.Close()
			return nil, err
		}
		return &backend{
			factory: pgqueue.Factory(pool, pgqueue.WithPollInterval(cfg.PollInterval), pgqueue.WithLogger(log)),
			checks:  []httpserver.Check{{Name: "postgres", Probe: pgqueue.Healthcheck(pool)}},
			close:   pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown QUEUE_BACKEND %q: want memory, redis or postgres", kind)
}
