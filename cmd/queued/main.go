// Command queued serves job queues over HTTP.
//
// Queues are read from QUEUES_FILE and stored in the backend chosen by
// QUEUE_BACKEND (memory, redis or postgres).
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/queuekit/pkg/config"
	"github.com/dmitrymomot/queuekit/pkg/httpserver"
	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
	"github.com/dmitrymomot/queuekit/pkg/logger"
	"github.com/dmitrymomot/queuekit/pkg/queueapi"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("queued stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if files := os.Getenv("ENV_FILES"); files != "" {
		if err := config.LoadEnv(strings.Split(files, ",")...); err != nil {
			return err
		}
	}

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	queues, err := config.LoadQueues(cfg.QueuesFile)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg.Backend, log)
	if err != nil {
		return err
	}
	defer be.close()

	svc, err := jobqueue.NewService(be.factory,
		jobqueue.WithPaginate(cfg.Paginate),
		jobqueue.WithLogger(log),
	)
	if err != nil {
		return err
	}

	svc.Events().Subscribe(func(e jobqueue.Event) {
		switch e.Type {
		case jobqueue.EventFailed:
			log.Warn("job failed", logger.Queue(e.Queue), logger.JobID(e.JobID), logger.Error(e.Err))
		default:
			log.Debug("job event", logger.Queue(e.Queue), logger.JobID(e.JobID), slog.String("event", string(e.Type)))
		}
	})

	known := handlers(log)
	apiOpts := []queueapi.Option{queueapi.WithLogger(log)}
	for _, q := range queues {
		fn, err := lookupHandler(known, q.Handler)
		if err != nil {
			return errors.Join(err, svc.Close())
		}
		defaults, err := q.JobDefaults()
		if err != nil {
			return errors.Join(err, svc.Close())
		}
		err = svc.SetupQueue(jobqueue.QueueConfig{
			Name:        q.Name,
			Concurrency: q.Concurrency,
			Process:     fn,
			Options:     q.BackendOptions(),
		})
		if err != nil {
			return errors.Join(err, svc.Close())
		}
		apiOpts = append(apiOpts, queueapi.WithJobDefaults(q.Name, defaults))
		log.Info("queue ready", logger.Queue(q.Name), logger.Concurrency(q.Concurrency), slog.String("handler", q.Handler))
	}

	r := chi.NewRouter()
	r.Get("/livez", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, be.checks...))
	r.Mount("/", queueapi.New(svc, apiOpts...).Router())

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, r)
	})
	g.Go(func() error {
		<-ctx.Done()
		return svc.Close()
	})
	return g.Wait()
}

// newLogger derives format and level from the environment. LOG_LEVEL
// overrides the environment level when set.
func newLogger(cfg appConfig) (*slog.Logger, error) {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(queueapi.RequestIDExtractor()),
	}
	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, logger.WithLevel(level))
	}
	return logger.New(opts...), nil
}
