// Package httpserver runs the queue API behind an http.Server with
// configurable timeouts and graceful shutdown, and provides liveness and
// readiness handlers.
//
// Run blocks until its context is cancelled, then drains in-flight requests
// within the shutdown timeout. Signal handling belongs to the caller, usually
// through signal.NotifyContext:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	r := chi.NewRouter()
//	r.Get("/livez", httpserver.LivenessHandler())
//	r.Get("/readyz", httpserver.ReadinessHandler(log,
//		httpserver.Check{Name: "redis", Probe: redisqueue.Healthcheck(client)},
//	))
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Listen failures are wrapped with ErrStart and a shutdown that exceeds its
// deadline with ErrShutdown.
package httpserver
