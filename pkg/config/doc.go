// Package config loads application settings from the environment and queue
// definitions from YAML.
//
// Environment parsing wraps `github.com/joho/godotenv` and
// `github.com/caarlos0/env/v11`. Each configuration type is parsed once and
// cached for the lifetime of the process:
//
//	type ServerConfig struct {
//	    Addr    string `env:"HTTP_ADDR" envDefault:":8080"`
//	    Backend string `env:"QUEUE_BACKEND" envDefault:"memory"`
//	}
//
//	if err := config.LoadEnv("./deploy/.env"); err != nil {
//	    log.Fatalf("loading env: %v", err)
//	}
//	var cfg ServerConfig
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatalf("parsing env: %v", err)
//	}
//
// Queue definitions are read with LoadQueues. Each definition names the
// queue, its concurrency, the handler that processes its jobs, opaque backend
// options and default job options in the same shape jobqueue.ParseJobOptions
// accepts:
//
//	queues:
//	  - name: email
//	    concurrency: 4
//	    handler: email.send
//	    defaults:
//	      retries: 3
//	      backoff: {strategy: fixed, delayFactor: 500}
//
// # Error Handling
//
//   - `ErrParsingConfig`: env vars could not be parsed into the struct.
//   - `ErrNilPointer`: nil pointer passed to `Load`/`MustLoad`.
//   - `ErrLoadingEnvFile`: an explicit .env file is missing or malformed.
//   - `ErrReadingQueuesFile`: the queue definitions file is unreadable.
//   - `ErrInvalidQueueDefinition`: a queue is unnamed, duplicated or has bad defaults.
//
// Use `ResetCache()` between tests that change the environment.
package config
