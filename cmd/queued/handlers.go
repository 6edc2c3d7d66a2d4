package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
	"github.com/dmitrymomot/queuekit/pkg/logger"
)

var errUnknownHandler = errors.New("unknown handler")

// sleepPayload is the payload of the sleep handler.
type sleepPayload struct {
	Duration string `json:"duration"`
}

// handlers returns the job handlers a queue definition can name.
func handlers(log *slog.Logger) map[string]jobqueue.ProcessFunc {
	return map[string]jobqueue.ProcessFunc{
		// echo completes with the payload as its result.
		"echo": func(_ context.Context, job *jobqueue.Job) (any, error) {
			return job.Payload, nil
		},
		"log": func(ctx context.Context, job *jobqueue.Job) (any, error) {
			log.InfoContext(ctx, "job received",
				logger.Queue(job.Queue),
				logger.JobID(job.ID),
				slog.String("payload", string(job.Payload)),
			)
			return nil, nil
		},
		// sleep waits for payload.duration, honouring the job timeout.
		"sleep": func(ctx context.Context, job *jobqueue.Job) (any, error) {
			var p sleepPayload
			if err := json.Unmarshal(job.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode sleep payload: %w", err)
			}
			d, err := time.ParseDuration(p.Duration)
			if err != nil {
				return nil, fmt.Errorf("decode sleep payload: %w", err)
			}
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return map[string]string{"slept": d.String()}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

func lookupHandler(all map[string]jobqueue.ProcessFunc, name string) (jobqueue.ProcessFunc, error) {
	if fn, ok := all[name]; ok {
		return fn, nil
	}
	known := make([]string, 0, len(all))
	for k := range all {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("%w %q, known handlers: %v", errUnknownHandler, name, known)
}
