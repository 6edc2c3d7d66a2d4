package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

// QueueDefinition describes one queue in the queue definitions file.
//
//	queues:
//	  - name: email
//	    concurrency: 4
//	    handler: email.send
//	    options:
//	      poll_interval: 250ms
//	    defaults:
//	      retries: 3
//	      timeout: 5000
//	      backoff: {strategy: exponential, delayFactor: 1000}
type QueueDefinition struct {
	Name        string         `yaml:"name"`
	Concurrency int            `yaml:"concurrency"`
	Handler     string         `yaml:"handler"`
	Options     map[string]any `yaml:"options"`
	Defaults    map[string]any `yaml:"defaults"`
}

// BackendOptions returns the options handed to the queue's backend factory.
func (d QueueDefinition) BackendOptions() jobqueue.BackendOptions {
	return jobqueue.BackendOptions(d.Options)
}

// JobDefaults parses the default job options applied to jobs created on the
// queue when the caller leaves an option unset.
func (d QueueDefinition) JobDefaults() (jobqueue.JobOptions, error) {
	if len(d.Defaults) == 0 {
		return jobqueue.JobOptions{}, nil
	}
	opts, err := jobqueue.ParseJobOptions(d.Defaults)
	if err != nil {
		return jobqueue.JobOptions{}, fmt.Errorf("queue %q defaults: %w", d.Name, err)
	}
	return opts, nil
}

type queuesFile struct {
	Queues []QueueDefinition `yaml:"queues"`
}

// LoadQueues reads queue definitions from a YAML file.
func LoadQueues(path string) ([]QueueDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrReadingQueuesFile, err)
	}
	return ParseQueues(bytes.NewReader(data))
}

// ParseQueues decodes queue definitions and checks that every queue has a
// unique name, a handler and a non-negative concurrency. Unknown fields are
// rejected.
func ParseQueues(r io.Reader) ([]QueueDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file queuesFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrReadingQueuesFile, err)
	}

	seen := make(map[string]struct{}, len(file.Queues))
	for i, q := range file.Queues {
		switch {
		case q.Name == "":
			return nil, fmt.Errorf("%w: queue #%d has no name", ErrInvalidQueueDefinition, i+1)
		case q.Handler == "":
			return nil, fmt.Errorf("%w: queue %q has no handler", ErrInvalidQueueDefinition, q.Name)
		case q.Concurrency < 0:
			return nil, fmt.Errorf("%w: queue %q has negative concurrency", ErrInvalidQueueDefinition, q.Name)
		}
		if _, dup := seen[q.Name]; dup {
			return nil, fmt.Errorf("%w: queue %q is defined twice", ErrInvalidQueueDefinition, q.Name)
		}
		seen[q.Name] = struct{}{}

		if _, err := q.JobDefaults(); err != nil {
			return nil, errors.Join(ErrInvalidQueueDefinition, err)
		}
	}
	return file.Queues, nil
}
