package main

import (
	"github.com/dmitrymomot/queuekit/pkg/httpserver"
	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

type appConfig struct {
	Env        string            `env:"APP_ENV" envDefault:"development"`
	Name       string            `env:"APP_NAME" envDefault:"queued"`
	LogLevel   string            `env:"LOG_LEVEL"`
	Backend    string            `env:"QUEUE_BACKEND" envDefault:"memory"`
	QueuesFile string            `env:"QUEUES_FILE" envDefault:"queues.yaml"`
	Paginate   jobqueue.Paginate `envPrefix:"PAGINATE_"`
	HTTP       httpserver.Config
}
