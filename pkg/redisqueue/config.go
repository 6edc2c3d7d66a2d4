package redisqueue

import "time"

type Config struct {
	ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"` // ConnectionURL is the URL of the server, e.g. "redis://:password@localhost:6379/0"
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`                      // RetryAttempts is the number of connection attempts.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`                     // RetryInterval is the pause between connection attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`                   // ConnectTimeout bounds the whole connection procedure.

	Prefix       string        `env:"REDIS_QUEUE_PREFIX" envDefault:"bq"`           // Prefix namespaces every queue key.
	BlockTimeout time.Duration `env:"REDIS_QUEUE_BLOCK_TIMEOUT" envDefault:"1s"`    // BlockTimeout is how long an idle worker blocks waiting for a job.
	PollInterval time.Duration `env:"REDIS_QUEUE_POLL_INTERVAL" envDefault:"500ms"` // PollInterval is how often due delayed jobs are promoted.
	SendEvents   bool          `env:"REDIS_QUEUE_SEND_EVENTS" envDefault:"true"`    // SendEvents publishes job outcomes over pub/sub.
	GetEvents    bool          `env:"REDIS_QUEUE_GET_EVENTS" envDefault:"true"`     // GetEvents delivers outcomes to handlers from pub/sub instead of locally.
}

// Options converts the queue settings of cfg into backend options.
func (c Config) Options() []Option {
	return []Option{
		WithPrefix(c.Prefix),
		WithBlockTimeout(c.BlockTimeout),
		WithPollInterval(c.PollInterval),
		WithSendEvents(c.SendEvents),
		WithGetEvents(c.GetEvents),
	}
}
