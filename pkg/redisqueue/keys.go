package redisqueue

// keys holds the Redis keys of one queue. Every key shares the
// "{prefix}:{queue}:" namespace so queues never collide.
type keys struct {
	id        string // INCR counter for job ids
	jobs      string // hash: job id -> encoded job
	waiting   string // list, oldest first
	active    string // list of jobs held by a worker
	delayed   string // sorted set scored by due time (unix ms)
	succeeded string // sorted set scored by completion time (unix ms)
	failed    string // sorted set scored by failure time (unix ms)
	events    string // pub/sub channel
}

func newKeys(prefix, queue string) keys {
	base := prefix + ":" + queue + ":"
	return keys{
		id:        base + "id",
		jobs:      base + "jobs",
		waiting:   base + "waiting",
		active:    base + "active",
		delayed:   base + "delayed",
		succeeded: base + "succeeded",
		failed:    base + "failed",
		events:    base + "events",
	}
}
