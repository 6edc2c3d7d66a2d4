package pgqueue

const jobColumns = `id::text, queue, payload, state, retries, attempts, backoff_strategy,
	backoff_delay_ms, delay_until, timeout_ms, result, error, created_at`

const insertJobQuery = `
INSERT INTO queue_jobs (id, queue, payload, state, retries, backoff_strategy,
	backoff_delay_ms, delay_until, run_at, timeout_ms, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

// claimJobQuery takes the next ready job, including delayed jobs that are due.
// SKIP LOCKED lets concurrent workers claim different rows.
const claimJobQuery = `
UPDATE queue_jobs SET state = 'active', updated_at = now()
WHERE id = (
	SELECT id FROM queue_jobs
	WHERE queue = $1 AND state IN ('waiting', 'delayed') AND run_at <= now()
	ORDER BY run_at, id
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

const succeedJobQuery = `
UPDATE queue_jobs SET state = 'completed', result = $2, updated_at = now(), finished_at = now()
WHERE id = $1`

const retryJobQuery = `
UPDATE queue_jobs SET state = $2, attempts = $3, error = $4, delay_until = $5, run_at = $6, updated_at = now()
WHERE id = $1`

const failJobQuery = `
UPDATE queue_jobs SET state = 'failed', attempts = $2, error = $3, updated_at = now(), finished_at = now()
WHERE id = $1`

const promoteDelayedQuery = `
UPDATE queue_jobs SET state = 'waiting', updated_at = now()
WHERE queue = $1 AND state = 'delayed' AND run_at <= now()`

const countJobsQuery = `
SELECT state, count(*) FROM queue_jobs WHERE queue = $1 GROUP BY state`

// listJobsQueries order each state the way it is consumed or finished.
var listJobsQueries = map[string]string{
	"waiting":   `SELECT ` + jobColumns + ` FROM queue_jobs WHERE queue = $1 AND state = 'waiting' ORDER BY run_at, id OFFSET $2 LIMIT $3`,
	"active":    `SELECT ` + jobColumns + ` FROM queue_jobs WHERE queue = $1 AND state = 'active' ORDER BY updated_at, id OFFSET $2 LIMIT $3`,
	"delayed":   `SELECT ` + jobColumns + ` FROM queue_jobs WHERE queue = $1 AND state = 'delayed' ORDER BY run_at, id OFFSET $2 LIMIT $3`,
	"completed": `SELECT ` + jobColumns + ` FROM queue_jobs WHERE queue = $1 AND state = 'completed' ORDER BY finished_at, id OFFSET $2 LIMIT $3`,
	"failed":    `SELECT ` + jobColumns + ` FROM queue_jobs WHERE queue = $1 AND state = 'failed' ORDER BY finished_at, id OFFSET $2 LIMIT $3`,
}
