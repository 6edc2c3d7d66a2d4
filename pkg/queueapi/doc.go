// Package queueapi serves a jobqueue.Service over HTTP with chi.
//
//	api := queueapi.New(svc, queueapi.WithLogger(log))
//	r := chi.NewRouter()
//	r.Mount("/", api.Router())
//
// POST /queues/{queue}/jobs takes {"payload": ..., "options": {...}} where
// options use the jobqueue.ParseJobOptions keys (retries, backoff, delayUntil,
// timeout). GET /queues/{queue}/jobs?type=waiting&$limit=10&$skip=20 returns
// a page envelope when pagination is enabled and a bare job array otherwise.
// GET /queues/{queue}/health returns the job count per state.
//
// Failures use one envelope:
//
//	{"error": {"code": "queue_not_found", "message": "queue does not exist", "request_id": "..."}}
//
// Unknown queues map to 404, validation failures to 400 and everything else
// to 500 with the message withheld.
package queueapi
