package queueapi

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

var (
	// ErrInvalidBody is returned when a request body is not a valid job request
	ErrInvalidBody = errors.New("invalid request body")

	// ErrBodyTooLarge is returned when a request body exceeds the configured limit
	ErrBodyTooLarge = errors.New("request body too large")
)

// HTTPError pairs a status code with a stable machine-readable key.
type HTTPError struct {
	Status int
	Key    string
}

func (e HTTPError) Error() string {
	return e.Key
}

var (
	errNotFound = HTTPError{Status: http.StatusNotFound, Key: "not_found"}
	errInternal = HTTPError{Status: http.StatusInternalServerError, Key: "internal_error"}
)

// errorMapping is checked in order, the first sentinel matched by errors.Is wins.
var errorMapping = []struct {
	err    error
	status int
	key    string
}{
	{jobqueue.ErrQueueNotFound, http.StatusNotFound, "queue_not_found"},
	{jobqueue.ErrTypeRequired, http.StatusBadRequest, "type_required"},
	{jobqueue.ErrInvalidType, http.StatusBadRequest, "invalid_type"},
	{jobqueue.ErrInvalidFilter, http.StatusBadRequest, "invalid_filter"},
	{jobqueue.ErrInvalidBackoff, http.StatusBadRequest, "invalid_backoff"},
	{jobqueue.ErrUnknownBackoffStrategy, http.StatusBadRequest, "invalid_backoff"},
	{jobqueue.ErrInvalidJobOptions, http.StatusBadRequest, "invalid_job_options"},
	{jobqueue.ErrPayloadMarshal, http.StatusBadRequest, "invalid_payload"},
	{ErrBodyTooLarge, http.StatusRequestEntityTooLarge, "body_too_large"},
	{ErrInvalidBody, http.StatusBadRequest, "invalid_body"},
}

// classify returns the status, key and whether the error message is safe to
// show the client.
func classify(err error) (int, string, bool) {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status, httpErr.Key, httpErr.Status < http.StatusInternalServerError
	}
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.key, true
		}
	}
	return errInternal.Status, errInternal.Key, false
}
