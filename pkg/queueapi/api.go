package queueapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
	"github.com/dmitrymomot/queuekit/pkg/logger"
)

const defaultMaxBodySize = 1 << 20

// CreateJobRequest is the body of POST /queues/{queue}/jobs. Options uses the
// keys accepted by jobqueue.ParseJobOptions.
type CreateJobRequest struct {
	Payload json.RawMessage `json:"payload"`
	Options map[string]any  `json:"options,omitempty"`
}

// API exposes job admission and listing over HTTP.
type API struct {
	svc      *jobqueue.Service
	logger   *slog.Logger
	defaults map[string]jobqueue.JobOptions
	maxBody  int64
}

// New returns an API serving svc.
func New(svc *jobqueue.Service, opts ...Option) *API {
	a := &API{
		svc:      svc,
		logger:   slog.Default(),
		defaults: make(map[string]jobqueue.JobOptions),
		maxBody:  defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("queueapi"))
	return a
}

// Router returns the routes:
//
//	GET  /queues                 list queue names
//	POST /queues/{queue}/jobs    create a job
//	GET  /queues/{queue}/jobs    list jobs, ?type=<state>&$limit=&$skip=
//	GET  /queues/{queue}/health  job counts per state
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.fail(w, r, errNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.fail(w, r, HTTPError{Status: http.StatusMethodNotAllowed, Key: "method_not_allowed"})
	})

	r.Get("/queues", a.listQueues)
	r.Route("/queues/{queue}", func(r chi.Router) {
		r.Post("/jobs", a.createJob)
		r.Get("/jobs", a.findJobs)
		r.Get("/health", a.health)
	})
	return r
}

func (a *API) listQueues(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK, map[string][]string{"queues": a.svc.Registry().Names()})
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")

	req, err := a.decodeCreate(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	opts, err := jobqueue.ParseJobOptions(req.Options)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if defaults, ok := a.defaults[queue]; ok {
		opts = opts.WithDefaults(defaults)
	}

	job, err := a.svc.Create(r.Context(), req.Payload, jobqueue.CreateParams{Queue: queue, Job: opts})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated, job)
}

func (a *API) decodeCreate(w http.ResponseWriter, r *http.Request) (CreateJobRequest, error) {
	var req CreateJobRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.maxBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return req, ErrBodyTooLarge
		case errors.Is(err, io.EOF):
			return req, errors.Join(ErrInvalidBody, errors.New("body is empty"))
		}
		return req, errors.Join(ErrInvalidBody, err)
	}
	if dec.More() {
		return req, errors.Join(ErrInvalidBody, errors.New("body must hold a single JSON object"))
	}
	return req, nil
}

func (a *API) findJobs(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	query := make(map[string]string, len(values))
	for k := range values {
		if k != "type" {
			query[k] = values.Get(k)
		}
	}

	page, err := a.svc.Find(r.Context(), jobqueue.FindParams{
		Queue: chi.URLParam(r, "queue"),
		Type:  jobqueue.JobState(values.Get("type")),
		Query: query,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, page)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	counts, err := a.svc.Health(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, counts)
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	if err := writeJSON(w, status, body); err != nil {
		a.logger.WarnContext(r.Context(), "failed to write response", logger.Error(err))
	}
}

// fail writes the error envelope. Server errors are logged and their message
// is replaced with the status text.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, key, public := classify(err)

	message := err.Error()
	if !public {
		message = http.StatusText(status)
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
	}

	a.respond(w, r, status, ErrorResponse{Error: ErrorDetail{
		Code:      key,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	}})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		a.logger.DebugContext(r.Context(), "request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			logger.Duration(time.Since(start)),
		)
	})
}
