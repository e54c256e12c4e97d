package opsapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/indexnowstudio/jobs/pkg/binder"
	"github.com/indexnowstudio/jobs/pkg/environment"
	"github.com/indexnowstudio/jobs/pkg/handler"
	"github.com/indexnowstudio/jobs/pkg/httpserver"
	"github.com/indexnowstudio/jobs/pkg/logger"
	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/pkg/requestid"
	"github.com/indexnowstudio/jobs/pkg/validator"
)

const (
	defaultFailedLimit = 50
	maxFailedLimit     = 500
)

// Registry exposes the queues of the process. *queue.Registry implements it.
type Registry interface {
	QueueNames() []string
	GetQueue(name string) *queue.Queue
}

type Options struct {
	Registry    Registry
	Environment environment.Environment
	Logger      *slog.Logger
	// ReadinessChecks back /readyz, typically the Postgres and Redis pings.
	ReadinessChecks []func(context.Context) error
}

// NewRouter builds the ops API:
//
//	GET  /healthz
//	GET  /readyz
//	GET  /queues
//	GET  /queues/{queue}
//	GET  /queues/{queue}/failed?limit=50
//	POST /queues/{queue}/failed/{id}/retry
func NewRouter(opts Options) chi.Router {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("opsapi"))
	a := &api{reg: opts.Registry, log: log}
	onError := handler.NewErrorHandler(log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, requestid.Middleware, environment.Middleware(opts.Environment))

	r.Get("/healthz", httpserver.HealthCheckHandler(log))
	r.Get("/readyz", httpserver.HealthCheckHandler(log, opts.ReadinessChecks...))

	path := binder.Path(chi.URLParam)
	r.Route("/queues", func(r chi.Router) {
		r.Get("/", handler.Wrap(a.listQueues, handler.WithErrorHandler[struct{}](onError)))
		r.Get("/{queue}", handler.Wrap(a.queueStats,
			handler.WithBinders[queueRequest](path),
			handler.WithErrorHandler[queueRequest](onError)))
		r.Get("/{queue}/failed", handler.Wrap(a.listFailed,
			handler.WithBinders[failedRequest](path, binder.Query()),
			handler.WithErrorHandler[failedRequest](onError)))
		r.Post("/{queue}/failed/{id}/retry", handler.Wrap(a.retryFailed,
			handler.WithBinders[retryRequest](path),
			handler.WithErrorHandler[retryRequest](onError)))
	})
	return r
}

type api struct {
	reg Registry
	log *slog.Logger
}

type queueRequest struct {
	Queue string `path:"queue"`
}

type failedRequest struct {
	Queue string `path:"queue"`
	Limit int    `query:"limit"`
}

func (r failedRequest) Validate() error {
	return validator.Apply(validator.Rule{
		Check: func() bool { return r.Limit >= 0 && r.Limit <= maxFailedLimit },
		Error: validator.ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("must be between 0 and %d; 0 or omitted uses %d", maxFailedLimit, defaultFailedLimit),
		},
	})
}

type retryRequest struct {
	Queue string    `path:"queue"`
	ID    uuid.UUID `path:"id"`
}

// queue resolves a queue the process knows about. GetQueue alone would
// create any name it is given.
func (a *api) queue(name string) (*queue.Queue, bool) {
	if !slices.Contains(a.reg.QueueNames(), name) {
		return nil, false
	}
	return a.reg.GetQueue(name), true
}

func (a *api) fail(ctx handler.Context, err error) handler.Response {
	a.log.ErrorContext(ctx, "ops request failed", logger.Error(err))
	return handler.JSONError(err)
}

func (a *api) listQueues(ctx handler.Context, _ struct{}) handler.Response {
	names := a.reg.QueueNames()
	stats := make([]queue.QueueStats, 0, len(names))
	for _, name := range names {
		s, err := a.reg.GetQueue(name).Stats(ctx)
		if err != nil {
			return a.fail(ctx, err)
		}
		stats = append(stats, s)
	}
	return handler.JSON(stats)
}

func (a *api) queueStats(ctx handler.Context, req queueRequest) handler.Response {
	q, ok := a.queue(req.Queue)
	if !ok {
		return handler.JSONError(handler.ErrNotFound)
	}
	s, err := q.Stats(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(s)
}

func (a *api) listFailed(ctx handler.Context, req failedRequest) handler.Response {
	if err := req.Validate(); err != nil {
		return handler.JSONError(err)
	}
	q, ok := a.queue(req.Queue)
	if !ok {
		return handler.JSONError(handler.ErrNotFound)
	}
	if req.Limit == 0 {
		req.Limit = defaultFailedLimit
	}

	entries, err := q.ListFailed(ctx, req.Limit)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(entries, handler.WithJSONMeta(map[string]any{"limit": req.Limit, "count": len(entries)}))
}

func (a *api) retryFailed(ctx handler.Context, req retryRequest) handler.Response {
	q, ok := a.queue(req.Queue)
	if !ok || req.ID == uuid.Nil {
		return handler.JSONError(handler.ErrNotFound)
	}

	task, err := q.RequeueFailed(ctx, req.ID)
	switch {
	case errors.Is(err, queue.ErrDLQEntryNotFound):
		return handler.JSONError(handler.ErrNotFound)
	case err != nil:
		return a.fail(ctx, err)
	}

	a.log.InfoContext(ctx, "dead letter entry requeued",
		logger.Queue(req.Queue), logger.TaskID(task.ID), slog.String("dlq_id", req.ID.String()))
	return handler.JSON(task, handler.WithJSONStatus(http.StatusAccepted))
}
