package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Registry owns the named queues of a process, at most one worker per queue
// and optionally the repeatable-job scheduler.
type Registry struct {
	storage Storage
	jobOpts JobOptions
	logger  *slog.Logger

	workerDefaults []WorkerOption

	mu               sync.Mutex
	queues           map[string]*Queue
	workers          map[string]*Worker
	schedulerEnabled bool
	schedulerOpts    []SchedulerOption
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithJobOptions sets the default attempts and backoff of every queue.
func WithJobOptions(opts JobOptions) RegistryOption {
	return func(r *Registry) {
		if opts.Attempts > 0 {
			r.jobOpts.Attempts = opts.Attempts
		}
		if opts.Backoff != nil {
			r.jobOpts.Backoff = opts.Backoff
		}
		r.jobOpts.Retention = opts.Retention
	}
}

// WithWorkerDefaults sets options applied to every worker before its own.
func WithWorkerDefaults(opts ...WorkerOption) RegistryOption {
	return func(r *Registry) {
		r.workerDefaults = append(r.workerDefaults, opts...)
	}
}

// WithRegistryLogger sets the logger passed down to workers and the scheduler.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry on top of storage.
func NewRegistry(storage Storage, opts ...RegistryOption) (*Registry, error) {
	if storage == nil {
		return nil, ErrRepositoryNil
	}

	r := &Registry{
		storage: storage,
		jobOpts: DefaultJobOptions(),
		logger:  slog.Default(),
		queues:  make(map[string]*Queue),
		workers: make(map[string]*Worker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// GetQueue returns the handle of a named queue, creating it on first use.
func (r *Registry) GetQueue(name string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queueLocked(name)
}

func (r *Registry) queueLocked(name string) *Queue {
	if q, ok := r.queues[name]; ok {
		return q
	}

	// NewEnqueuer only fails on a nil repository, which NewRegistry rules out.
	enq, _ := NewEnqueuer(r.storage,
		WithDefaultQueue(name),
		WithDefaultMaxAttempts(r.jobOpts.Attempts))

	q := &Queue{name: name, enqueuer: enq, storage: r.storage, attempts: r.jobOpts.Attempts}
	r.queues[name] = q
	return q
}

// QueueNames returns the names of all queues known to the registry, sorted.
func (r *Registry) QueueNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RegisterWorker attaches handler to the worker of queueName. The first call
// for a queue creates the worker with opts; later calls only add handlers.
func (r *Registry) RegisterWorker(queueName string, handler Handler, opts ...WorkerOption) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.queueLocked(queueName)

	if w, ok := r.workers[queueName]; ok {
		if err := w.RegisterHandler(handler); err != nil {
			return nil, err
		}
		return w, nil
	}

	all := []WorkerOption{
		WithBackoff(r.jobOpts.Backoff),
		WithWorkerLogger(r.logger.With(slog.String("queue", queueName))),
	}
	all = append(all, r.workerDefaults...)
	all = append(all, opts...)
	all = append(all, WithQueues(queueName))

	w, err := NewWorker(r.storage, all...)
	if err != nil {
		return nil, fmt.Errorf("create worker for queue %q: %w", queueName, err)
	}
	if err := w.RegisterHandler(handler); err != nil {
		return nil, err
	}

	r.workers[queueName] = w
	return w, nil
}

// Worker returns the worker of a queue, if one was registered.
func (r *Registry) Worker(queueName string) (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[queueName]
	return w, ok
}

// EnableScheduler makes Run also start the repeatable-job scheduler over
// every queue of the registry.
func (r *Registry) EnableScheduler(opts ...SchedulerOption) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedulerEnabled = true
	r.schedulerOpts = append(r.schedulerOpts, opts...)
}

// Run starts every worker, and the scheduler when enabled, and blocks until
// ctx is done. Workers finish their in-flight tasks before Run returns.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	var scheduler *Scheduler
	if r.schedulerEnabled {
		names := make([]string, 0, len(r.queues))
		for name := range r.queues {
			names = append(names, name)
		}
		opts := append([]SchedulerOption{
			WithSchedulerQueues(names...),
			WithSchedulerLogger(r.logger),
		}, r.schedulerOpts...)

		var err error
		scheduler, err = NewScheduler(r.storage, opts...)
		if err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(w.Run(gctx))
	}
	if scheduler != nil {
		g.Go(scheduler.Run(gctx))
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	r.logger.Info("queue registry running",
		slog.Int("workers", len(workers)),
		slog.Bool("scheduler", scheduler != nil))

	return g.Wait()
}

// Queue is the enqueue and inspection handle of one named queue.
type Queue struct {
	name     string
	enqueuer *Enqueuer
	storage  Storage
	attempts int
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Add enqueues payload on this queue. When the job ID is already taken the
// existing task is returned instead of an error.
func (q *Queue) Add(ctx context.Context, payload any, opts ...EnqueueOption) (*Task, error) {
	opts = append(opts, WithQueue(q.name))
	task, err := q.enqueuer.Enqueue(ctx, payload, opts...)
	if errors.Is(err, ErrDuplicateJob) {
		o := &enqueueOptions{}
		for _, opt := range opts {
			opt(o)
		}
		existing, lookupErr := q.storage.GetTaskByJobID(ctx, q.name, o.jobID)
		if lookupErr != nil {
			return nil, err
		}
		return existing, nil
	}
	return task, err
}

// AddRepeatable creates or replaces a repeatable registration on this queue.
func (q *Queue) AddRepeatable(ctx context.Context, job RepeatableJob) error {
	job, err := q.prepareRepeatable(job)
	if err != nil {
		return err
	}
	return q.storage.SaveRepeatable(ctx, job)
}

// EnsureRepeatable registers job unless a registration with the same key
// already exists. It reports whether a new registration was made.
func (q *Queue) EnsureRepeatable(ctx context.Context, job RepeatableJob) (bool, error) {
	job, err := q.prepareRepeatable(job)
	if err != nil {
		return false, err
	}

	_, err = q.storage.GetRepeatable(ctx, q.name, job.Key)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrRepeatableNotFound):
		return false, err
	}

	return q.storage.AddRepeatable(ctx, job)
}

func (q *Queue) prepareRepeatable(job RepeatableJob) (RepeatableJob, error) {
	if job.Key == "" || job.TaskName == "" {
		return job, fmt.Errorf("%w: key and task name are required", ErrInvalidRepeatable)
	}
	if _, err := ParseCron(job.Pattern); err != nil {
		return job, fmt.Errorf("%w: %w", ErrInvalidRepeatable, err)
	}
	if !job.Priority.Valid() {
		return job, ErrInvalidPriority
	}
	if job.Priority == 0 {
		job.Priority = PriorityDefault
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.attempts
	}
	if job.RegisteredAt.IsZero() {
		job.RegisteredAt = time.Now()
	}
	job.Queue = q.name
	return job, nil
}

// RepeatableJobs lists the repeatable registrations of this queue.
func (q *Queue) RepeatableJobs(ctx context.Context) ([]RepeatableJob, error) {
	return q.storage.ListRepeatables(ctx, q.name)
}

// RemoveRepeatable deletes a repeatable registration by key.
func (q *Queue) RemoveRepeatable(ctx context.Context, key string) error {
	return q.storage.RemoveRepeatable(ctx, q.name, key)
}

// Stats returns task counts of this queue.
func (q *Queue) Stats(ctx context.Context) (QueueStats, error) {
	return q.storage.Stats(ctx, q.name)
}

// ListFailed returns dead-letter entries of this queue, newest first.
func (q *Queue) ListFailed(ctx context.Context, limit int) ([]TasksDlq, error) {
	return q.storage.ListFailed(ctx, q.name, limit)
}

// RequeueFailed moves a dead-letter entry back to pending.
func (q *Queue) RequeueFailed(ctx context.Context, dlqID uuid.UUID) (*Task, error) {
	return q.storage.RequeueFailed(ctx, q.name, dlqID)
}
