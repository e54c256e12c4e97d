package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/indexnowstudio/jobs/pkg/ratelimiter"
)

// WorkerRepository defines the interface for worker operations
type WorkerRepository interface {
	// ClaimTask atomically claims the next available task and increments its attempt counter
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask marks task as completed and stores its result
	CompleteTask(ctx context.Context, taskID uuid.UUID, result json.RawMessage) error

	// RetryTask records the error and makes the task claimable again at retryAt
	RetryTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error

	// MoveToDLQ marks the task as failed and moves it to the dead letter queue
	MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string, permanent bool) error
}

// Worker processes tasks from the queue
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex // Protects stopping state and WaitGroup operations

	// Configuration
	pullInterval time.Duration
	lockTimeout  time.Duration
	backoff      Backoff
	limiter      ratelimiter.Limiter
	logger       *slog.Logger

	// State management
	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new task worker
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		backoff:            DefaultJobOptions().Backoff,
		logger:             slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		backoff:      options.backoff,
		limiter:      options.limiter,
		logger:       options.logger,
	}, nil
}

// RegisterHandler registers a single task handler
func (w *Worker) RegisterHandler(handler Handler) error {
	if handler == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers[handler.Name()] = handler
	return nil
}

// RegisterHandlers registers multiple task handlers
func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Queues returns the queues this worker pulls from.
func (w *Worker) Queues() []string {
	return append([]string(nil), w.queues...)
}

// Start begins processing tasks in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}

	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)

	go w.run()

	w.logger.Info("worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for active tasks to complete",
		slog.String("worker_id", w.workerID.String()))

	w.wg.Wait()

	w.logger.Info("worker stopped",
		slog.String("worker_id", w.workerID.String()))

	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// run is the main processing loop
func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if !w.fillSlots() {
				return
			}
		}
	}
}

// fillSlots starts one pull per free concurrency slot.
// Returns false once the worker is stopping.
func (w *Worker) fillSlots() bool {
	for {
		select {
		case w.sem <- struct{}{}:
			// Use stopMu to ensure we don't add to WaitGroup after Stop() starts
			w.stopMu.Lock()
			if w.stopping.Load() {
				w.stopMu.Unlock()
				<-w.sem
				return false
			}
			w.wg.Add(1)
			w.stopMu.Unlock()

			go func() {
				defer w.wg.Done()
				defer func() { <-w.sem }()

				if err := w.pullAndProcess(); err != nil {
					if !errors.Is(err, ErrHandlerNotFound) {
						w.logger.Error("failed to process task",
							slog.String("worker_id", w.workerID.String()),
							slog.String("error", err.Error()))
					}
				}
			}()
		default:
			return true
		}
	}
}

// pullAndProcess pulls a task and processes it
func (w *Worker) pullAndProcess() error {
	task, err := w.repo.ClaimTask(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return nil
	}

	w.logger.Debug("claimed task",
		slog.String("worker_id", w.workerID.String()),
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue),
		slog.Int("attempt", task.Attempts))

	if w.limiter != nil {
		if err := w.limiter.Wait(w.ctx); err != nil {
			// Shutdown while throttled: hand the task back untouched by the handler.
			bookkeeping := context.WithoutCancel(w.ctx)
			if rerr := w.repo.RetryTask(bookkeeping, task.ID, "released while waiting for rate limit", time.Now()); rerr != nil {
				return errors.Join(err, rerr)
			}
			return nil
		}
	}

	return w.processTask(task)
}

// processTask executes a task with its handler
func (w *Worker) processTask(task *Task) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in handler: %v", r)
			w.logger.Error("handler panicked",
				slog.String("worker_id", w.workerID.String()),
				slog.String("task_id", task.ID.String()),
				slog.String("task_name", task.TaskName),
				slog.Any("panic", r))
			_ = w.handleTaskFailure(task, retErr, time.Since(start))
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()

	if !ok {
		return w.handleMissingHandler(task)
	}

	// Not tied to the worker lifecycle so that graceful shutdown lets tasks finish.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), w.lockTimeout)
	defer cancel()
	ctx = withTaskInfo(ctx, task)

	result, err := handler.Handle(ctx, task.Payload)
	duration := time.Since(start)

	if err != nil {
		return w.handleTaskFailure(task, err, duration)
	}

	return w.handleTaskSuccess(task, result, duration)
}

// handleMissingHandler moves tasks without a registered handler straight to
// the DLQ; retrying cannot help until the handler is deployed.
func (w *Worker) handleMissingHandler(task *Task) error {
	w.logger.Error("no handler registered for task type",
		slog.String("worker_id", w.workerID.String()),
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName))

	errorMsg := "no handler registered for task type: " + task.TaskName
	if err := w.repo.MoveToDLQ(context.WithoutCancel(w.ctx), task.ID, errorMsg, true); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
	}

	return ErrHandlerNotFound
}

// handleTaskFailure retries transient failures with backoff and dead-letters
// permanent failures and tasks that used up their attempts.
func (w *Worker) handleTaskFailure(task *Task, execErr error, duration time.Duration) error {
	permanent := IsPermanent(execErr)

	w.logger.Error("task failed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.Int("attempt", task.Attempts),
		slog.Int("max_attempts", task.MaxAttempts),
		slog.Bool("permanent", permanent),
		slog.Duration("duration", duration),
		slog.String("error", execErr.Error()))

	ctx := context.WithoutCancel(w.ctx)

	if permanent || task.Attempts >= task.MaxAttempts {
		if err := w.repo.MoveToDLQ(ctx, task.ID, execErr.Error(), permanent); err != nil {
			return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
		}

		w.logger.Warn("task moved to dead letter queue",
			slog.String("worker_id", w.workerID.String()),
			slog.String("task_id", task.ID.String()),
			slog.String("task_name", task.TaskName))

		return nil
	}

	retryAt := time.Now().Add(w.backoff(task.Attempts))
	if err := w.repo.RetryTask(ctx, task.ID, execErr.Error(), retryAt); err != nil {
		return fmt.Errorf("failed to schedule retry for task %s: %w", task.ID, err)
	}

	w.logger.Info("task scheduled for retry",
		slog.String("worker_id", w.workerID.String()),
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.Time("retry_at", retryAt))

	return nil
}

// handleTaskSuccess processes successful task completion
func (w *Worker) handleTaskSuccess(task *Task, result json.RawMessage, duration time.Duration) error {
	if err := w.repo.CompleteTask(context.WithoutCancel(w.ctx), task.ID, result); err != nil {
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, err)
	}

	w.logger.Info("task completed successfully",
		slog.String("worker_id", w.workerID.String()),
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue),
		slog.Duration("duration", duration))

	return nil
}
