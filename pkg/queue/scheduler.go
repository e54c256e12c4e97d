package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SchedulerRepository defines the interface for scheduler operations
type SchedulerRepository interface {
	// CreateTask creates a new task in the storage
	CreateTask(ctx context.Context, task *Task) error

	// ListRepeatables returns every repeatable registration of a queue
	ListRepeatables(ctx context.Context, queue string) ([]RepeatableJob, error)

	// MarkRepeatableFired records the tick a registration last fired for
	MarkRepeatableFired(ctx context.Context, queue, key string, firedAt time.Time) error
}

// maxCatchUpSteps bounds the walk to the latest missed tick after a long outage.
const maxCatchUpSteps = 100_000

// Scheduler turns repeatable registrations into periodic tasks.
// Registrations live in storage, so any number of scheduler processes may run
// against the same queues: ticks are deduplicated through the task job ID.
type Scheduler struct {
	repo     SchedulerRepository
	queues   []string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler creates a new task scheduler
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &schedulerOptions{
		checkInterval: 30 * time.Second,
		logger:        slog.Default(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		repo:     repo,
		queues:   options.queues,
		interval: options.checkInterval,
		logger:   options.logger,
		now:      options.now,
	}, nil
}

// Start checks registrations immediately and then on every interval until
// ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.queues) == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		slog.Any("queues", s.queues),
		slog.Duration("check_interval", s.interval))

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Run returns a function suitable for errgroup
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		return s.Start(ctx)
	}
}

// Tick performs a single scheduling pass over every watched queue.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	for _, q := range s.queues {
		jobs, err := s.repo.ListRepeatables(ctx, q)
		if err != nil {
			s.logger.Error("failed to list repeatable jobs",
				slog.String("queue", q),
				slog.String("error", err.Error()))
			continue
		}

		for _, job := range jobs {
			if err := s.fireIfDue(ctx, job, now); err != nil {
				s.logger.Error("failed to schedule repeatable job",
					slog.String("queue", q),
					slog.String("repeat_key", job.Key),
					slog.String("error", err.Error()))
			}
		}
	}
}

// fireIfDue enqueues the latest due tick of a registration, if any.
// Missed ticks before it are skipped.
func (s *Scheduler) fireIfDue(ctx context.Context, job RepeatableJob, now time.Time) error {
	sched, err := ParseCron(job.Pattern)
	if err != nil {
		return err
	}

	from := job.RegisteredAt
	if job.LastFiredAt != nil {
		from = *job.LastFiredAt
	}

	due := sched.Next(from)
	if due.After(now) {
		return nil
	}
	for i := 0; i < maxCatchUpSteps; i++ {
		next := sched.Next(due)
		if next.After(now) {
			break
		}
		due = next
	}

	payload := job.Payload
	if len(payload) == 0 {
		payload, err = json.Marshal(RepeatPayload{RepeatKey: job.Key, ScheduledFor: due})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPayloadMarshal, err)
		}
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultJobOptions().Attempts
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       job.Queue,
		TaskType:    TaskTypePeriodic,
		TaskName:    job.TaskName,
		JobID:       RepeatJobID(job.Key, due),
		Payload:     payload,
		Status:      TaskStatusPending,
		Priority:    job.Priority,
		MaxAttempts: maxAttempts,
		ScheduledAt: due,
		CreatedAt:   now,
	}

	switch err := s.repo.CreateTask(ctx, task); {
	case errors.Is(err, ErrDuplicateJob):
		s.logger.Debug("repeatable tick already enqueued",
			slog.String("repeat_key", job.Key),
			slog.Time("scheduled_for", due))
	case err != nil:
		return fmt.Errorf("create periodic task: %w", err)
	default:
		s.logger.Info("created periodic task",
			slog.String("queue", job.Queue),
			slog.String("task_name", job.TaskName),
			slog.String("repeat_key", job.Key),
			slog.Time("scheduled_for", due))
	}

	return s.repo.MarkRepeatableFired(ctx, job.Queue, job.Key, due)
}

// RepeatJobID is the job ID of the periodic task created for one tick of a
// repeatable registration.
func RepeatJobID(key string, tick time.Time) string {
	return fmt.Sprintf("repeat:%s:%d", key, tick.Unix())
}
