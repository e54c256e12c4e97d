package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository defines the interface for task creation.
// CreateTask must return ErrDuplicateJob when task.JobID is set and a task
// with the same job ID is still retained in the queue.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer handles task enqueueing
type Enqueuer struct {
	repo               EnqueuerRepository
	defaultQueue       string
	defaultPriority    Priority
	defaultMaxAttempts int
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue:       DefaultQueueName,
		defaultPriority:    PriorityDefault,
		defaultMaxAttempts: 3,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:               repo,
		defaultQueue:       options.defaultQueue,
		defaultPriority:    options.defaultPriority,
		defaultMaxAttempts: options.defaultMaxAttempts,
	}, nil
}

// Enqueue adds a new task to the queue and returns the stored task.
// A duplicate job ID yields ErrDuplicateJob; nothing is stored in that case.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (*Task, error) {
	if payload == nil {
		return nil, ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:       e.defaultQueue,
		priority:    e.defaultPriority,
		maxAttempts: e.defaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(options)
	}

	if !options.priority.Valid() {
		return nil, ErrInvalidPriority
	}

	task, err := e.buildTask(payload, options)
	if err != nil {
		return nil, err
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}

	return task, nil
}

// buildTask constructs a Task from payload and options
func (e *Enqueuer) buildTask(payload any, options *enqueueOptions) (*Task, error) {
	var payloadBytes []byte
	if raw, ok := payload.(json.RawMessage); ok {
		payloadBytes = raw
	} else {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: payload of type %T: %w", ErrPayloadMarshal, payload, err)
		}
		payloadBytes = b
	}

	taskName := options.taskName
	if taskName == "" {
		taskName = taskNameOf(payload)
	}

	now := time.Now()
	scheduledAt := now
	if options.scheduledAt != nil {
		scheduledAt = *options.scheduledAt
	} else if options.delay > 0 {
		scheduledAt = scheduledAt.Add(options.delay)
	}

	return &Task{
		ID:          uuid.New(),
		Queue:       options.queue,
		TaskType:    TaskTypeOneTime,
		TaskName:    taskName,
		JobID:       options.jobID,
		Payload:     payloadBytes,
		Status:      TaskStatusPending,
		Priority:    options.priority,
		Attempts:    0,
		MaxAttempts: options.maxAttempts,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	}, nil
}
