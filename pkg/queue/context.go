package queue

import (
	"context"

	"github.com/google/uuid"
)

type taskInfoKey struct{}

type taskInfo struct {
	id          uuid.UUID
	queue       string
	attempt     int
	maxAttempts int
}

func withTaskInfo(ctx context.Context, task *Task) context.Context {
	return context.WithValue(ctx, taskInfoKey{}, taskInfo{
		id:          task.ID,
		queue:       task.Queue,
		attempt:     task.Attempts,
		maxAttempts: task.MaxAttempts,
	})
}

// TaskIDFromContext returns the ID of the task being processed.
func TaskIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	info, ok := ctx.Value(taskInfoKey{}).(taskInfo)
	return info.id, ok
}

// QueueFromContext returns the queue of the task being processed.
func QueueFromContext(ctx context.Context) (string, bool) {
	info, ok := ctx.Value(taskInfoKey{}).(taskInfo)
	return info.queue, ok
}

// AttemptFromContext returns the current attempt (1-based) and the attempt budget.
func AttemptFromContext(ctx context.Context) (attempt, maxAttempts int, ok bool) {
	info, ok := ctx.Value(taskInfoKey{}).(taskInfo)
	return info.attempt, info.maxAttempts, ok
}
