package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// TaskType represents the type of task
type TaskType string

const (
	TaskTypeOneTime  TaskType = "one-time"
	TaskTypePeriodic TaskType = "periodic"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority represents task priority (0-100, higher is more important)
type Priority int8

// Priority constants
const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task represents a task in the queue.
// Attempts is incremented every time the task is claimed by a worker.
type Task struct {
	ID          uuid.UUID       `json:"id"`
	Queue       string          `json:"queue"`
	TaskType    TaskType        `json:"task_type"`
	TaskName    string          `json:"task_name"`
	JobID       string          `json:"job_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      TaskStatus      `json:"status"`
	Priority    Priority        `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	LockedUntil *time.Time      `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID      `json:"locked_by,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TasksDlq represents a task in the dead letter queue.
// Stores failed tasks that exhausted all attempts, or failed permanently,
// for manual inspection and recovery.
type TasksDlq struct {
	ID        uuid.UUID       `json:"id"`
	TaskID    uuid.UUID       `json:"task_id"`
	Queue     string          `json:"queue"`
	TaskType  TaskType        `json:"task_type"`
	TaskName  string          `json:"task_name"`
	JobID     string          `json:"job_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Priority  Priority        `json:"priority"`
	Error     string          `json:"error"`
	Attempts  int             `json:"attempts"`
	Permanent bool            `json:"permanent"`
	FailedAt  time.Time       `json:"failed_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// QueueStats is a point-in-time view of a queue's task counts.
type QueueStats struct {
	Queue      string `json:"queue"`
	Pending    int64  `json:"pending"`
	Delayed    int64  `json:"delayed"`
	Processing int64  `json:"processing"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
	Repeatable int64  `json:"repeatable"`
}

// RepeatableJob is a cron-keyed schedule entry. Key identifies the logical
// job; at most one registration exists per key and queue.
type RepeatableJob struct {
	Key          string          `json:"key"`
	Queue        string          `json:"queue"`
	TaskName     string          `json:"task_name"`
	Pattern      string          `json:"pattern"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Priority     Priority        `json:"priority"`
	MaxAttempts  int             `json:"max_attempts"`
	RegisteredAt time.Time       `json:"registered_at"`
	LastFiredAt  *time.Time      `json:"last_fired_at,omitempty"`
}

// RepeatPayload is the payload the scheduler attaches to periodic tasks
// whose registration carries no payload of its own.
type RepeatPayload struct {
	RepeatKey    string    `json:"repeat_key"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// Named is implemented by payloads that choose their own task name.
type Named interface {
	TaskName() string
}

// Validatable is implemented by payloads that can check themselves.
type Validatable interface {
	Validate() error
}

// taskNameOf returns the task name for a payload value.
func taskNameOf(v any) string {
	if n, ok := v.(Named); ok {
		if name := n.TaskName(); name != "" {
			return name
		}
	}
	return qualifiedStructName(v)
}

func qualifiedStructName(v any) string {
	s := fmt.Sprintf("%T", v)
	s = strings.TrimLeft(s, "*")

	return s
}
