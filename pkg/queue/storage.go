package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RepeatableRepository stores repeatable job registrations.
type RepeatableRepository interface {
	// SaveRepeatable creates or replaces a registration. LastFiredAt of an
	// existing registration is kept when job.LastFiredAt is nil.
	SaveRepeatable(ctx context.Context, job RepeatableJob) error

	// AddRepeatable creates a registration only if none exists for its key.
	AddRepeatable(ctx context.Context, job RepeatableJob) (added bool, err error)

	GetRepeatable(ctx context.Context, queue, key string) (*RepeatableJob, error)
	ListRepeatables(ctx context.Context, queue string) ([]RepeatableJob, error)
	RemoveRepeatable(ctx context.Context, queue, key string) error
	MarkRepeatableFired(ctx context.Context, queue, key string, firedAt time.Time) error
}

// Inspector exposes read and recovery operations over stored tasks.
type Inspector interface {
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	GetTaskByJobID(ctx context.Context, queue, jobID string) (*Task, error)
	Stats(ctx context.Context, queue string) (QueueStats, error)

	// ListFailed returns dead-letter entries of a queue, newest first.
	ListFailed(ctx context.Context, queue string, limit int) ([]TasksDlq, error)

	// RequeueFailed removes a dead-letter entry and makes its task pending
	// again with a fresh attempt budget.
	RequeueFailed(ctx context.Context, queue string, dlqID uuid.UUID) (*Task, error)
}

// Storage is everything a Registry needs from a backend.
type Storage interface {
	EnqueuerRepository
	WorkerRepository
	SchedulerRepository
	RepeatableRepository
	Inspector
	Checkpoints
	Locker
}

// StorageOption configures MemoryStorage and RedisStorage.
type StorageOption func(*storageOptions)

type storageOptions struct {
	retention     RetentionPolicy
	keyPrefix     string
	checkpointTTL time.Duration
	now           func() time.Time
}

func defaultStorageOptions() *storageOptions {
	return &storageOptions{
		retention:     DefaultRetention(),
		keyPrefix:     "indexnow:queue",
		checkpointTTL: 7 * 24 * time.Hour,
		now:           time.Now,
	}
}

// WithRetention sets how long finished tasks are kept.
func WithRetention(p RetentionPolicy) StorageOption {
	return func(o *storageOptions) {
		o.retention = p
	}
}

// WithKeyPrefix sets the Redis key namespace. Ignored by MemoryStorage.
func WithKeyPrefix(prefix string) StorageOption {
	return func(o *storageOptions) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithCheckpointTTL sets how long step checkpoints are remembered.
func WithCheckpointTTL(d time.Duration) StorageOption {
	return func(o *storageOptions) {
		if d > 0 {
			o.checkpointTTL = d
		}
	}
}

// WithClock overrides the storage time source. Used in tests.
func WithClock(now func() time.Time) StorageOption {
	return func(o *storageOptions) {
		if now != nil {
			o.now = now
		}
	}
}
