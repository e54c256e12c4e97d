package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/indexnowstudio/jobs/pkg/queue"
)

// Schedule is a repeatable sweep registration.
type Schedule struct {
	Queue    string
	Key      string
	TaskName string
	Pattern  string
}

// Schedules returns the repeatable sweeps of the job system. Cron patterns
// are evaluated in UTC.
func Schedules() []Schedule {
	return []Schedule{
		{Queue: QueueAutoCancel, Key: RepeatAutoCancel, TaskName: TaskAutoCancelSweep, Pattern: patternHourly},
		{Queue: QueueKeywordEnrichment, Key: RepeatKeywordEnrichment, TaskName: TaskKeywordEnrichment, Pattern: patternHalfPast},
		{Queue: QueueQuotaReset, Key: RepeatQuotaResetHourly, TaskName: TaskQuotaReset, Pattern: patternFivePast},
		{Queue: QueueQuotaReset, Key: RepeatQuotaResetMidnight, TaskName: TaskQuotaReset, Pattern: patternMidnightWindow},
	}
}

// RegisterSchedules registers every sweep unless a registration with the
// same key exists already. Safe to call on every process start.
func RegisterSchedules(ctx context.Context, reg *queue.Registry, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	for _, s := range Schedules() {
		added, err := reg.GetQueue(s.Queue).EnsureRepeatable(ctx, queue.RepeatableJob{
			Key:      s.Key,
			TaskName: s.TaskName,
			Pattern:  s.Pattern,
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", s.Key, err)
		}
		if added {
			log.InfoContext(ctx, "repeatable job registered",
				slog.String("queue", s.Queue), slog.String("key", s.Key), slog.String("pattern", s.Pattern))
		} else {
			log.DebugContext(ctx, "repeatable job already registered",
				slog.String("queue", s.Queue), slog.String("key", s.Key))
		}
	}
	return nil
}
