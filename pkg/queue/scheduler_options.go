package queue

import (
	"log/slog"
	"time"
)

// SchedulerOption is a functional option for configuring a scheduler
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	queues        []string
	checkInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// WithSchedulerQueues sets the queues whose repeatable registrations are watched
func WithSchedulerQueues(queues ...string) SchedulerOption {
	return func(o *schedulerOptions) {
		o.queues = append(o.queues, queues...)
	}
}

// WithCheckInterval sets how often the scheduler checks for due ticks
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSchedulerClock overrides the time source. Used in tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}
