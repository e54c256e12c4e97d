package queue

import "time"

// Config holds the configuration for the task queue
type Config struct {
	KeyPrefix              string        `env:"QUEUE_KEY_PREFIX" envDefault:"indexnow:queue"`
	PollInterval           time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout            time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout        time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	SchedulerCheckInterval time.Duration `env:"QUEUE_SCHEDULER_CHECK_INTERVAL" envDefault:"30s"`
	DefaultAttempts        int           `env:"QUEUE_DEFAULT_ATTEMPTS" envDefault:"3"`
	BackoffBase            time.Duration `env:"QUEUE_BACKOFF_BASE" envDefault:"2s"`
	CompletedMaxAge        time.Duration `env:"QUEUE_COMPLETED_MAX_AGE" envDefault:"24h"`
	CompletedMaxCount      int           `env:"QUEUE_COMPLETED_MAX_COUNT" envDefault:"1000"`
	FailedMaxAge           time.Duration `env:"QUEUE_FAILED_MAX_AGE" envDefault:"168h"`
}

// JobOptions are the defaults applied to every job enqueued through a Registry.
type JobOptions struct {
	Attempts  int
	Backoff   Backoff
	Retention RetentionPolicy
}

// RetentionPolicy bounds how long finished tasks are kept around for
// inspection. Completed tasks are dropped once they are older than
// CompletedMaxAge or beyond the newest CompletedMaxCount, whichever comes
// first. Dead-lettered tasks are dropped after FailedMaxAge.
type RetentionPolicy struct {
	CompletedMaxAge   time.Duration
	CompletedMaxCount int
	FailedMaxAge      time.Duration
}

// DefaultRetention keeps completed tasks for 24h or 1000 entries and failed
// tasks for 7 days.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{
		CompletedMaxAge:   24 * time.Hour,
		CompletedMaxCount: 1000,
		FailedMaxAge:      7 * 24 * time.Hour,
	}
}

// DefaultJobOptions returns 3 attempts, exponential backoff from 2s and the
// default retention policy.
func DefaultJobOptions() JobOptions {
	return JobOptions{
		Attempts:  3,
		Backoff:   ExponentialBackoff(2*time.Second, time.Hour),
		Retention: DefaultRetention(),
	}
}

// JobOptions converts the env config into registry defaults.
func (c Config) JobOptions() JobOptions {
	opts := DefaultJobOptions()
	if c.DefaultAttempts > 0 {
		opts.Attempts = c.DefaultAttempts
	}
	if c.BackoffBase > 0 {
		opts.Backoff = ExponentialBackoff(c.BackoffBase, time.Hour)
	}
	if c.CompletedMaxAge > 0 {
		opts.Retention.CompletedMaxAge = c.CompletedMaxAge
	}
	if c.CompletedMaxCount > 0 {
		opts.Retention.CompletedMaxCount = c.CompletedMaxCount
	}
	if c.FailedMaxAge > 0 {
		opts.Retention.FailedMaxAge = c.FailedMaxAge
	}
	return opts
}

// Backoff returns the delay before the next attempt given the number of
// attempts already made (1 after the first failure).
type Backoff func(attempt int) time.Duration

// ExponentialBackoff doubles base on every attempt: base, 2*base, 4*base...
// The result never exceeds max.
func ExponentialBackoff(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if max > 0 && d >= max {
				return max
			}
		}
		if max > 0 && d > max {
			return max
		}
		return d
	}
}
