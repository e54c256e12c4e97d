package queue

import (
	"log/slog"
	"time"

	"github.com/indexnowstudio/jobs/pkg/ratelimiter"
)

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues             []string
	pullInterval       time.Duration
	lockTimeout        time.Duration
	maxConcurrentTasks int
	backoff            Backoff
	limiter            ratelimiter.Limiter
	logger             *slog.Logger
}

// WithQueues sets which queues the worker should pull from
func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

// WithPullInterval sets how often the worker checks for new tasks
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets the lock duration for tasks. It is also the hard
// deadline of a single handler run.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithMaxConcurrentTasks sets the maximum number of concurrent tasks
func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentTasks = n
		}
	}
}

// WithBackoff sets the retry delay policy
func WithBackoff(b Backoff) WorkerOption {
	return func(o *workerOptions) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithRateLimit makes the worker take a token from limiter before each task
// it starts. Workers in different processes whose buckets share a key and a
// store share the budget.
func WithRateLimit(limiter ratelimiter.Limiter) WorkerOption {
	return func(o *workerOptions) {
		o.limiter = limiter
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
