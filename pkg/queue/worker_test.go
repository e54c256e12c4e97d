package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/pkg/ratelimiter"
)

func noBackoff(int) time.Duration { return 0 }

func startWorker(t *testing.T, storage *queue.MemoryStorage, handlers []queue.Handler, opts ...queue.WorkerOption) *queue.Worker {
	t.Helper()

	opts = append([]queue.WorkerOption{
		queue.WithPullInterval(10 * time.Millisecond),
		queue.WithBackoff(noBackoff),
	}, opts...)

	w, err := queue.NewWorker(storage, opts...)
	require.NoError(t, err)
	require.NoError(t, w.RegisterHandlers(handlers...))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func enqueue(t *testing.T, storage *queue.MemoryStorage, payload any, opts ...queue.EnqueueOption) *queue.Task {
	t.Helper()
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	task, err := enq.Enqueue(context.Background(), payload, opts...)
	require.NoError(t, err)
	return task
}

func statsOf(t *testing.T, storage *queue.MemoryStorage, name string) queue.QueueStats {
	t.Helper()
	s, err := storage.Stats(context.Background(), name)
	require.NoError(t, err)
	return s
}

func TestWorker_CompletesTaskWithResult(t *testing.T) {
	t.Parallel()
	storage := queue.NewMemoryStorage()

	var seenID atomic.Value
	h := queue.NewResultTaskHandler(func(ctx context.Context, p plainPayload) (plainPayload, error) {
		id, ok := queue.TaskIDFromContext(ctx)
		if ok {
			seenID.Store(id.String())
		}
		attempt, maxAttempts, _ := queue.AttemptFromContext(ctx)
		if attempt != 1 || maxAttempts != 3 {
			return plainPayload{}, errors.New("unexpected attempt info")
		}
		return plainPayload{N: p.N + 1}, nil
	})
	startWorker(t, storage, []queue.Handler{h})

	task := enqueue(t, storage, plainPayload{N: 1})

	require.Eventually(t, func() bool {
		return statsOf(t, storage, queue.DefaultQueueName).Completed == 1
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := storage.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.JSONEq(t, `{"n":2}`, string(stored.Result))
	assert.Equal(t, task.ID.String(), seenID.Load())
}

func TestWorker_RetriesThenDeadLetters(t *testing.T) {
	t.Parallel()
	storage := queue.NewMemoryStorage()

	var calls atomic.Int32
	h := queue.NewTaskHandler(func(context.Context, plainPayload) error {
		calls.Add(1)
		return errors.New("upstream unavailable")
	})
	startWorker(t, storage, []queue.Handler{h})

	task := enqueue(t, storage, plainPayload{}, queue.WithMaxAttempts(3))

	require.Eventually(t, func() bool {
		return statsOf(t, storage, queue.DefaultQueueName).Failed == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(3), calls.Load())

	failed, err := storage.ListFailed(context.Background(), queue.DefaultQueueName, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, task.ID, failed[0].TaskID)
	assert.Equal(t, 3, failed[0].Attempts)
	assert.False(t, failed[0].Permanent)
	assert.Equal(t, "upstream unavailable", failed[0].Error)
}

func TestWorker_PermanentErrorSkipsRetries(t *testing.T) {
	t.Parallel()
	storage := queue.NewMemoryStorage()

	var calls atomic.Int32
	h := queue.NewTaskHandler(func(context.Context, greetPayload) error {
		calls.Add(1)
		return nil
	})
	startWorker(t, storage, []queue.Handler{h})

	// Fails validation: the handler function never runs.
	enqueue(t, storage, greetPayload{}, queue.WithMaxAttempts(5))

	require.Eventually(t, func() bool {
		return statsOf(t, storage, queue.DefaultQueueName).Failed == 1
	}, 2*time.Second, 10*time.Millisecond)

	failed, err := storage.ListFailed(context.Background(), queue.DefaultQueueName, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.True(t, failed[0].Permanent)
	assert.Equal(t, 1, failed[0].Attempts)
	assert.Zero(t, calls.Load())
}

func TestWorker_UnknownTaskIsDeadLettered(t *testing.T) {
	t.Parallel()
	storage := queue.NewMemoryStorage()

	startWorker(t, storage, []queue.Handler{queue.NewTaskHandler(func(context.Context, plainPayload) error { return nil })})
	enqueue(t, storage, json.RawMessage(`{}`), queue.WithTaskName("nobody.handles.this"))

	require.Eventually(t, func() bool {
		return statsOf(t, storage, queue.DefaultQueueName).Failed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_RecoversPanics(t *testing.T) {
	t.Parallel()
	storage := queue.NewMemoryStorage()

	h := queue.NewTaskHandler(func(context.Context, plainPayload) error {
		panic("kaboom")
	})
	startWorker(t, storage, []queue.Handler{h})
	enqueue(t, storage, plainPayload{}, queue.WithMaxAttempts(1))

	require.Eventually(t, func() bool {
		return statsOf(t, storage, queue.DefaultQueueName).Failed == 1
	}, 2*time.Second, 10*time.Millisecond)

	failed, err := storage.ListFailed(context.Background(), queue.DefaultQueueName, 1)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "kaboom")
}

func TestWorker_FillsAllSlots(t *testing.T) {
	t.Parallel()
	storage := queue.NewMemoryStorage()

	var running, peak atomic.Int32
	release := make(chan struct{})
	h := queue.NewTaskHandler(func(context.Context, plainPayload) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return nil
	})
	startWorker(t, storage, []queue.Handler{h}, queue.WithMaxConcurrentTasks(3))

	for i := range 3 {
		enqueue(t, storage, plainPayload{N: i})
	}

	require.Eventually(t, func() bool { return peak.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	close(release)

	require.Eventually(t, func() bool {
		return statsOf(t, storage, queue.DefaultQueueName).Completed == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_RateLimit(t *testing.T) {
	t.Parallel()
	storage := queue.NewMemoryStorage()

	limiter, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), "test", ratelimiter.PerWindow(2, time.Hour))
	require.NoError(t, err)

	h := queue.NewTaskHandler(func(context.Context, plainPayload) error { return nil })
	w, err := queue.NewWorker(storage,
		queue.WithPullInterval(10*time.Millisecond),
		queue.WithMaxConcurrentTasks(3),
		queue.WithRateLimit(limiter))
	require.NoError(t, err)
	require.NoError(t, w.RegisterHandler(h))

	for i := range 3 {
		enqueue(t, storage, plainPayload{N: i})
	}
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool {
		s := statsOf(t, storage, queue.DefaultQueueName)
		return s.Completed == 2 && s.Processing == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())

	s := statsOf(t, storage, queue.DefaultQueueName)
	assert.Equal(t, int64(2), s.Completed)
	assert.Equal(t, int64(1), s.Pending, "throttled task is handed back on shutdown")
}

func TestWorker_StartRequiresHandlers(t *testing.T) {
	t.Parallel()

	w, err := queue.NewWorker(queue.NewMemoryStorage())
	require.NoError(t, err)
	assert.ErrorIs(t, w.Start(context.Background()), queue.ErrNoHandlers)

	_, err = queue.NewWorker(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)
}
