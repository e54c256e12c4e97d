package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexnowstudio/jobs/pkg/queue"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 10, 10, 0, 30, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRedisStorage(t *testing.T, opts ...queue.StorageOption) *queue.RedisStorage {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	storage, err := queue.NewRedisStorage(client, opts...)
	require.NoError(t, err)
	return storage
}

// forEachStorage runs fn against every Storage implementation.
func forEachStorage(t *testing.T, fn func(t *testing.T, s queue.Storage, clock *testClock), opts ...queue.StorageOption) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock()
		fn(t, queue.NewMemoryStorage(append(opts, queue.WithClock(clock.Now))...), clock)
	})
	t.Run("redis", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock()
		fn(t, newRedisStorage(t, append(opts, queue.WithClock(clock.Now))...), clock)
	})
}

func newTask(q string, at time.Time, prio queue.Priority) *queue.Task {
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       q,
		TaskType:    queue.TaskTypeOneTime,
		TaskName:    "test.task",
		Payload:     []byte(`{}`),
		Status:      queue.TaskStatusPending,
		Priority:    prio,
		MaxAttempts: 3,
		ScheduledAt: at,
		CreatedAt:   at,
	}
}

func TestStorage_ClaimOrderAndDelay(t *testing.T) {
	t.Parallel()

	forEachStorage(t, func(t *testing.T, s queue.Storage, clock *testClock) {
		ctx := context.Background()
		now := clock.Now()
		worker := uuid.New()

		low := newTask("q", now.Add(-time.Minute), queue.PriorityLow)
		high := newTask("q", now, queue.PriorityHigh)
		later := newTask("q", now.Add(time.Hour), queue.PriorityMax)
		for _, task := range []*queue.Task{low, high, later} {
			require.NoError(t, s.CreateTask(ctx, task))
		}

		stats, err := s.Stats(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Pending)
		assert.Equal(t, int64(1), stats.Delayed)

		got, err := s.ClaimTask(ctx, worker, []string{"q"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, high.ID, got.ID)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, queue.TaskStatusProcessing, got.Status)
		require.NotNil(t, got.LockedBy)
		assert.Equal(t, worker, *got.LockedBy)

		got, err = s.ClaimTask(ctx, worker, []string{"q"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, low.ID, got.ID)

		_, err = s.ClaimTask(ctx, worker, []string{"q"}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)

		_, err = s.ClaimTask(ctx, worker, []string{"other"}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)

		clock.Advance(2 * time.Hour)
		got, err = s.ClaimTask(ctx, worker, []string{"q"}, time.Hour*10)
		require.NoError(t, err)
		assert.Equal(t, later.ID, got.ID)
	})
}

func TestStorage_ExpiredLockIsReclaimed(t *testing.T) {
	t.Parallel()

	forEachStorage(t, func(t *testing.T, s queue.Storage, clock *testClock) {
		ctx := context.Background()
		task := newTask("q", clock.Now(), queue.PriorityDefault)
		require.NoError(t, s.CreateTask(ctx, task))

		_, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
		require.NoError(t, err)

		_, err = s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoTaskToClaim)

		clock.Advance(2 * time.Minute)
		got, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, 2, got.Attempts)
	})
}

func TestStorage_RetryCompleteAndDeadLetter(t *testing.T) {
	t.Parallel()

	forEachStorage(t, func(t *testing.T, s queue.Storage, clock *testClock) {
		ctx := context.Background()
		worker := uuid.New()
		task := newTask("q", clock.Now(), queue.PriorityDefault)
		task.JobID = "order-1"
		require.NoError(t, s.CreateTask(ctx, task))

		_, err := s.ClaimTask(ctx, worker, []string{"q"}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.RetryTask(ctx, task.ID, "temporary", clock.Now().Add(time.Minute)))

		stored, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusPending, stored.Status)
		require.NotNil(t, stored.Error)
		assert.Equal(t, "temporary", *stored.Error)

		_, err = s.ClaimTask(ctx, worker, []string{"q"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoTaskToClaim, "retry waits for backoff")

		clock.Advance(time.Minute)
		_, err = s.ClaimTask(ctx, worker, []string{"q"}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.MoveToDLQ(ctx, task.ID, "gave up", false))

		assert.ErrorIs(t, s.CompleteTask(ctx, task.ID, nil), queue.ErrTaskNotProcessing)

		failed, err := s.ListFailed(ctx, "q", 10)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, 2, failed[0].Attempts)
		assert.Equal(t, "order-1", failed[0].JobID)

		// The failed task still owns its job id.
		err = s.CreateTask(ctx, func() *queue.Task {
			dup := newTask("q", clock.Now(), queue.PriorityDefault)
			dup.JobID = "order-1"
			return dup
		}())
		assert.ErrorIs(t, err, queue.ErrDuplicateJob)

		requeued, err := s.RequeueFailed(ctx, "q", failed[0].ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, requeued.ID)
		assert.Equal(t, 0, requeued.Attempts)

		_, err = s.RequeueFailed(ctx, "q", failed[0].ID)
		assert.ErrorIs(t, err, queue.ErrDLQEntryNotFound)

		got, err := s.ClaimTask(ctx, worker, []string{"q"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		require.NoError(t, s.CompleteTask(ctx, task.ID, []byte(`{"ok":true}`)))

		byJob, err := s.GetTaskByJobID(ctx, "q", "order-1")
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusCompleted, byJob.Status)
		assert.JSONEq(t, `{"ok":true}`, string(byJob.Result))

		stats, err := s.Stats(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Completed)
		assert.Equal(t, int64(0), stats.Failed)
	})
}

func TestStorage_CompletedRetention(t *testing.T) {
	t.Parallel()

	retention := queue.RetentionPolicy{CompletedMaxAge: time.Hour, CompletedMaxCount: 2, FailedMaxAge: time.Hour}

	forEachStorage(t, func(t *testing.T, s queue.Storage, clock *testClock) {
		ctx := context.Background()

		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			task := newTask("q", clock.Now(), queue.PriorityDefault)
			task.JobID = "job-" + task.ID.String()
			require.NoError(t, s.CreateTask(ctx, task))
			_, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
			require.NoError(t, err)
			require.NoError(t, s.CompleteTask(ctx, task.ID, nil))
			ids = append(ids, task.ID)
			clock.Advance(time.Second)
		}

		_, err := s.GetTask(ctx, ids[0])
		assert.ErrorIs(t, err, queue.ErrTaskNotFound, "oldest completed task beyond the count limit is dropped")

		stats, err := s.Stats(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Completed)

		// Age limit: completing another task two hours later drops the rest.
		clock.Advance(2 * time.Hour)
		task := newTask("q", clock.Now(), queue.PriorityDefault)
		require.NoError(t, s.CreateTask(ctx, task))
		_, err = s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.CompleteTask(ctx, task.ID, nil))

		stats, err = s.Stats(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Completed)
	}, queue.WithRetention(retention))
}

func TestStorage_DroppedJobIDIsTakenOverOnce(t *testing.T) {
	t.Parallel()

	retention := queue.RetentionPolicy{CompletedMaxAge: time.Hour, CompletedMaxCount: 1, FailedMaxAge: time.Hour}

	forEachStorage(t, func(t *testing.T, s queue.Storage, clock *testClock) {
		ctx := context.Background()

		for _, jobID := range []string{"order-7", ""} {
			task := newTask("q", clock.Now(), queue.PriorityDefault)
			task.JobID = jobID
			require.NoError(t, s.CreateTask(ctx, task))
			_, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
			require.NoError(t, err)
			require.NoError(t, s.CompleteTask(ctx, task.ID, nil))
			clock.Advance(time.Second)
		}
		_, err := s.GetTaskByJobID(ctx, "q", "order-7")
		require.ErrorIs(t, err, queue.ErrTaskNotFound)

		const enqueuers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created []uuid.UUID
			dups    int
		)
		for i := 0; i < enqueuers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				task := newTask("q", clock.Now(), queue.PriorityDefault)
				task.JobID = "order-7"
				err := s.CreateTask(ctx, task)

				mu.Lock()
				defer mu.Unlock()
				if errors.Is(err, queue.ErrDuplicateJob) {
					dups++
					return
				}
				assert.NoError(t, err)
				created = append(created, task.ID)
			}()
		}
		wg.Wait()

		require.Len(t, created, 1)
		assert.Equal(t, enqueuers-1, dups)

		byJob, err := s.GetTaskByJobID(ctx, "q", "order-7")
		require.NoError(t, err)
		assert.Equal(t, created[0], byJob.ID)

		stats, err := s.Stats(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Pending+stats.Delayed)
	}, queue.WithRetention(retention))
}

func TestStorage_FailedRetention(t *testing.T) {
	t.Parallel()

	retention := queue.RetentionPolicy{FailedMaxAge: time.Hour}

	forEachStorage(t, func(t *testing.T, s queue.Storage, clock *testClock) {
		ctx := context.Background()

		fail := func() *queue.Task {
			task := newTask("q", clock.Now(), queue.PriorityDefault)
			require.NoError(t, s.CreateTask(ctx, task))
			_, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
			require.NoError(t, err)
			require.NoError(t, s.MoveToDLQ(ctx, task.ID, "bad", true))
			return task
		}

		first := fail()
		clock.Advance(2 * time.Hour)
		fail()

		failed, err := s.ListFailed(ctx, "q", 0)
		require.NoError(t, err)
		assert.Len(t, failed, 1)

		_, err = s.GetTask(ctx, first.ID)
		assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	}, queue.WithRetention(retention))
}

func TestStorage_Repeatables(t *testing.T) {
	t.Parallel()

	forEachStorage(t, func(t *testing.T, s queue.Storage, clock *testClock) {
		ctx := context.Background()
		job := queue.RepeatableJob{Key: "k", Queue: "q", TaskName: "sweep", Pattern: "0 * * * *", RegisteredAt: clock.Now()}

		added, err := s.AddRepeatable(ctx, job)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = s.AddRepeatable(ctx, job)
		require.NoError(t, err)
		assert.False(t, added)

		fired := clock.Now().Add(time.Hour)
		require.NoError(t, s.MarkRepeatableFired(ctx, "q", "k", fired))

		job.Pattern = "30 * * * *"
		require.NoError(t, s.SaveRepeatable(ctx, job))

		got, err := s.GetRepeatable(ctx, "q", "k")
		require.NoError(t, err)
		assert.Equal(t, "30 * * * *", got.Pattern)
		require.NotNil(t, got.LastFiredAt, "replacing keeps the fire history")
		assert.True(t, fired.Equal(*got.LastFiredAt))

		list, err := s.ListRepeatables(ctx, "q")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, s.RemoveRepeatable(ctx, "q", "k"))
		assert.ErrorIs(t, s.RemoveRepeatable(ctx, "q", "k"), queue.ErrRepeatableNotFound)
		_, err = s.GetRepeatable(ctx, "q", "k")
		assert.ErrorIs(t, err, queue.ErrRepeatableNotFound)
	})
}

func TestStorage_LocksAndCheckpoints(t *testing.T) {
	t.Parallel()

	forEachStorage(t, func(t *testing.T, s queue.Storage, _ *testClock) {
		ctx := context.Background()

		release, ok, err := s.TryLock(ctx, "sweep", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = s.TryLock(ctx, "sweep", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, release(ctx))
		_, ok, err = s.TryLock(ctx, "sweep", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		_, done, err := s.LoadStep(ctx, "task-1", "quota")
		require.NoError(t, err)
		assert.False(t, done)

		require.NoError(t, s.SaveStep(ctx, "task-1", "quota", []byte(`{"position":4}`)))
		result, done, err := s.LoadStep(ctx, "task-1", "quota")
		require.NoError(t, err)
		assert.True(t, done)
		assert.JSONEq(t, `{"position":4}`, string(result))

		_, done, err = s.LoadStep(ctx, "task-2", "quota")
		require.NoError(t, err)
		assert.False(t, done)
	})
}
