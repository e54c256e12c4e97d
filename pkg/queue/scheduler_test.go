package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexnowstudio/jobs/pkg/queue"
)

func TestParseCron(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 10, 22, 50, 0, 0, time.UTC)

	tests := []struct {
		pattern string
		next    time.Time
	}{
		{"0 * * * *", time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)},
		{"30 * * * *", time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)},
		{"5 * * * *", time.Date(2026, 3, 10, 23, 5, 0, 0, time.UTC)},
		{"*/15 23,0 * * *", time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)},
		{"@every 10m", base.Add(10 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			t.Parallel()
			s, err := queue.ParseCron(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.next, s.Next(base))
			assert.Equal(t, tt.pattern, s.String())
		})
	}

	_, err := queue.ParseCron("every hour please")
	assert.ErrorIs(t, err, queue.ErrInvalidSchedule)
}

func newScheduler(t *testing.T, repo queue.SchedulerRepository, clock *testClock) *queue.Scheduler {
	t.Helper()
	s, err := queue.NewScheduler(repo,
		queue.WithSchedulerQueues("sweeps"),
		queue.WithSchedulerClock(clock.Now))
	require.NoError(t, err)
	return s
}

func TestScheduler_FiresDueTickOnce(t *testing.T) {
	t.Parallel()

	forEachStorage(t, func(t *testing.T, storage queue.Storage, clock *testClock) {
		ctx := context.Background()
		_, err := storage.AddRepeatable(ctx, queue.RepeatableJob{
			Key: "hourly", Queue: "sweeps", TaskName: "sweep.hourly", Pattern: "0 * * * *",
			Priority: queue.PriorityDefault, MaxAttempts: 2, RegisteredAt: clock.Now(),
		})
		require.NoError(t, err)

		s := newScheduler(t, storage, clock)

		s.Tick(ctx)
		stats, err := storage.Stats(ctx, "sweeps")
		require.NoError(t, err)
		assert.Zero(t, stats.Pending+stats.Delayed, "not due before the first tick")

		clock.Set(time.Date(2026, 3, 10, 11, 0, 5, 0, time.UTC))
		s.Tick(ctx)
		s.Tick(ctx)

		tick := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
		task, err := storage.GetTaskByJobID(ctx, "sweeps", queue.RepeatJobID("hourly", tick))
		require.NoError(t, err)
		assert.Equal(t, queue.TaskTypePeriodic, task.TaskType)
		assert.Equal(t, "sweep.hourly", task.TaskName)
		assert.Equal(t, 2, task.MaxAttempts)

		var payload queue.RepeatPayload
		require.NoError(t, json.Unmarshal(task.Payload, &payload))
		assert.Equal(t, "hourly", payload.RepeatKey)
		assert.True(t, tick.Equal(payload.ScheduledFor))

		stats, err = storage.Stats(ctx, "sweeps")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Pending)

		job, err := storage.GetRepeatable(ctx, "sweeps", "hourly")
		require.NoError(t, err)
		require.NotNil(t, job.LastFiredAt)
		assert.True(t, tick.Equal(*job.LastFiredAt))
	})
}

func TestScheduler_CatchesUpLatestTickOnly(t *testing.T) {
	t.Parallel()

	forEachStorage(t, func(t *testing.T, storage queue.Storage, clock *testClock) {
		ctx := context.Background()
		_, err := storage.AddRepeatable(ctx, queue.RepeatableJob{
			Key: "hourly", Queue: "sweeps", TaskName: "sweep.hourly", Pattern: "0 * * * *",
			Priority: queue.PriorityDefault, RegisteredAt: clock.Now(),
		})
		require.NoError(t, err)

		clock.Set(time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC))
		newScheduler(t, storage, clock).Tick(ctx)

		stats, err := storage.Stats(ctx, "sweeps")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Pending)

		_, err = storage.GetTaskByJobID(ctx, "sweeps", queue.RepeatJobID("hourly", time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)))
		assert.NoError(t, err)
	})
}

// staleRepo serves a fixed snapshot of registrations, like a second
// scheduler process that read them before the first one fired.
type staleRepo struct {
	queue.Storage
	snapshot []queue.RepeatableJob
}

func (r staleRepo) ListRepeatables(context.Context, string) ([]queue.RepeatableJob, error) {
	return r.snapshot, nil
}

func TestScheduler_ConcurrentSchedulersDoNotDoubleEnqueue(t *testing.T) {
	t.Parallel()

	forEachStorage(t, func(t *testing.T, storage queue.Storage, clock *testClock) {
		ctx := context.Background()
		_, err := storage.AddRepeatable(ctx, queue.RepeatableJob{
			Key: "hourly", Queue: "sweeps", TaskName: "sweep.hourly", Pattern: "0 * * * *",
			Priority: queue.PriorityDefault, RegisteredAt: clock.Now(),
		})
		require.NoError(t, err)

		snapshot, err := storage.ListRepeatables(ctx, "sweeps")
		require.NoError(t, err)

		clock.Set(time.Date(2026, 3, 10, 11, 0, 5, 0, time.UTC))
		newScheduler(t, storage, clock).Tick(ctx)
		newScheduler(t, staleRepo{Storage: storage, snapshot: snapshot}, clock).Tick(ctx)

		stats, err := storage.Stats(ctx, "sweeps")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Pending)
	})
}

func TestScheduler_RequiresQueues(t *testing.T) {
	t.Parallel()

	s, err := queue.NewScheduler(queue.NewMemoryStorage())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Start(context.Background()), queue.ErrSchedulerNotConfigured)
}
