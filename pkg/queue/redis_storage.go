package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStorage implements Storage on Redis so that enqueuers, workers and
// schedulers in different processes share one queue.
//
// Key layout under the configured prefix:
//
//	task:{id}                 task JSON
//	q:{queue}:delayed         ZSET id -> scheduled_at (ms)
//	q:{queue}:ready           ZSET id -> priority-ordered claim score
//	q:{queue}:prio            HASH id -> priority
//	q:{queue}:active          ZSET id -> locked_until (ms)
//	q:{queue}:completed       ZSET id -> processed_at (ms)
//	q:{queue}:failed          ZSET dlq id -> failed_at (ms)
//	dlq:{id}                  dead-letter entry JSON
//	jobid:{queue}:{job id}    task id
//	repeat:{queue}            HASH key -> repeatable registration JSON
//	step:{task}:{step}        checkpoint with the step result
//	lock:{key}                advisory lock token
type RedisStorage struct {
	client        redis.UniversalClient
	prefix        string
	retention     RetentionPolicy
	checkpointTTL time.Duration
	now           func() time.Time
}

// NewRedisStorage creates a Redis backed storage.
func NewRedisStorage(client redis.UniversalClient, opts ...StorageOption) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrRepositoryNil
	}

	o := defaultStorageOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &RedisStorage{
		client:        client,
		prefix:        o.keyPrefix,
		retention:     o.retention,
		checkpointTTL: o.checkpointTTL,
		now:           o.now,
	}, nil
}

// claimBatch bounds how many delayed or expired entries one claim promotes.
const claimBatch = 100

// claimScript promotes due delayed tasks, requeues tasks whose lock expired,
// then moves the best ready task to the active set.
// KEYS: delayed, ready, prio, active. ARGV: now ms, lock-until ms, batch.
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local batch = tonumber(ARGV[3])

local function readyScore(id, at)
  local prio = tonumber(redis.call('HGET', KEYS[3], id) or '50')
  return string.format('%.0f', (100 - prio) * 1e13 + at)
end

local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, batch)
for _, id in ipairs(due) do
  local at = tonumber(redis.call('ZSCORE', KEYS[1], id))
  redis.call('ZADD', KEYS[2], readyScore(id, at), id)
  redis.call('ZREM', KEYS[1], id)
end

local expired = redis.call('ZRANGEBYSCORE', KEYS[4], '-inf', '(' .. now, 'LIMIT', 0, batch)
for _, id in ipairs(expired) do
  redis.call('ZADD', KEYS[2], readyScore(id, now), id)
  redis.call('ZREM', KEYS[4], id)
end

local popped = redis.call('ZPOPMIN', KEYS[2])
if #popped == 0 then
  return false
end
redis.call('ZADD', KEYS[4], ARGV[2], popped[1])
return popped[1]
`)

// createScript stores a task and schedules it. With a job ID key the ID is
// reserved in the same step; an ID whose task was dropped by retention is
// taken over, one held by a live task returns 0.
// KEYS: task, prio, delayed, [jobid]. ARGV: id, data, priority, run-at ms, task key prefix.
var createScript = redis.NewScript(`
if KEYS[4] then
  local holder = redis.call('GET', KEYS[4])
  if holder and redis.call('EXISTS', ARGV[5] .. holder) == 1 then
    return 0
  end
  redis.call('SET', KEYS[4], ARGV[1])
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
return 1
`)

// unlockScript deletes a key only if it still holds the caller's value. It
// releases locks and job IDs.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

func (rs *RedisStorage) key(parts ...string) string {
	k := rs.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (rs *RedisStorage) taskKey(id uuid.UUID) string { return rs.key("task", id.String()) }
func (rs *RedisStorage) dlqKey(id uuid.UUID) string  { return rs.key("dlq", id.String()) }
func (rs *RedisStorage) queueKey(queue, set string) string {
	return rs.key("q", queue, set)
}
func (rs *RedisStorage) jobIDKey(queue, jobID string) string {
	return rs.key("jobid", queue, jobID)
}

func ms(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (rs *RedisStorage) loadTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	raw, err := rs.client.Get(ctx, rs.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

func (rs *RedisStorage) loadProcessing(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := rs.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != TaskStatusProcessing {
		return nil, ErrTaskNotProcessing
	}
	return t, nil
}

// CreateTask implements EnqueuerRepository and SchedulerRepository
func (rs *RedisStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTaskCreate, err)
	}

	keys := []string{rs.taskKey(task.ID), rs.queueKey(task.Queue, "prio"), rs.queueKey(task.Queue, "delayed")}
	if task.JobID != "" {
		keys = append(keys, rs.jobIDKey(task.Queue, task.JobID))
	}
	created, err := createScript.Run(ctx, rs.client, keys,
		task.ID.String(), data, int(task.Priority), ms(task.ScheduledAt), rs.key("task")+":",
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTaskCreate, err)
	}
	if created == 0 {
		return ErrDuplicateJob
	}
	return nil
}

// ClaimTask implements WorkerRepository. Queues are tried in order.
func (rs *RedisStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	now := rs.now()
	lockedUntil := now.Add(lockDuration)

	for _, q := range queues {
		for {
			res, err := claimScript.Run(ctx, rs.client, []string{
				rs.queueKey(q, "delayed"),
				rs.queueKey(q, "ready"),
				rs.queueKey(q, "prio"),
				rs.queueKey(q, "active"),
			}, now.UnixMilli(), lockedUntil.UnixMilli(), claimBatch).Text()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("claim from queue %q: %w", q, err)
			}

			id, err := uuid.Parse(res)
			if err != nil {
				rs.client.ZRem(ctx, rs.queueKey(q, "active"), res)
				continue
			}

			t, err := rs.loadTask(ctx, id)
			if errors.Is(err, ErrTaskNotFound) {
				rs.client.ZRem(ctx, rs.queueKey(q, "active"), res)
				continue
			}
			if err != nil {
				return nil, err
			}

			t.Status = TaskStatusProcessing
			t.LockedUntil = &lockedUntil
			t.LockedBy = &workerID
			t.Attempts++
			if err := rs.saveTask(ctx, t); err != nil {
				return nil, err
			}
			return t, nil
		}
	}

	return nil, ErrNoTaskToClaim
}

func (rs *RedisStorage) saveTask(ctx context.Context, t *Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return rs.client.Set(ctx, rs.taskKey(t.ID), data, 0).Err()
}

// CompleteTask implements WorkerRepository
func (rs *RedisStorage) CompleteTask(ctx context.Context, taskID uuid.UUID, result json.RawMessage) error {
	t, err := rs.loadProcessing(ctx, taskID)
	if err != nil {
		return err
	}

	now := rs.now()
	t.Status = TaskStatusCompleted
	t.ProcessedAt = &now
	t.LockedUntil = nil
	t.LockedBy = nil
	t.Error = nil
	t.Result = result

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}

	id := t.ID.String()
	_, err = rs.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, rs.taskKey(t.ID), data, 0)
		p.ZRem(ctx, rs.queueKey(t.Queue, "active"), id)
		p.HDel(ctx, rs.queueKey(t.Queue, "prio"), id)
		p.ZAdd(ctx, rs.queueKey(t.Queue, "completed"), redis.Z{Score: ms(now), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete task %s: %w", t.ID, err)
	}

	return rs.trimCompleted(ctx, t.Queue, now)
}

// RetryTask implements WorkerRepository
func (rs *RedisStorage) RetryTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error {
	t, err := rs.loadProcessing(ctx, taskID)
	if err != nil {
		return err
	}

	t.Status = TaskStatusPending
	t.ScheduledAt = retryAt
	t.LockedUntil = nil
	t.LockedBy = nil
	t.Error = &errorMsg

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}

	id := t.ID.String()
	_, err = rs.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, rs.taskKey(t.ID), data, 0)
		p.ZRem(ctx, rs.queueKey(t.Queue, "active"), id)
		p.ZAdd(ctx, rs.queueKey(t.Queue, "delayed"), redis.Z{Score: ms(retryAt), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("retry task %s: %w", t.ID, err)
	}
	return nil
}

// MoveToDLQ implements WorkerRepository
func (rs *RedisStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string, permanent bool) error {
	t, err := rs.loadProcessing(ctx, taskID)
	if err != nil {
		return err
	}

	now := rs.now()
	t.Status = TaskStatusFailed
	t.ProcessedAt = &now
	t.LockedUntil = nil
	t.LockedBy = nil
	t.Error = &errorMsg

	entry := TasksDlq{
		ID:        uuid.New(),
		TaskID:    t.ID,
		Queue:     t.Queue,
		TaskType:  t.TaskType,
		TaskName:  t.TaskName,
		JobID:     t.JobID,
		Payload:   t.Payload,
		Priority:  t.Priority,
		Error:     errorMsg,
		Attempts:  t.Attempts,
		Permanent: permanent,
		FailedAt:  now,
		CreatedAt: t.CreatedAt,
	}

	taskData, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	entryData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode dead letter entry: %w", err)
	}

	id := t.ID.String()
	_, err = rs.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, rs.taskKey(t.ID), taskData, 0)
		p.ZRem(ctx, rs.queueKey(t.Queue, "active"), id)
		p.HDel(ctx, rs.queueKey(t.Queue, "prio"), id)
		p.Set(ctx, rs.dlqKey(entry.ID), entryData, 0)
		p.ZAdd(ctx, rs.queueKey(t.Queue, "failed"), redis.Z{Score: ms(now), Member: entry.ID.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("move task %s to DLQ: %w", t.ID, err)
	}

	return rs.trimFailed(ctx, t.Queue, now)
}

// trimCompleted enforces the completed-task retention of a queue.
func (rs *RedisStorage) trimCompleted(ctx context.Context, queue string, now time.Time) error {
	set := rs.queueKey(queue, "completed")
	r := rs.retention

	var drop []string
	if r.CompletedMaxAge > 0 {
		old, err := rs.client.ZRangeByScore(ctx, set, &redis.ZRangeBy{
			Min: "-inf",
			Max: "(" + strconv.FormatInt(now.Add(-r.CompletedMaxAge).UnixMilli(), 10),
		}).Result()
		if err != nil {
			return fmt.Errorf("trim completed tasks: %w", err)
		}
		drop = append(drop, old...)
	}
	if r.CompletedMaxCount > 0 {
		// Everything ranked below the newest CompletedMaxCount entries.
		extra, err := rs.client.ZRevRange(ctx, set, int64(r.CompletedMaxCount), -1).Result()
		if err != nil {
			return fmt.Errorf("trim completed tasks: %w", err)
		}
		drop = append(drop, extra...)
	}

	for _, member := range drop {
		id, err := uuid.Parse(member)
		if err == nil {
			if err := rs.dropTask(ctx, id); err != nil {
				return err
			}
		}
		rs.client.ZRem(ctx, set, member)
	}
	return nil
}

// trimFailed drops dead-letter entries and their failed tasks past retention.
func (rs *RedisStorage) trimFailed(ctx context.Context, queue string, now time.Time) error {
	if rs.retention.FailedMaxAge <= 0 {
		return nil
	}
	set := rs.queueKey(queue, "failed")

	old, err := rs.client.ZRangeByScore(ctx, set, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.Add(-rs.retention.FailedMaxAge).UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("trim failed tasks: %w", err)
	}

	for _, member := range old {
		if id, err := uuid.Parse(member); err == nil {
			entry, err := rs.loadDLQ(ctx, id)
			if err == nil {
				if t, err := rs.loadTask(ctx, entry.TaskID); err == nil && t.Status == TaskStatusFailed {
					if err := rs.dropTask(ctx, t.ID); err != nil {
						return err
					}
				}
			}
			rs.client.Del(ctx, rs.dlqKey(id))
		}
		rs.client.ZRem(ctx, set, member)
	}
	return nil
}

// dropTask removes a task together with its job ID reservation.
func (rs *RedisStorage) dropTask(ctx context.Context, id uuid.UUID) error {
	t, err := rs.loadTask(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if t.JobID != "" {
		if err := unlockScript.Run(ctx, rs.client, []string{rs.jobIDKey(t.Queue, t.JobID)}, id.String()).Err(); err != nil {
			return err
		}
	}
	return rs.client.Del(ctx, rs.taskKey(id)).Err()
}

func (rs *RedisStorage) loadDLQ(ctx context.Context, id uuid.UUID) (*TasksDlq, error) {
	raw, err := rs.client.Get(ctx, rs.dlqKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDLQEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load dead letter entry %s: %w", id, err)
	}
	var e TasksDlq
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode dead letter entry %s: %w", id, err)
	}
	return &e, nil
}

func (rs *RedisStorage) encodeRepeatable(job RepeatableJob) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRepeatable, err)
	}
	return string(data), nil
}

// SaveRepeatable implements RepeatableRepository
func (rs *RedisStorage) SaveRepeatable(ctx context.Context, job RepeatableJob) error {
	if job.LastFiredAt == nil {
		if prev, err := rs.GetRepeatable(ctx, job.Queue, job.Key); err == nil {
			job.LastFiredAt = prev.LastFiredAt
		}
	}
	data, err := rs.encodeRepeatable(job)
	if err != nil {
		return err
	}
	return rs.client.HSet(ctx, rs.key("repeat", job.Queue), job.Key, data).Err()
}

// AddRepeatable implements RepeatableRepository
func (rs *RedisStorage) AddRepeatable(ctx context.Context, job RepeatableJob) (bool, error) {
	data, err := rs.encodeRepeatable(job)
	if err != nil {
		return false, err
	}
	return rs.client.HSetNX(ctx, rs.key("repeat", job.Queue), job.Key, data).Result()
}

// GetRepeatable implements RepeatableRepository
func (rs *RedisStorage) GetRepeatable(ctx context.Context, queue, key string) (*RepeatableJob, error) {
	raw, err := rs.client.HGet(ctx, rs.key("repeat", queue), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRepeatableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load repeatable %q: %w", key, err)
	}
	var job RepeatableJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepeatable, err)
	}
	return &job, nil
}

// ListRepeatables implements RepeatableRepository and SchedulerRepository
func (rs *RedisStorage) ListRepeatables(ctx context.Context, queue string) ([]RepeatableJob, error) {
	all, err := rs.client.HGetAll(ctx, rs.key("repeat", queue)).Result()
	if err != nil {
		return nil, fmt.Errorf("list repeatables of %q: %w", queue, err)
	}

	jobs := make([]RepeatableJob, 0, len(all))
	for key, raw := range all {
		var job RepeatableJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidRepeatable, key, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// RemoveRepeatable implements RepeatableRepository
func (rs *RedisStorage) RemoveRepeatable(ctx context.Context, queue, key string) error {
	n, err := rs.client.HDel(ctx, rs.key("repeat", queue), key).Result()
	if err != nil {
		return fmt.Errorf("remove repeatable %q: %w", key, err)
	}
	if n == 0 {
		return ErrRepeatableNotFound
	}
	return nil
}

// MarkRepeatableFired implements RepeatableRepository and SchedulerRepository
func (rs *RedisStorage) MarkRepeatableFired(ctx context.Context, queue, key string, firedAt time.Time) error {
	job, err := rs.GetRepeatable(ctx, queue, key)
	if err != nil {
		return err
	}
	job.LastFiredAt = &firedAt
	data, err := rs.encodeRepeatable(*job)
	if err != nil {
		return err
	}
	return rs.client.HSet(ctx, rs.key("repeat", queue), key, data).Err()
}

// LoadStep implements Checkpoints
func (rs *RedisStorage) LoadStep(ctx context.Context, taskKey, step string) ([]byte, bool, error) {
	data, err := rs.client.Get(ctx, rs.key("step", taskKey, step)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SaveStep implements Checkpoints
func (rs *RedisStorage) SaveStep(ctx context.Context, taskKey, step string, result []byte) error {
	return rs.client.Set(ctx, rs.key("step", taskKey, step), result, rs.checkpointTTL).Err()
}

// TryLock implements Locker
func (rs *RedisStorage) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	lockKey := rs.key("lock", key)
	token := uuid.NewString()

	ok, err := rs.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		return unlockScript.Run(ctx, rs.client, []string{lockKey}, token).Err()
	}
	return release, true, nil
}

// GetTask implements Inspector
func (rs *RedisStorage) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	return rs.loadTask(ctx, id)
}

// GetTaskByJobID implements Inspector
func (rs *RedisStorage) GetTaskByJobID(ctx context.Context, queue, jobID string) (*Task, error) {
	raw, err := rs.client.Get(ctx, rs.jobIDKey(queue, jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrTaskNotFound
	}
	return rs.loadTask(ctx, id)
}

// Stats implements Inspector
func (rs *RedisStorage) Stats(ctx context.Context, queue string) (QueueStats, error) {
	now := strconv.FormatInt(rs.now().UnixMilli(), 10)

	var (
		ready, due, delayed, active, completed, failed *redis.IntCmd
		repeatable                                     *redis.IntCmd
	)
	_, err := rs.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		ready = p.ZCard(ctx, rs.queueKey(queue, "ready"))
		due = p.ZCount(ctx, rs.queueKey(queue, "delayed"), "-inf", now)
		delayed = p.ZCount(ctx, rs.queueKey(queue, "delayed"), "("+now, "+inf")
		active = p.ZCard(ctx, rs.queueKey(queue, "active"))
		completed = p.ZCard(ctx, rs.queueKey(queue, "completed"))
		failed = p.ZCard(ctx, rs.queueKey(queue, "failed"))
		repeatable = p.HLen(ctx, rs.key("repeat", queue))
		return nil
	})
	if err != nil {
		return QueueStats{}, fmt.Errorf("queue stats for %q: %w", queue, err)
	}

	return QueueStats{
		Queue:      queue,
		Pending:    ready.Val() + due.Val(),
		Delayed:    delayed.Val(),
		Processing: active.Val(),
		Completed:  completed.Val(),
		Failed:     failed.Val(),
		Repeatable: repeatable.Val(),
	}, nil
}

// ListFailed implements Inspector
func (rs *RedisStorage) ListFailed(ctx context.Context, queue string, limit int) ([]TasksDlq, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := rs.client.ZRevRange(ctx, rs.queueKey(queue, "failed"), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed tasks of %q: %w", queue, err)
	}

	out := make([]TasksDlq, 0, len(ids))
	for _, member := range ids {
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		e, err := rs.loadDLQ(ctx, id)
		if errors.Is(err, ErrDLQEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

// RequeueFailed implements Inspector
func (rs *RedisStorage) RequeueFailed(ctx context.Context, queue string, dlqID uuid.UUID) (*Task, error) {
	e, err := rs.loadDLQ(ctx, dlqID)
	if err != nil {
		return nil, err
	}
	if e.Queue != queue {
		return nil, ErrDLQEntryNotFound
	}

	t, err := rs.loadTask(ctx, e.TaskID)
	if errors.Is(err, ErrTaskNotFound) {
		t = &Task{
			ID:        e.TaskID,
			Queue:     e.Queue,
			TaskType:  e.TaskType,
			TaskName:  e.TaskName,
			JobID:     e.JobID,
			Payload:   e.Payload,
			Priority:  e.Priority,
			CreatedAt: e.CreatedAt,
		}
	} else if err != nil {
		return nil, err
	}

	if t.MaxAttempts < 1 {
		t.MaxAttempts = max(e.Attempts, 1)
	}
	now := rs.now()
	t.Status = TaskStatusPending
	t.Attempts = 0
	t.ScheduledAt = now
	t.ProcessedAt = nil
	t.Error = nil

	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", t.ID, err)
	}

	id := t.ID.String()
	_, err = rs.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, rs.dlqKey(dlqID))
		p.ZRem(ctx, rs.queueKey(queue, "failed"), dlqID.String())
		p.Set(ctx, rs.taskKey(t.ID), data, 0)
		p.HSet(ctx, rs.queueKey(queue, "prio"), id, int(t.Priority))
		p.ZAdd(ctx, rs.queueKey(queue, "delayed"), redis.Z{Score: ms(now), Member: id})
		if t.JobID != "" {
			p.Set(ctx, rs.jobIDKey(queue, t.JobID), id, 0)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("requeue dead letter entry %s: %w", dlqID, err)
	}
	return t, nil
}
