package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Storage in process memory. It is meant for tests
// and local development: nothing survives a restart and nothing is shared
// between processes.
type MemoryStorage struct {
	mu          sync.Mutex
	tasks       map[uuid.UUID]*Task
	dlq         map[uuid.UUID]*TasksDlq
	jobIDs      map[string]uuid.UUID
	repeatables map[string]map[string]RepeatableJob
	steps       map[string]stepRecord
	locks       map[string]memoryLock

	retention     RetentionPolicy
	checkpointTTL time.Duration
	now           func() time.Time
}

type stepRecord struct {
	result []byte
	at     time.Time
}

type memoryLock struct {
	token     uuid.UUID
	expiresAt time.Time
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage(opts ...StorageOption) *MemoryStorage {
	o := defaultStorageOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &MemoryStorage{
		tasks:         make(map[uuid.UUID]*Task),
		dlq:           make(map[uuid.UUID]*TasksDlq),
		jobIDs:        make(map[string]uuid.UUID),
		repeatables:   make(map[string]map[string]RepeatableJob),
		steps:         make(map[string]stepRecord),
		locks:         make(map[string]memoryLock),
		retention:     o.retention,
		checkpointTTL: o.checkpointTTL,
		now:           o.now,
	}
}

func jobIDKey(queue, jobID string) string {
	return queue + "\x00" + jobID
}

func cloneTask(t *Task) *Task {
	c := *t
	return &c
}

// CreateTask implements EnqueuerRepository and SchedulerRepository
func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}

	if task.JobID != "" {
		key := jobIDKey(task.Queue, task.JobID)
		if id, ok := ms.jobIDs[key]; ok {
			if _, alive := ms.tasks[id]; alive {
				return ErrDuplicateJob
			}
		}
		ms.jobIDs[key] = task.ID
	}

	ms.tasks[task.ID] = cloneTask(task)
	return nil
}

// ClaimTask implements WorkerRepository. Tasks whose lock expired are
// claimable again.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if !slices.Contains(queues, t.Queue) || !claimable(t, now) {
			continue
		}
		if best == nil || claimsBefore(t, best) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockedUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockedUntil
	best.LockedBy = &workerID
	best.Attempts++

	return cloneTask(best), nil
}

func claimable(t *Task, now time.Time) bool {
	switch t.Status {
	case TaskStatusPending:
		return !t.ScheduledAt.After(now)
	case TaskStatusProcessing:
		return t.LockedUntil != nil && t.LockedUntil.Before(now)
	}
	return false
}

// claimsBefore orders by priority (high first), then schedule time, then creation.
func claimsBefore(a, b *Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (ms *MemoryStorage) processingTask(taskID uuid.UUID) (*Task, error) {
	t, ok := ms.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if t.Status != TaskStatusProcessing {
		return nil, ErrTaskNotProcessing
	}
	return t, nil
}

// CompleteTask implements WorkerRepository
func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID, result json.RawMessage) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processingTask(taskID)
	if err != nil {
		return err
	}

	now := ms.now()
	t.Status = TaskStatusCompleted
	t.ProcessedAt = &now
	t.LockedUntil = nil
	t.LockedBy = nil
	t.Error = nil
	t.Result = result

	ms.trimCompleted(t.Queue, now)
	return nil
}

// RetryTask implements WorkerRepository
func (ms *MemoryStorage) RetryTask(_ context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processingTask(taskID)
	if err != nil {
		return err
	}

	t.Status = TaskStatusPending
	t.ScheduledAt = retryAt
	t.LockedUntil = nil
	t.LockedBy = nil
	t.Error = &errorMsg
	return nil
}

// MoveToDLQ implements WorkerRepository
func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID, errorMsg string, permanent bool) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processingTask(taskID)
	if err != nil {
		return err
	}

	now := ms.now()
	t.Status = TaskStatusFailed
	t.ProcessedAt = &now
	t.LockedUntil = nil
	t.LockedBy = nil
	t.Error = &errorMsg

	entry := &TasksDlq{
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
	ms.dlq[entry.ID] = entry

	ms.trimFailed(t.Queue, now)
	return nil
}

// trimCompleted enforces the completed-task retention of a queue.
func (ms *MemoryStorage) trimCompleted(queue string, now time.Time) {
	var done []*Task
	for _, t := range ms.tasks {
		if t.Queue == queue && t.Status == TaskStatusCompleted {
			done = append(done, t)
		}
	}
	slices.SortFunc(done, func(a, b *Task) int {
		return b.ProcessedAt.Compare(*a.ProcessedAt)
	})

	r := ms.retention
	for i, t := range done {
		tooOld := r.CompletedMaxAge > 0 && now.Sub(*t.ProcessedAt) > r.CompletedMaxAge
		tooMany := r.CompletedMaxCount > 0 && i >= r.CompletedMaxCount
		if tooOld || tooMany {
			ms.dropTask(t)
		}
	}
}

// trimFailed drops dead-letter entries and failed tasks past their retention.
func (ms *MemoryStorage) trimFailed(queue string, now time.Time) {
	maxAge := ms.retention.FailedMaxAge
	if maxAge <= 0 {
		return
	}
	for id, e := range ms.dlq {
		if e.Queue == queue && now.Sub(e.FailedAt) > maxAge {
			delete(ms.dlq, id)
			if t, ok := ms.tasks[e.TaskID]; ok && t.Status == TaskStatusFailed {
				ms.dropTask(t)
			}
		}
	}
}

func (ms *MemoryStorage) dropTask(t *Task) {
	delete(ms.tasks, t.ID)
	if t.JobID != "" {
		key := jobIDKey(t.Queue, t.JobID)
		if ms.jobIDs[key] == t.ID {
			delete(ms.jobIDs, key)
		}
	}
	prefix := t.ID.String() + "\x00"
	for k := range ms.steps {
		if strings.HasPrefix(k, prefix) {
			delete(ms.steps, k)
		}
	}
}

// SaveRepeatable implements RepeatableRepository
func (ms *MemoryStorage) SaveRepeatable(_ context.Context, job RepeatableJob) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	byKey := ms.repeatablesOf(job.Queue)
	if prev, ok := byKey[job.Key]; ok && job.LastFiredAt == nil {
		job.LastFiredAt = prev.LastFiredAt
	}
	byKey[job.Key] = job
	return nil
}

// AddRepeatable implements RepeatableRepository
func (ms *MemoryStorage) AddRepeatable(_ context.Context, job RepeatableJob) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	byKey := ms.repeatablesOf(job.Queue)
	if _, ok := byKey[job.Key]; ok {
		return false, nil
	}
	byKey[job.Key] = job
	return true, nil
}

func (ms *MemoryStorage) repeatablesOf(queue string) map[string]RepeatableJob {
	byKey, ok := ms.repeatables[queue]
	if !ok {
		byKey = make(map[string]RepeatableJob)
		ms.repeatables[queue] = byKey
	}
	return byKey
}

// GetRepeatable implements RepeatableRepository
func (ms *MemoryStorage) GetRepeatable(_ context.Context, queue, key string) (*RepeatableJob, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.repeatables[queue][key]
	if !ok {
		return nil, ErrRepeatableNotFound
	}
	return &job, nil
}

// ListRepeatables implements RepeatableRepository and SchedulerRepository
func (ms *MemoryStorage) ListRepeatables(_ context.Context, queue string) ([]RepeatableJob, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	jobs := make([]RepeatableJob, 0, len(ms.repeatables[queue]))
	for _, job := range ms.repeatables[queue] {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b RepeatableJob) int {
		return strings.Compare(a.Key, b.Key)
	})
	return jobs, nil
}

// RemoveRepeatable implements RepeatableRepository
func (ms *MemoryStorage) RemoveRepeatable(_ context.Context, queue, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.repeatables[queue][key]; !ok {
		return ErrRepeatableNotFound
	}
	delete(ms.repeatables[queue], key)
	return nil
}

// MarkRepeatableFired implements RepeatableRepository and SchedulerRepository
func (ms *MemoryStorage) MarkRepeatableFired(_ context.Context, queue, key string, firedAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.repeatables[queue][key]
	if !ok {
		return ErrRepeatableNotFound
	}
	job.LastFiredAt = &firedAt
	ms.repeatables[queue][key] = job
	return nil
}

// LoadStep implements Checkpoints
func (ms *MemoryStorage) LoadStep(_ context.Context, taskKey, step string) ([]byte, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, ok := ms.steps[taskKey+"\x00"+step]
	if !ok || ms.now().Sub(rec.at) > ms.checkpointTTL {
		return nil, false, nil
	}
	return rec.result, true, nil
}

// SaveStep implements Checkpoints
func (ms *MemoryStorage) SaveStep(_ context.Context, taskKey, step string, result []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.steps[taskKey+"\x00"+step] = stepRecord{result: result, at: ms.now()}
	return nil
}

// TryLock implements Locker
func (ms *MemoryStorage) TryLock(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	if l, held := ms.locks[key]; held && l.expiresAt.After(now) {
		return nil, false, nil
	}

	token := uuid.New()
	ms.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}

	release := func(context.Context) error {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		if l, ok := ms.locks[key]; ok && l.token == token {
			delete(ms.locks, key)
		}
		return nil
	}
	return release, true, nil
}

// GetTask implements Inspector
func (ms *MemoryStorage) GetTask(_ context.Context, id uuid.UUID) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// GetTaskByJobID implements Inspector
func (ms *MemoryStorage) GetTaskByJobID(_ context.Context, queue, jobID string) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	id, ok := ms.jobIDs[jobIDKey(queue, jobID)]
	if !ok {
		return nil, ErrTaskNotFound
	}
	t, ok := ms.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// Stats implements Inspector
func (ms *MemoryStorage) Stats(_ context.Context, queue string) (QueueStats, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	stats := QueueStats{Queue: queue, Repeatable: int64(len(ms.repeatables[queue]))}
	for _, t := range ms.tasks {
		if t.Queue != queue {
			continue
		}
		switch t.Status {
		case TaskStatusPending:
			if t.ScheduledAt.After(now) {
				stats.Delayed++
			} else {
				stats.Pending++
			}
		case TaskStatusProcessing:
			stats.Processing++
		case TaskStatusCompleted:
			stats.Completed++
		}
	}
	for _, e := range ms.dlq {
		if e.Queue == queue {
			stats.Failed++
		}
	}
	return stats, nil
}

// ListFailed implements Inspector
func (ms *MemoryStorage) ListFailed(_ context.Context, queue string, limit int) ([]TasksDlq, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var out []TasksDlq
	for _, e := range ms.dlq {
		if e.Queue == queue {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b TasksDlq) int {
		return b.FailedAt.Compare(a.FailedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RequeueFailed implements Inspector
func (ms *MemoryStorage) RequeueFailed(_ context.Context, queue string, dlqID uuid.UUID) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.dlq[dlqID]
	if !ok || e.Queue != queue {
		return nil, ErrDLQEntryNotFound
	}
	delete(ms.dlq, dlqID)

	t, ok := ms.tasks[e.TaskID]
	if !ok {
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
		ms.tasks[t.ID] = t
		if t.JobID != "" {
			ms.jobIDs[jobIDKey(t.Queue, t.JobID)] = t.ID
		}
	}

	if t.MaxAttempts < 1 {
		t.MaxAttempts = max(e.Attempts, 1)
	}
	t.Status = TaskStatusPending
	t.Attempts = 0
	t.ScheduledAt = ms.now()
	t.ProcessedAt = nil
	t.Error = nil

	return cloneTask(t), nil
}
