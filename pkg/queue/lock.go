package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Locker grants short-lived advisory locks. TryLock never blocks: ok is
// false when the key is held by someone else. The lock expires after ttl
// even if release is never called.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Exclusive wraps a handler so that only one run per key is in flight
// across all processes sharing the locker. A run that finds the lock held
// is skipped and reported as completed.
//
// The lock never outlives the run's context deadline, which a worker sets
// to its lock timeout, so a crashed run blocks the key no longer than the
// task itself stays claimed. ttl <= 0 means "until the deadline"; without a
// deadline a positive ttl is required.
func Exclusive(locker Locker, key string, ttl time.Duration, next Handler, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &exclusiveHandler{locker: locker, key: key, ttl: ttl, next: next, logger: logger}
}

type exclusiveHandler struct {
	locker Locker
	key    string
	ttl    time.Duration
	next   Handler
	logger *slog.Logger
}

func (h *exclusiveHandler) Name() string {
	return h.next.Name()
}

func (h *exclusiveHandler) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	ttl := h.ttl
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); ttl <= 0 || left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("lock %q: %w", h.key, ErrNoLockTTL)
	}

	release, ok, err := h.locker.TryLock(ctx, h.key, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %q: %w", h.key, err)
	}
	if !ok {
		h.logger.WarnContext(ctx, "previous run still in progress, skipping",
			slog.String("task_name", h.next.Name()),
			slog.String("lock_key", h.key))
		return nil, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			h.logger.ErrorContext(ctx, "failed to release lock",
				slog.String("lock_key", h.key),
				slog.String("error", err.Error()))
		}
	}()

	return h.next.Handle(ctx, payload)
}
