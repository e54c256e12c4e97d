package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SystemActor is recorded when the context carries no actor.
const SystemActor = "system:worker"

// Logger builds audit events from context and hands them to a Storage.
type Logger struct {
	storage        Storage
	actorExtractor func(context.Context) (string, bool)
	now            func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithActorExtractor sets how the acting principal is read from context.
func WithActorExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) { l.actorExtractor = fn }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLogger creates an audit logger writing to storage.
func NewLogger(storage Storage, opts ...Option) (*Logger, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	l := &Logger{storage: storage, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Log records a successful (or about to be performed) action.
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	return l.store(ctx, l.newEvent(ctx, action, ResultSuccess, opts))
}

// LogError records a failed action.
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	event := l.newEvent(ctx, action, ResultError, opts)
	if err != nil {
		event.Error = err.Error()
	}
	return l.store(ctx, event)
}

func (l *Logger) newEvent(ctx context.Context, action string, result Result, opts []EventOption) Event {
	event := Event{
		ID:        uuid.New(),
		Actor:     SystemActor,
		Action:    action,
		Result:    result,
		CreatedAt: l.now().UTC(),
	}
	if l.actorExtractor != nil {
		if actor, ok := l.actorExtractor(ctx); ok && actor != "" {
			event.Actor = actor
		}
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}

func (l *Logger) store(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, event)
}
