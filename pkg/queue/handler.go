package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

type (
	// Handler processes one kind of task. A non-nil result is stored with
	// the completed task for later inspection.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	}

	TaskHandlerFunc[T any]          func(ctx context.Context, payload T) error
	ResultTaskHandlerFunc[T, R any] func(ctx context.Context, payload T) (R, error)
	PeriodicTaskHandlerFunc         func(ctx context.Context) error
)

// NewTaskHandler builds a handler whose name is derived from T (its
// TaskName method, or the qualified struct name).
// The payload is decoded and, when T implements Validatable, validated
// before fn runs. Both failures are permanent.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var payload T
	return &typedTaskHandler[T, struct{}]{
		name: taskNameOf(payload),
		handler: func(ctx context.Context, payload T) (struct{}, error) {
			return struct{}{}, fn(ctx, payload)
		},
	}
}

// NewResultTaskHandler is NewTaskHandler for functions that return a result.
func NewResultTaskHandler[T, R any](fn ResultTaskHandlerFunc[T, R]) Handler {
	var payload T
	return &typedTaskHandler[T, R]{
		name:    taskNameOf(payload),
		handler: fn,
		result:  true,
	}
}

// NewPeriodicTaskHandler builds a handler that ignores the payload.
func NewPeriodicTaskHandler(name string, handler PeriodicTaskHandlerFunc) Handler {
	return &periodicTaskHandler{
		name:    name,
		handler: handler,
	}
}

type typedTaskHandler[T, R any] struct {
	name    string
	handler ResultTaskHandlerFunc[T, R]
	result  bool
}

func (h *typedTaskHandler[T, R]) Name() string {
	return h.name
}

func (h *typedTaskHandler[T, R]) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, Permanent(fmt.Errorf("decode %s payload: %w", h.name, err))
	}
	// &t covers both value and pointer receivers.
	if v, ok := any(&t).(Validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, Permanent(fmt.Errorf("invalid %s payload: %w", h.name, err))
		}
	}

	res, err := h.handler(ctx, t)
	if err != nil {
		return nil, err
	}
	if !h.result {
		return nil, nil
	}

	out, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", h.name, err)
	}
	return out, nil
}

type periodicTaskHandler struct {
	name    string
	handler PeriodicTaskHandlerFunc
}

func (h *periodicTaskHandler) Name() string {
	return h.name
}

func (h *periodicTaskHandler) Handle(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return nil, h.handler(ctx)
}
