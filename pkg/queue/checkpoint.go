package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Checkpoints records which steps of a task already took effect, so that a
// retried task can skip them. Records are keyed by task ID and survive
// across attempts of the same task. A record may carry the step's result.
type Checkpoints interface {
	LoadStep(ctx context.Context, taskKey, step string) (result []byte, done bool, err error)
	SaveStep(ctx context.Context, taskKey, step string, result []byte) error
}

// Step runs fn unless step is already recorded for the current task, then
// records it. Outside a worker (no task in ctx) or with nil checkpoints fn
// always runs.
func Step(ctx context.Context, cp Checkpoints, step string, fn func(ctx context.Context) error) error {
	_, err := StepResult(ctx, cp, step, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// StepResult is Step for steps that produce a value. The value is stored with
// the checkpoint and returned as is on later attempts, without running fn.
func StepResult[T any](ctx context.Context, cp Checkpoints, step string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	id, ok := TaskIDFromContext(ctx)
	if cp == nil || !ok {
		return fn(ctx)
	}
	key := id.String()

	data, done, err := cp.LoadStep(ctx, key, step)
	if err != nil {
		return zero, fmt.Errorf("check step %q: %w", step, err)
	}
	if done {
		var v T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &v); err != nil {
				return zero, fmt.Errorf("decode step %q: %w", step, err)
			}
		}
		return v, nil
	}

	v, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	data, err = json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("encode step %q: %w", step, err)
	}
	if err := cp.SaveStep(ctx, key, step, data); err != nil {
		return zero, fmt.Errorf("record step %q: %w", step, err)
	}
	return v, nil
}
