package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultError   Result = "error"
)

// Event is a single audit log entry.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Result     Result         `json:"result"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Validate checks the fields every stored event needs.
func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	if e.Actor == "" {
		return fmt.Errorf("%w: actor is required", ErrEventValidation)
	}
	return nil
}

// EventOption customises an event before it is stored.
type EventOption func(*Event)

// Storage persists audit events.
type Storage interface {
	Store(ctx context.Context, events ...Event) error
}

func WithResource(resource, id string) EventOption {
	return func(e *Event) {
		e.Resource = resource
		e.ResourceID = id
	}
}

// WithReason records why a privileged operation was performed.
func WithReason(reason string) EventOption {
	return func(e *Event) { e.Reason = reason }
}

func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}
