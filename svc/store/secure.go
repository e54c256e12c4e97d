package store

import (
	"context"
	"fmt"

	"github.com/indexnowstudio/jobs/pkg/audit"
)

// Operation describes a privileged data access for the audit trail.
type Operation struct {
	Action     string
	Resource   string
	ResourceID string
	Reason     string
}

// Secure runs privileged data access and audits it.
type Secure struct {
	audit *audit.Logger
}

// NewSecure creates the audited data-access wrapper. Every operation is
// recorded through log before it runs.
func NewSecure(log *audit.Logger) *Secure {
	return &Secure{audit: log}
}

// NewAuditLogger builds an audit logger that reads the actor set by WithActor.
func NewAuditLogger(storage audit.Storage, opts ...audit.Option) (*audit.Logger, error) {
	return audit.NewLogger(storage, append([]audit.Option{audit.WithActorExtractor(ActorFromContext)}, opts...)...)
}

// Do records op and then runs fn. Nothing runs when the audit record cannot
// be written. A failing fn is recorded as well.
func (s *Secure) Do(ctx context.Context, op Operation, fn func(ctx context.Context) error) error {
	opts := []audit.EventOption{audit.WithResource(op.Resource, op.ResourceID)}
	if op.Reason != "" {
		opts = append(opts, audit.WithReason(op.Reason))
	}

	if err := s.audit.Log(ctx, op.Action, opts...); err != nil {
		return fmt.Errorf("audit %s: %w", op.Action, err)
	}

	if err := fn(ctx); err != nil {
		// The operation error matters more than a failed error record.
		_ = s.audit.LogError(context.WithoutCancel(ctx), op.Action, err, opts...)
		return err
	}
	return nil
}
