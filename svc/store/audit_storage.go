package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/indexnowstudio/jobs/pkg/audit"
)

// AuditStorage persists audit events into job_audit_logs.
type AuditStorage struct {
	db DB
}

// NewAuditStorage stores audit events in job_audit_logs.
func NewAuditStorage(db DB) *AuditStorage {
	return &AuditStorage{db: db}
}

const insertAuditLog = `INSERT INTO job_audit_logs
	(id, actor, action, resource, resource_id, reason, result, error, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Store implements audit.Storage.
func (s *AuditStorage) Store(ctx context.Context, events ...audit.Event) error {
	for _, e := range events {
		var metadata []byte
		if len(e.Metadata) > 0 {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("encode audit metadata: %w", err)
			}
			metadata = raw
		}

		if _, err := s.db.Exec(ctx, insertAuditLog,
			e.ID, e.Actor, e.Action, e.Resource, e.ResourceID, e.Reason,
			string(e.Result), e.Error, metadata, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert audit log: %w", err)
		}
	}
	return nil
}
