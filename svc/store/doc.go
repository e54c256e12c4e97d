// Package store holds the Postgres repositories used by the job workers.
// The business tables belong to the main application; this package only
// reads and updates them. Writes run through Secure, which audits every
// privileged operation into job_audit_logs before executing it.
//
//	auditLog, _ := store.NewAuditLogger(store.NewAuditStorage(pool))
//	repo := store.NewRepository(pool, store.NewSecure(auditLog))
//
//	ctx = store.WithActor(ctx, "system:auto-cancel")
//	changed, err := repo.CancelTransaction(ctx, id, time.Now())
package store
