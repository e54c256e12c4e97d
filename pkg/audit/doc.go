// Package audit records who performed which privileged operation on which
// resource. Events are built by Logger from context and persisted by a
// Storage; svc/store provides the Postgres one.
package audit
