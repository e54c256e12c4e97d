package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrPayloadMarshal is returned when payload marshaling fails
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")

	// ErrTaskCreate is returned when task creation in storage fails
	ErrTaskCreate = errors.New("failed to create task in storage")

	// ErrInvalidPriority is returned when priority is outside valid range
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrHandlerNotFound is returned when no handler is registered for a task
	ErrHandlerNotFound = errors.New("no handler registered for task type")

	// ErrNoHandlers is returned when worker has no handlers registered
	ErrNoHandlers = errors.New("no task handlers registered")

	// ErrInvalidSchedule is returned when schedule format is invalid
	ErrInvalidSchedule = errors.New("invalid schedule format")

	// ErrSchedulerNotConfigured is returned when scheduler has no queues to watch
	ErrSchedulerNotConfigured = errors.New("scheduler has no queues to watch")

	// ErrNoTaskToClaim is returned by storages when no task is ready
	ErrNoTaskToClaim = errors.New("no task available to claim")

	// ErrTaskNotFound is returned when a task does not exist in storage
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotProcessing is returned when a state transition requires a claimed task
	ErrTaskNotProcessing = errors.New("task is not in processing state")

	// ErrDuplicateJob is returned when a task with the same job ID already exists
	ErrDuplicateJob = errors.New("task with this job id already exists")

	// ErrRepeatableNotFound is returned when a repeatable registration is missing
	ErrRepeatableNotFound = errors.New("repeatable job not found")

	// ErrInvalidRepeatable is returned when a repeatable registration is malformed
	ErrInvalidRepeatable = errors.New("invalid repeatable job")

	// ErrDLQEntryNotFound is returned when a dead-letter entry does not exist
	ErrDLQEntryNotFound = errors.New("dead letter entry not found")

	// ErrNoLockTTL is returned by Exclusive when neither a ttl nor a context
	// deadline bounds the lock
	ErrNoLockTTL = errors.New("exclusive lock needs a ttl or a context deadline")

	// ErrPermanent marks failures that must not be retried
	ErrPermanent = errors.New("permanent task failure")
)

// permanentError keeps the original error chain intact while tagging it as
// non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }

// Permanent marks err as non-retryable. A worker moves a task that fails with
// a permanent error straight to the dead letter queue.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
