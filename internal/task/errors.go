package task

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
)

var (
	// ErrNotFound is returned when the task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidState is returned when an event is not allowed from the
	// task's current status. Nothing is written.
	ErrInvalidState = errors.New("invalid task state for operation")

	// ErrClaimConflict reports that another admission cycle claimed the task
	// first. AdmitNext never returns it; the cycle yields no admission.
	ErrClaimConflict = errors.New("task claimed by a concurrent admission")

	// ErrEnqueue is returned when the execution backend refuses a job.
	ErrEnqueue = errors.New("failed to enqueue task")

	// ErrWorkspaceAccess is returned when a user acts on a workspace they do
	// not own.
	ErrWorkspaceAccess = errors.New("workspace not owned by user")
)

// TransitionError reports an event that the state machine refused.
type TransitionError struct {
	TaskID uuid.UUID
	From   domain.TaskStatus
	Event  Event
}

// Error implements the error interface for TransitionError.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot %s from %s", e.TaskID, e.Event, e.From)
}

// Unwrap returns ErrInvalidState so callers can match with errors.Is.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidState
}

// EnqueueError wraps a dispatch failure for a task.
type EnqueueError struct {
	TaskID uuid.UUID
	Err    error
}

// Error implements the error interface for EnqueueError.
func (e *EnqueueError) Error() string {
	return fmt.Sprintf("enqueue task %s: %v", e.TaskID, e.Err)
}

// Is reports ErrEnqueue as a match.
func (e *EnqueueError) Is(target error) bool {
	return target == ErrEnqueue
}

// Unwrap returns the dispatcher's error.
func (e *EnqueueError) Unwrap() error {
	return e.Err
}
