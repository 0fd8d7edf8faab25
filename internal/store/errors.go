package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrUserNotFound, ErrTaskNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a user with the same email).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStatusConflict is returned by conditional task updates when the
	// stored status is not one of the expected statuses.
	ErrStatusConflict = errors.New("task status changed concurrently")

	// ErrCapacityReached is returned by Claim when the number of running
	// tasks has already reached the cap.
	ErrCapacityReached = errors.New("running task capacity reached")

	// ErrInsufficientBalance is returned by a conditional debit when the
	// balance is lower than the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Entity-specific "not found" errors

	// ErrUserNotFound indicates that the requested user does not exist in the store.
	ErrUserNotFound = fmt.Errorf("%w: user", ErrNotFound)

	// ErrWorkspaceNotFound indicates that the requested workspace does not exist in the store.
	ErrWorkspaceNotFound = fmt.Errorf("%w: workspace", ErrNotFound)

	// ErrTaskNotFound indicates that the requested task does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrEmailExists indicates that a user with the given email already exists.
	ErrEmailExists = fmt.Errorf("%w: email", ErrDuplicate)

	// ErrTaskAlreadyCharged indicates that a ledger row already references
	// the task. A task is debited at most once.
	ErrTaskAlreadyCharged = fmt.Errorf("%w: ledger entry for task", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// ConflictError reports a lost compare-and-swap on a task's status. Current
// is the status observed when the conditional update was refused.
type ConflictError struct {
	TaskID  uuid.UUID
	Current domain.TaskStatus
}

// Error implements the error interface for ConflictError.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s: %s (current status %s)", e.TaskID, ErrStatusConflict, e.Current)
}

// Unwrap returns ErrStatusConflict so callers can match with errors.Is.
func (e *ConflictError) Unwrap() error {
	return ErrStatusConflict
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "task", "credit_history")
	Operation string // The operation that failed (e.g., "claim", "debit")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
