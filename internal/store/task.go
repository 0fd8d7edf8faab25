package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
)

// TaskMutation edits a task in place. It receives a copy of the stored row
// whose status has already been checked against the expected set. Returning
// an error aborts the update.
type TaskMutation func(t *domain.Task) error

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create saves a new task.
	// Returns validation errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListByWorkspace returns the most recent tasks of a workspace, newest first.
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]*domain.Task, error)

	// FindOldest returns the task with the given status that was created
	// first, ties broken by ID. Returns ErrTaskNotFound if none exists.
	FindOldest(ctx context.Context, status domain.TaskStatus) (*domain.Task, error)

	// CountByStatus counts tasks whose status is any of statuses.
	CountByStatus(ctx context.Context, statuses ...domain.TaskStatus) (int, error)

	// CountByOwner counts the tasks of every workspace owned by userID,
	// grouped by status. Statuses with no tasks are absent from the map.
	CountByOwner(ctx context.Context, userID uuid.UUID) (map[domain.TaskStatus]int, error)

	// Claim atomically moves a QUEUED task to PLANNING and stamps started_at,
	// provided fewer than maxRunning tasks are running at that moment.
	// Concurrent claims are serialized, so the running count never exceeds
	// maxRunning. Returns a *ConflictError if the task is no longer QUEUED
	// and ErrCapacityReached if the cap is full.
	Claim(ctx context.Context, id uuid.UUID, startedAt time.Time, maxRunning int) (*domain.Task, error)

	// CompareAndUpdate applies mutate to the task only if its stored status
	// is one of expected at the moment of the write. The mutated task is
	// validated before it is written. Returns a *ConflictError if the
	// status did not match, or ErrTaskNotFound.
	CompareAndUpdate(
		ctx context.Context,
		id uuid.UUID,
		expected []domain.TaskStatus,
		mutate TaskMutation,
	) (*domain.Task, error)

	// ListStale returns tasks in any of statuses whose updated_at is before
	// cutoff, oldest first.
	ListStale(ctx context.Context, statuses []domain.TaskStatus, cutoff time.Time) ([]*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
