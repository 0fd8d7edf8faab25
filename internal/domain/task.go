package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values. PLANNING and EXECUTING are the two phases of
// a running task; SUCCEEDED and FAILED are terminal.
const (
	TaskStatusQueued    TaskStatus = "QUEUED"
	TaskStatusPlanning  TaskStatus = "PLANNING"
	TaskStatusExecuting TaskStatus = "EXECUTING"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// RunningStatuses lists every status counted against the concurrency cap.
var RunningStatuses = []TaskStatus{TaskStatusPlanning, TaskStatusExecuting}

// TerminalStatuses lists the statuses a task never leaves.
var TerminalStatuses = []TaskStatus{TaskStatusSucceeded, TaskStatusFailed}

// IsRunning reports whether the status is one of the running phases.
func (s TaskStatus) IsRunning() bool {
	return s == TaskStatusPlanning || s == TaskStatusExecuting
}

// IsTerminal reports whether the status is final.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Valid reports whether the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusPlanning, TaskStatusExecuting,
		TaskStatusSucceeded, TaskStatusFailed:
		return true
	}
	return false
}

// TaskType classifies the kind of agent job a task represents.
type TaskType string

// Possible task types.
const (
	TaskTypeImage  TaskType = "IMAGE"
	TaskTypeCoding TaskType = "CODING"
	TaskTypeMixed  TaskType = "MIXED"
	TaskTypeUser   TaskType = "USER"
)

// Valid reports whether the type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeImage, TaskTypeCoding, TaskTypeMixed, TaskTypeUser:
		return true
	}
	return false
}

// ParseTaskType converts user input into a TaskType, ignoring case.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskType, s)
	}
	return t, nil
}

// Task is a unit of user-submitted agent work. It belongs to exactly one
// workspace and is billed to that workspace's owner.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	WorkspaceID uuid.UUID  `json:"workspace_id"`
	Goal        string     `json:"goal"`
	Type        TaskType   `json:"type"`
	Status      TaskStatus `json:"status"`
	CreditsUsed int64      `json:"credits_used"`
	Error       *string    `json:"error,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask creates a QUEUED task for the given workspace.
// Returns an error if validation fails.
func NewTask(workspaceID uuid.UUID, goal string, taskType TaskType) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Goal:        strings.TrimSpace(goal),
		Type:        taskType,
		Status:      TaskStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks field values and the lifecycle invariants: started_at is
// set iff the task has left QUEUED, completed_at is set iff it is terminal.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil || t.WorkspaceID == uuid.Nil {
		return ErrInvalidID
	}
	if t.Goal == "" {
		return ErrEmptyGoal
	}
	if !t.Type.Valid() {
		return ErrInvalidTaskType
	}
	if !t.Status.Valid() {
		return ErrInvalidTaskStatus
	}
	if t.CreditsUsed < 0 {
		return ErrNegativeCredits
	}
	if (t.Status != TaskStatusQueued) != (t.StartedAt != nil) {
		return fmt.Errorf("%w: status %s, started_at set=%t",
			ErrInvalidTimestamps, t.Status, t.StartedAt != nil)
	}
	if t.Status.IsTerminal() != (t.CompletedAt != nil) {
		return fmt.Errorf("%w: status %s, completed_at set=%t",
			ErrInvalidTimestamps, t.Status, t.CompletedAt != nil)
	}
	if t.Result != nil {
		if err := t.Result.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ErrorMessage returns the task's failure message, or "" if none.
func (t *Task) ErrorMessage() string {
	if t.Error == nil {
		return ""
	}
	return *t.Error
}

// Target returns the audit target identifier for the task.
func (t *Task) Target() string {
	return TaskTarget(t.ID)
}

// TaskTarget formats an audit target for a task ID.
func TaskTarget(id uuid.UUID) string {
	return "task:" + id.String()
}
