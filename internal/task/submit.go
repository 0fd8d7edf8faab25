package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/events"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

// DefaultListLimit caps task listings when the caller passes no limit.
const DefaultListLimit = 50

// Submitter creates tasks on behalf of users and answers their queries.
type Submitter struct {
	tasks   store.TaskStore
	users   store.UserStore
	emitter events.EventEmitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewSubmitter creates a Submitter. emitter may be nil.
func NewSubmitter(
	tasks store.TaskStore,
	users store.UserStore,
	emitter events.EventEmitter,
	logger *slog.Logger,
	opts ...Option,
) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	return &Submitter{
		tasks:   tasks,
		users:   users,
		emitter: emitter,
		logger:  logger.With(slog.String("component", "submitter")),
		now:     o.now,
	}
}

// Submit stores a new QUEUED task in a workspace owned by userID and
// announces it. The task waits for an admission cycle to run it.
func (s *Submitter) Submit(
	ctx context.Context,
	userID, workspaceID uuid.UUID,
	goal string,
	taskType domain.TaskType,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.checkOwner(ctx, userID, workspaceID); err != nil {
		return nil, err
	}

	t, err := domain.NewTask(workspaceID, goal, taskType)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	log.Info("task submitted",
		slog.String("task_id", t.ID.String()),
		slog.String("workspace_id", workspaceID.String()),
		slog.String("task_type", string(t.Type)))

	if s.emitter != nil {
		event, err := events.NewTaskEvent(events.TypeTaskSubmitted, events.TaskSubmitted{
			TaskID:      t.ID,
			WorkspaceID: workspaceID,
			Type:        string(t.Type),
		})
		if err == nil {
			err = s.emitter.EmitEvent(ctx, event)
		}
		if err != nil {
			// The admission schedule still finds the task.
			log.Warn("failed to announce submitted task",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()))
		}
	}
	return t, nil
}

// Get returns a task the user owns. Tasks of other users are reported as
// not found.
func (s *Submitter) Get(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	t, err := s.tasks.GetByID(ctx, taskID)
	if errors.Is(err, store.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, userID, t.WorkspaceID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return t, nil
}

// List returns the newest tasks of a workspace the user owns.
func (s *Submitter) List(ctx context.Context, userID, workspaceID uuid.UUID, limit int) ([]*domain.Task, error) {
	if err := s.checkOwner(ctx, userID, workspaceID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.tasks.ListByWorkspace(ctx, workspaceID, limit)
}

func (s *Submitter) checkOwner(ctx context.Context, userID, workspaceID uuid.UUID) error {
	ws, err := s.users.GetWorkspace(ctx, workspaceID)
	if errors.Is(err, store.ErrWorkspaceNotFound) {
		return fmt.Errorf("%w: %s", ErrWorkspaceAccess, workspaceID)
	}
	if err != nil {
		return err
	}
	if ws.UserID != userID {
		return fmt.Errorf("%w: %s", ErrWorkspaceAccess, workspaceID)
	}
	return nil
}
