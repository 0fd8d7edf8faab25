package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

// Job is the descriptor handed to the execution backend.
type Job struct {
	TaskID uuid.UUID       `json:"task_id"`
	UserID uuid.UUID       `json:"user_id"`
	Type   domain.TaskType `json:"type"`
}

// Dispatcher submits jobs to the execution backend. Submit returns once the
// backend has accepted the job; it does not wait for execution. The backend
// delivers each job at most once.
type Dispatcher interface {
	Submit(ctx context.Context, job Job) error
}

// Handoff passes admitted tasks to a Dispatcher.
type Handoff struct {
	dispatcher Dispatcher
	tasks      store.TaskStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandoff creates a Handoff.
func NewHandoff(dispatcher Dispatcher, tasks store.TaskStore, logger *slog.Logger, opts ...Option) *Handoff {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	return &Handoff{
		dispatcher: dispatcher,
		tasks:      tasks,
		logger:     logger.With(slog.String("component", "handoff")),
		now:        o.now,
	}
}

// Submit dispatches an admitted task on behalf of its owner. If the backend
// refuses the job the task is failed with the reason, and the returned
// error is an *EnqueueError alongside the task as stored. A nil task means
// the failure could not be recorded either. Cancelling ctx aborts the submit
// but not the write that fails the task.
func (h *Handoff) Submit(ctx context.Context, t *domain.Task, ownerID uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, h.logger).With(slog.String("task_id", t.ID.String()))

	job := Job{TaskID: t.ID, UserID: ownerID, Type: t.Type}
	err := h.dispatcher.Submit(ctx, job)
	if err == nil {
		log.Info("task dispatched", slog.String("task_type", string(t.Type)))
		return t, nil
	}

	enqErr := &EnqueueError{TaskID: t.ID, Err: err}
	log.Error("failed to dispatch task", slog.String("error", err.Error()))

	// The task is debited and holds a slot, so the failure is recorded even
	// when ctx was cancelled during the submit.
	ctx = context.WithoutCancel(ctx)

	msg := "Failed to enqueue: " + err.Error()
	failed, ferr := apply(ctx, h.tasks, t.ID, EventFail, h.now(), func(t *domain.Task, _ domain.TaskStatus) {
		t.Error = &msg
	})
	if ferr == nil {
		return failed, enqErr
	}

	if errors.Is(ferr, ErrInvalidState) {
		// A kill got there first; its terminal write stands.
		log.Info("task left running state before dispatch failure was recorded",
			slog.String("reason", ferr.Error()))
		current, gerr := h.tasks.GetByID(ctx, t.ID)
		if gerr == nil {
			return current, enqErr
		}
		ferr = gerr
	}

	log.Error("failed to record dispatch failure", slog.String("error", ferr.Error()))
	return nil, fmt.Errorf("%w (recording failure: %v)", enqErr, ferr)
}
