package task

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
)

// Advance moves a PLANNING task to EXECUTING and stores plan as its
// partial result.
func (m *Machine) Advance(ctx context.Context, id uuid.UUID, plan json.RawMessage) (*domain.Task, error) {
	return m.resolve(ctx, id, EventAdvance, func(t *domain.Task, _ domain.TaskStatus) {
		if len(plan) > 0 {
			t.Result = domain.PartialResult(plan)
		}
	})
}

// Succeed records the output of a running task and marks it SUCCEEDED.
func (m *Machine) Succeed(ctx context.Context, id uuid.UUID, output json.RawMessage) (*domain.Task, error) {
	return m.resolve(ctx, id, EventSucceed, func(t *domain.Task, _ domain.TaskStatus) {
		t.Result = domain.OutputResult(output)
		t.Error = nil
	})
}

// Fail marks a running task FAILED with a human-readable message. A partial
// result is kept for inspection.
func (m *Machine) Fail(ctx context.Context, id uuid.UUID, message string) (*domain.Task, error) {
	return m.resolve(ctx, id, EventFail, func(t *domain.Task, _ domain.TaskStatus) {
		t.Error = &message
	})
}

func (m *Machine) resolve(
	ctx context.Context,
	id uuid.UUID,
	event Event,
	edit func(t *domain.Task, from domain.TaskStatus),
) (*domain.Task, error) {
	updated, err := apply(ctx, m.tasks, id, event, m.now(), edit)
	if err != nil {
		logger.FromContextOrDefault(ctx, m.logger).Info("lifecycle event refused",
			slog.String("task_id", id.String()),
			slog.String("event", string(event)),
			slog.String("reason", err.Error()))
		return nil, err
	}

	logger.FromContextOrDefault(ctx, m.logger).Info("task transitioned",
		slog.String("task_id", id.String()),
		slog.String("event", string(event)),
		slog.String("status", string(updated.Status)))
	return updated, nil
}
