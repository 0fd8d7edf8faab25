package task

import (
	"context"
	"log/slog"

	"github.com/phrazzld/taskforge/internal/events"
)

// AdmissionEventHandler requests an admission cycle whenever a task is
// submitted, so new work does not wait for the next scheduled cycle.
type AdmissionEventHandler struct {
	trigger interface{ Trigger() bool }
	logger  *slog.Logger
}

// NewAdmissionEventHandler creates a handler that calls trigger.Trigger.
func NewAdmissionEventHandler(trigger interface{ Trigger() bool }, logger *slog.Logger) *AdmissionEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdmissionEventHandler{
		trigger: trigger,
		logger:  logger.With(slog.String("component", "admission_event_handler")),
	}
}

// HandleEvent implements events.EventHandler. Events other than
// task.submitted are ignored.
func (h *AdmissionEventHandler) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	if event.Type != events.TypeTaskSubmitted {
		h.logger.Debug("ignoring event", slog.String("event_type", event.Type))
		return nil
	}

	var payload events.TaskSubmitted
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Warn("malformed task.submitted payload",
			slog.String("event_id", event.ID.String()),
			slog.String("error", err.Error()))
	}

	queued := h.trigger.Trigger()
	h.logger.Debug("admission requested",
		slog.String("event_id", event.ID.String()),
		slog.String("task_id", payload.TaskID.String()),
		slog.Bool("coalesced", !queued))
	return nil
}

// Ensure AdmissionEventHandler implements events.EventHandler
var _ events.EventHandler = (*AdmissionEventHandler)(nil)
