package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/api/shared"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/ledger"
	"github.com/phrazzld/taskforge/internal/platform/logger"
)

// TaskService is the user-facing task API. *task.Submitter implements it.
type TaskService interface {
	Submit(ctx context.Context, userID, workspaceID uuid.UUID, goal string, taskType domain.TaskType) (*domain.Task, error)
	Get(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error)
	List(ctx context.Context, userID, workspaceID uuid.UUID, limit int) ([]*domain.Task, error)
}

// UsageReporter summarizes a user's credits. *ledger.Service implements it.
type UsageReporter interface {
	Usage(ctx context.Context, userID uuid.UUID) (ledger.UsageSummary, error)
}

// TaskHandler serves the routes of authenticated users.
type TaskHandler struct {
	tasks  TaskService
	usage  UsageReporter
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskService, usage UsageReporter, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		tasks:  tasks,
		usage:  usage,
		logger: logger.With(slog.String("handler", "task")),
	}
}

// SubmitTask handles POST /api/tasks.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req SubmitTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	taskType, err := domain.ParseTaskType(req.Type)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	t, err := h.tasks.Submit(r.Context(), userID, uuid.MustParse(req.WorkspaceID), req.Goal, taskType)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Debug("task accepted",
		slog.String("task_id", t.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, t)
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	t, err := h.tasks.Get(r.Context(), userID, taskID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// ListTasks handles GET /api/workspaces/{id}/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	workspaceID, err := getPathUUID(r, "id")
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	limit, err := getLimit(r)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	tasks, err := h.tasks.List(r.Context(), userID, workspaceID, limit)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasks})
}

// GetUsage handles GET /api/usage.
func (h *TaskHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	summary, err := h.usage.Usage(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}
