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
	"github.com/phrazzld/taskforge/internal/task"
)

// TaskKiller kills running tasks. *task.Machine implements it.
type TaskKiller interface {
	Kill(ctx context.Context, id uuid.UUID, actor, reason string) (*task.KillResult, error)
}

// Scheduler runs admission cycles and reconciliation sweeps on demand.
// *task.Runner implements it.
type Scheduler interface {
	RunCycle(ctx context.Context) (*task.Admission, error)
	Reconcile(ctx context.Context) []*domain.Task
}

// CreditAdmin grants and audits credits. *ledger.Service implements it.
type CreditAdmin interface {
	Grant(ctx context.Context, userID uuid.UUID, amount int64, reason string) (*domain.CreditEntry, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (ledger.Reconciliation, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CreditEntry, error)
}

// AuditLog records and lists audit entries. *audit.Recorder implements it.
type AuditLog interface {
	Record(ctx context.Context, action, actor, target string, details any) (*domain.AuditEntry, error)
	List(ctx context.Context, target string, limit int) ([]*domain.AuditEntry, error)
}

// AdminHandler serves the administrator routes. Every route expects
// claims with the admin role.
type AdminHandler struct {
	killer    TaskKiller
	scheduler Scheduler
	credits   CreditAdmin
	audit     AuditLog
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	killer TaskKiller,
	scheduler Scheduler,
	credits CreditAdmin,
	audit AuditLog,
	logger *slog.Logger,
) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		killer:    killer,
		scheduler: scheduler,
		credits:   credits,
		audit:     audit,
		logger:    logger.With(slog.String("handler", "admin")),
	}
}

// KillTask handles POST /api/admin/tasks/{id}/kill. It answers 400 when the
// task is not running and 404 when it does not exist.
func (h *AdminHandler) KillTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	var req KillRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.killer.Kill(r.Context(), taskID, actor, req.Reason)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// TriggerAdmission handles POST /api/admin/admissions by running one
// admission cycle and reporting what it admitted.
func (h *AdminHandler) TriggerAdmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	admission, err := h.scheduler.RunCycle(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	resp := NewAdmissionResponse(admission)

	// Recording failures are logged by the recorder.
	_, _ = h.audit.Record(r.Context(), domain.AuditActionAdmissionTriggered, actor,
		domain.AuditTargetOrchestrator, resp)

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// RunReconciliation handles POST /api/admin/reconciliations. The sweep
// fails tasks that stopped reporting; it finds nothing while the
// reconciler is disabled.
func (h *AdminHandler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewReconcileResponse(h.scheduler.Reconcile(r.Context())))
}

// GrantCredits handles POST /api/admin/users/{id}/credits.
func (h *AdminHandler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	userID, err := getPathUUID(r, "id")
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	var req GrantRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	entry, err := h.credits.Grant(r.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_, _ = h.audit.Record(r.Context(), domain.AuditActionCreditsGranted, actor, domain.UserTarget(userID),
		map[string]any{
			"entry_id": entry.ID,
			"amount":   entry.Amount,
			"balance":  entry.Balance,
			"reason":   entry.Reason,
		})

	logger.FromContextOrDefault(r.Context(), h.logger).Info("credits granted by administrator",
		slog.String("actor", actor),
		slog.String("user_id", userID.String()),
		slog.Int64("amount", req.Amount))
	shared.RespondWithJSON(w, r, http.StatusCreated, entry)
}

// GetLedger handles GET /api/admin/users/{id}/ledger.
func (h *AdminHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}
	userID, err := getPathUUID(r, "id")
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	limit, err := getLimit(r)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if limit == 0 {
		limit = task.DefaultListLimit
	}

	rec, err := h.credits.Reconcile(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	entries, err := h.credits.History(r.Context(), userID, limit)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.CreditEntry{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, LedgerResponse{Reconciliation: rec, Entries: entries})
}

// ListAudit handles GET /api/admin/audit. The optional target query
// parameter narrows the listing to one task or user.
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}
	limit, err := getLimit(r)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	entries, err := h.audit.List(r.Context(), r.URL.Query().Get("target"), limit)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.AuditEntry{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, AuditResponse{Entries: entries})
}

func (h *AdminHandler) requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := shared.GetClaims(r.Context())
	if !ok || !claims.IsAdmin() {
		shared.RespondWithError(w, r, http.StatusForbidden, "Administrator access required")
		return "", false
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusForbidden, "Administrator token has no subject")
		return "", false
	}
	return actor, true
}
