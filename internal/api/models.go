package api

import (
	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/ledger"
	"github.com/phrazzld/taskforge/internal/task"
)

// SubmitTaskRequest defines the payload for submitting a task.
type SubmitTaskRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required,uuid"`
	Goal        string `json:"goal"         validate:"required,max=4000"`
	// Type is one of IMAGE, CODING, MIXED or USER, in any case.
	Type string `json:"type" validate:"required"`
}

// TaskListResponse wraps a page of tasks.
type TaskListResponse struct {
	Tasks []*domain.Task `json:"tasks"`
}

// KillRequest defines the payload for killing a task.
type KillRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// GrantRequest defines the payload for granting credits to a user.
type GrantRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=200"`
}

// AdmissionResponse reports the outcome of a manually triggered admission
// cycle. Admitted is false when the cycle claimed nothing.
type AdmissionResponse struct {
	Admitted bool              `json:"admitted"`
	TaskID   *uuid.UUID        `json:"task_id,omitempty"`
	Outcome  string            `json:"outcome,omitempty"`
	Status   domain.TaskStatus `json:"status,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ReconcileResponse lists the tasks a reconciliation sweep abandoned.
type ReconcileResponse struct {
	Abandoned int         `json:"abandoned"`
	TaskIDs   []uuid.UUID `json:"task_ids"`
}

// NewAdmissionResponse reports the outcome of one admission cycle. A nil
// admission means nothing was queued or the cap was full.
func NewAdmissionResponse(admission *task.Admission) AdmissionResponse {
	resp := AdmissionResponse{}
	if admission == nil {
		return resp
	}
	resp.Admitted = true
	resp.TaskID = &admission.Task.ID
	resp.Outcome = string(admission.Outcome)
	resp.Status = admission.Task.Status
	if admission.Err != nil {
		resp.Error = admission.Task.ErrorMessage()
	}
	return resp
}

// NewReconcileResponse lists the IDs of the abandoned tasks.
func NewReconcileResponse(abandoned []*domain.Task) ReconcileResponse {
	resp := ReconcileResponse{Abandoned: len(abandoned), TaskIDs: make([]uuid.UUID, 0, len(abandoned))}
	for _, t := range abandoned {
		resp.TaskIDs = append(resp.TaskIDs, t.ID)
	}
	return resp
}

// LedgerResponse is an administrator's view of a user's credits.
type LedgerResponse struct {
	Reconciliation ledger.Reconciliation `json:"reconciliation"`
	Entries        []*domain.CreditEntry `json:"entries"`
}

// AuditResponse wraps a page of audit entries.
type AuditResponse struct {
	Entries []*domain.AuditEntry `json:"entries"`
}
