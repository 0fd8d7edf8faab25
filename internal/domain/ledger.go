package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReasonTaskExecution is the ledger reason recorded when a task is admitted.
const ReasonTaskExecution = "Task execution"

// CreditEntry is an immutable credit ledger row. Amount is negative for
// debits and positive for grants; Balance is the user's balance after the
// entry was applied.
type CreditEntry struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Amount    int64      `json:"amount"`
	Balance   int64      `json:"balance"`
	Reason    string     `json:"reason"`
	TaskID    *uuid.UUID `json:"task_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Audit actions.
const (
	AuditActionTaskKilled         = "TASK_KILLED"
	AuditActionCreditsGranted     = "CREDITS_GRANTED"
	AuditActionTaskReconciled     = "TASK_RECONCILED"
	AuditActionAdmissionTriggered = "ADMISSION_TRIGGERED"
)

// AuditTargetOrchestrator is the target of actions on the scheduler itself
// rather than on one task or user.
const AuditTargetOrchestrator = "orchestrator"

// AuditEntry is an immutable record of an administrative or system action.
type AuditEntry struct {
	ID        uuid.UUID       `json:"id"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor"`
	Target    string          `json:"target"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}
