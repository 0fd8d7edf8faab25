package task

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
)

// ErrInvalidKill is returned when a kill request has no actor or reason.
var ErrInvalidKill = errors.New("kill requires an actor and a reason")

// KillResult describes a completed kill.
type KillResult struct {
	TaskID   uuid.UUID         `json:"taskId"`
	Status   domain.TaskStatus `json:"status"`
	KilledBy string            `json:"killedBy"`
	Reason   string            `json:"reason"`
}

// killDetails is the audit snapshot of a kill.
type killDetails struct {
	TaskID      uuid.UUID         `json:"task_id"`
	OwnerID     *uuid.UUID        `json:"owner_id,omitempty"`
	OwnerEmail  string            `json:"owner_email,omitempty"`
	Reason      string            `json:"reason"`
	PriorStatus domain.TaskStatus `json:"prior_status"`
	KilledAt    time.Time         `json:"killed_at"`
}

// Kill marks a running task FAILED on behalf of an administrator and
// records one TASK_KILLED audit entry. The task's prior result is kept
// inside the kill record.
//
// Kill only rewrites the record; a worker still executing the task is not
// interrupted, and its eventual outcome is discarded. A task that is QUEUED
// or already terminal is left untouched and ErrInvalidState is returned.
func (m *Machine) Kill(ctx context.Context, id uuid.UUID, actor, reason string) (*KillResult, error) {
	actor = strings.TrimSpace(actor)
	reason = strings.TrimSpace(reason)
	if actor == "" || reason == "" {
		return nil, ErrInvalidKill
	}

	log := logger.FromContextOrDefault(ctx, m.logger).With(
		slog.String("task_id", id.String()),
		slog.String("actor", actor))

	now := m.now().UTC()
	var prior domain.TaskStatus
	killed, err := apply(ctx, m.tasks, id, EventKill, now, func(t *domain.Task, from domain.TaskStatus) {
		prior = from
		t.Result = domain.KilledResult(actor, reason, now, t.Result)
		msg := "Killed by administrator: " + reason
		t.Error = &msg
	})
	if err != nil {
		log.Info("kill refused", slog.String("reason", err.Error()))
		return nil, err
	}

	log.Warn("task killed",
		slog.String("prior_status", string(prior)),
		slog.String("kill_reason", reason))

	details := killDetails{
		TaskID:      id,
		Reason:      reason,
		PriorStatus: prior,
		KilledAt:    now,
	}
	owner, err := m.users.GetWorkspaceOwner(ctx, killed.WorkspaceID)
	if err != nil {
		log.Error("failed to resolve task owner for audit", slog.String("error", err.Error()))
	} else {
		details.OwnerID = &owner.ID
		details.OwnerEmail = owner.Email
	}

	// Recording failures are logged by the recorder; the kill stands.
	_, _ = m.recorder.Record(ctx, domain.AuditActionTaskKilled, actor, killed.Target(), details)

	return &KillResult{
		TaskID:   killed.ID,
		Status:   killed.Status,
		KilledBy: actor,
		Reason:   reason,
	}, nil
}
