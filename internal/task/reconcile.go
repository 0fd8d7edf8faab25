package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/taskforge/internal/audit"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

// SystemActor is the audit actor of actions the orchestrator takes on its own.
const SystemActor = "system"

// Reconciler fails running tasks whose worker stopped reporting. A task is
// stale when it has made no recorded progress for longer than staleAfter.
// Stale tasks are failed, never re-queued: they have already been debited.
type Reconciler struct {
	tasks      store.TaskStore
	machine    *Machine
	recorder   *audit.Recorder
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewReconciler creates a Reconciler. A zero staleAfter disables sweeping.
func NewReconciler(
	tasks store.TaskStore,
	machine *Machine,
	recorder *audit.Recorder,
	staleAfter time.Duration,
	logger *slog.Logger,
	opts ...Option,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	return &Reconciler{
		tasks:      tasks,
		machine:    machine,
		recorder:   recorder,
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("component", "reconciler")),
		now:        o.now,
	}
}

// Enabled reports whether sweeps do anything.
func (r *Reconciler) Enabled() bool {
	return r.staleAfter > 0
}

// Sweep fails every stale running task and returns the tasks it failed.
func (r *Reconciler) Sweep(ctx context.Context) ([]*domain.Task, error) {
	if !r.Enabled() {
		return nil, nil
	}
	log := logger.FromContextOrDefault(ctx, r.logger)

	cutoff := r.now().UTC().Add(-r.staleAfter)
	stale, err := r.tasks.ListStale(ctx, domain.RunningStatuses, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale tasks: %w", err)
	}
	if len(stale) == 0 {
		return nil, nil
	}
	log.Info("found stale tasks", slog.Int("count", len(stale)))

	msg := fmt.Sprintf("Abandoned: no outcome reported within %s", r.staleAfter)
	var failed []*domain.Task
	for _, t := range stale {
		updated, err := r.machine.Fail(ctx, t.ID, msg)
		if errors.Is(err, ErrInvalidState) {
			continue
		}
		if err != nil {
			log.Error("failed to abandon stale task",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		failed = append(failed, updated)

		_, _ = r.recorder.Record(ctx, domain.AuditActionTaskReconciled, SystemActor, t.Target(), map[string]any{
			"prior_status": t.Status,
			"last_update":  t.UpdatedAt,
			"stale_after":  r.staleAfter.String(),
		})
	}
	return failed, nil
}
