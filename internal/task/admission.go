package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/ledger"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

// CostPerTask is the number of credits debited when a task is admitted.
const CostPerTask = 1

// MsgInsufficientCredits is the error recorded on a task whose owner could
// not pay for it.
const MsgInsufficientCredits = "Insufficient credits"

// DefaultMaxConcurrent is the running-task cap used when none is configured.
const DefaultMaxConcurrent = 2

// Outcome describes what happened to an admitted task.
type Outcome string

// Admission outcomes.
const (
	// OutcomeDispatched means the task was debited and handed to the backend.
	OutcomeDispatched Outcome = "dispatched"
	// OutcomeRejected means the credit check failed and the task is FAILED.
	OutcomeRejected Outcome = "rejected"
	// OutcomeEnqueueFailed means the task was debited but the backend
	// refused it, and the task is FAILED.
	OutcomeEnqueueFailed Outcome = "enqueue_failed"
)

// Admission is the result of an admission cycle that claimed a task.
type Admission struct {
	Task    *domain.Task
	Outcome Outcome
	// Err explains a rejected or undelivered task: it matches
	// ledger.ErrInsufficientCredits or ErrEnqueue.
	Err error
}

// creditCheckError marks a billing failure other than an insufficient
// balance. The admission transaction rolls back when it occurs.
type creditCheckError struct {
	err error
}

func (e *creditCheckError) Error() string { return e.err.Error() }
func (e *creditCheckError) Unwrap() error { return e.err }

// Admitter runs admission cycles.
type Admitter struct {
	tasks         store.TaskStore
	tx            store.Transactor
	credits       *ledger.Service
	handoff       *Handoff
	maxConcurrent int
	logger        *slog.Logger
	now           func() time.Time
}

// NewAdmitter creates an Admitter that keeps at most maxConcurrent tasks
// running. credits is rebound to the stores of each admission transaction.
func NewAdmitter(
	tasks store.TaskStore,
	tx store.Transactor,
	credits *ledger.Service,
	handoff *Handoff,
	maxConcurrent int,
	logger *slog.Logger,
	opts ...Option,
) *Admitter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	o := buildOptions(opts)
	return &Admitter{
		tasks:         tasks,
		tx:            tx,
		credits:       credits,
		handoff:       handoff,
		maxConcurrent: maxConcurrent,
		logger:        logger.With(slog.String("component", "admission")),
		now:           o.now,
	}
}

// MaxConcurrent returns the running-task cap.
func (a *Admitter) MaxConcurrent() int {
	return a.maxConcurrent
}

// AdmitNext claims the oldest queued task, debits its owner, and hands it
// to the execution backend. It returns nil when the cap is reached, no task
// is queued, or another cycle claimed the task first.
//
// Claim and debit commit together: a task is never running without its
// debit, and a task that left QUEUED is never debited again. A task the
// owner cannot pay for is admitted straight to FAILED.
func (a *Admitter) AdmitNext(ctx context.Context) (*Admission, error) {
	log := logger.FromContextOrDefault(ctx, a.logger)

	running, err := a.tasks.CountByStatus(ctx, domain.RunningStatuses...)
	if err != nil {
		return nil, fmt.Errorf("count running tasks: %w", err)
	}
	if running >= a.maxConcurrent {
		log.Debug("admission skipped at capacity",
			slog.Int("running", running),
			slog.Int("max_concurrent", a.maxConcurrent))
		return nil, nil
	}

	next, err := a.tasks.FindOldest(ctx, domain.TaskStatusQueued)
	if errors.Is(err, store.ErrTaskNotFound) {
		log.Debug("no queued tasks")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find queued task: %w", err)
	}

	log = log.With(slog.String("task_id", next.ID.String()))
	now := a.now().UTC()

	var (
		admitted *domain.Task
		owner    *domain.User
		refusal  error
	)
	err = a.tx.Within(ctx, func(ctx context.Context, s store.Stores) error {
		refusal = nil

		claimed, err := s.Tasks.Claim(ctx, next.ID, now, a.maxConcurrent)
		if err != nil {
			return err
		}

		owner, err = s.Users.GetWorkspaceOwner(ctx, claimed.WorkspaceID)
		if err != nil {
			return &creditCheckError{err: fmt.Errorf("resolve owner: %w", err)}
		}

		_, err = a.credits.WithStores(s).Debit(ctx, owner.ID, CostPerTask, domain.ReasonTaskExecution, &claimed.ID)
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			refusal = err
			admitted, err = apply(ctx, s.Tasks, claimed.ID, EventReject, now,
				func(t *domain.Task, _ domain.TaskStatus) {
					msg := MsgInsufficientCredits
					t.Error = &msg
				})
			return err
		}
		if err != nil {
			return &creditCheckError{err: err}
		}

		admitted, err = s.Tasks.CompareAndUpdate(ctx, claimed.ID,
			[]domain.TaskStatus{domain.TaskStatusPlanning},
			func(t *domain.Task) error {
				t.CreditsUsed = CostPerTask
				t.Error = nil
				t.Result = nil
				t.UpdatedAt = now
				return nil
			})
		return err
	})

	var (
		conflict *store.ConflictError
		check    *creditCheckError
	)
	switch {
	case err == nil:
	case errors.As(err, &conflict):
		log.Debug("admission yielded no task",
			slog.String("reason", ErrClaimConflict.Error()),
			slog.String("current_status", string(conflict.Current)))
		return nil, nil
	case errors.Is(err, store.ErrCapacityReached):
		log.Debug("admission yielded no task", slog.String("reason", err.Error()))
		return nil, nil
	case errors.As(err, &check):
		return a.rejectUnbilled(ctx, next.ID, check.err)
	default:
		return nil, fmt.Errorf("admit task %s: %w", next.ID, err)
	}

	if refusal != nil {
		log.Info("task rejected",
			slog.String("user_id", owner.ID.String()),
			slog.String("reason", MsgInsufficientCredits))
		return &Admission{Task: admitted, Outcome: OutcomeRejected, Err: refusal}, nil
	}

	log.Info("task admitted",
		slog.String("user_id", owner.ID.String()),
		slog.Int64("credits_used", admitted.CreditsUsed))

	final, err := a.handoff.Submit(ctx, admitted, owner.ID)
	if err == nil {
		return &Admission{Task: final, Outcome: OutcomeDispatched}, nil
	}
	if final == nil {
		return nil, err
	}
	return &Admission{Task: final, Outcome: OutcomeEnqueueFailed, Err: err}, nil
}

// rejectUnbilled fails a task whose credit check errored. The admission
// transaction has rolled back, so no debit exists. If another cycle has
// claimed the task in the meantime, that cycle owns it and nothing is
// admitted here.
func (a *Admitter) rejectUnbilled(ctx context.Context, id uuid.UUID, cause error) (*Admission, error) {
	log := logger.FromContextOrDefault(ctx, a.logger).With(slog.String("task_id", id.String()))
	log.Error("credit check failed", slog.String("error", cause.Error()))

	msg := "Credit check failed: " + cause.Error()
	failed, err := apply(ctx, a.tasks, id, EventRefuse, a.now(), func(t *domain.Task, _ domain.TaskStatus) {
		t.Error = &msg
	})
	var refused *TransitionError
	if errors.As(err, &refused) {
		log.Info("admission yielded no task",
			slog.String("reason", ErrClaimConflict.Error()),
			slog.String("current_status", string(refused.From)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reject task %s after credit check failure (%v): %w", id, cause, err)
	}
	return &Admission{Task: failed, Outcome: OutcomeRejected, Err: cause}, nil
}
