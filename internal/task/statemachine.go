package task

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/store"
)

// Event is a lifecycle event applied to a task.
type Event string

// Lifecycle events.
const (
	EventAdmit   Event = "admit"
	EventReject  Event = "reject"
	EventRefuse  Event = "refuse"
	EventAdvance Event = "advance"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
	EventKill    Event = "kill"
)

type rule struct {
	from []domain.TaskStatus
	to   domain.TaskStatus
}

// transitions is the complete transition table. An event not listed for a
// status is refused with ErrInvalidState.
//
// A rejected task is still PLANNING inside the admission transaction that
// claimed it, so outside observers see QUEUED move straight to FAILED.
// Refuse covers a credit check that errored after that transaction rolled
// back. It only applies to a task that is still QUEUED, so it never touches
// a task another cycle has since claimed and charged.
var transitions = map[Event]rule{
	EventAdmit: {
		from: []domain.TaskStatus{domain.TaskStatusQueued},
		to:   domain.TaskStatusPlanning,
	},
	EventReject: {
		from: []domain.TaskStatus{domain.TaskStatusPlanning},
		to:   domain.TaskStatusFailed,
	},
	EventRefuse: {
		from: []domain.TaskStatus{domain.TaskStatusQueued},
		to:   domain.TaskStatusFailed,
	},
	EventAdvance: {
		from: []domain.TaskStatus{domain.TaskStatusPlanning},
		to:   domain.TaskStatusExecuting,
	},
	EventSucceed: {
		from: domain.RunningStatuses,
		to:   domain.TaskStatusSucceeded,
	},
	EventFail: {
		from: domain.RunningStatuses,
		to:   domain.TaskStatusFailed,
	},
	EventKill: {
		from: domain.RunningStatuses,
		to:   domain.TaskStatusFailed,
	},
}

// Sources returns the statuses from which event is allowed.
func Sources(event Event) []domain.TaskStatus {
	return slices.Clone(transitions[event].from)
}

// Next returns the status event leads to from from.
func Next(from domain.TaskStatus, event Event) (domain.TaskStatus, bool) {
	r, ok := transitions[event]
	if !ok || !slices.Contains(r.from, from) {
		return "", false
	}
	return r.to, true
}

// CanApply reports whether event is allowed from status.
func CanApply(status domain.TaskStatus, event Event) bool {
	_, ok := Next(status, event)
	return ok
}

// apply moves the task through event with a single conditional update
// guarded on the event's source statuses. edit fills in the fields the
// event carries and receives the status the task left; status and
// timestamps are stamped here. A lost race is reported as a
// *TransitionError naming the status that won.
func apply(
	ctx context.Context,
	tasks store.TaskStore,
	id uuid.UUID,
	event Event,
	at time.Time,
	edit func(t *domain.Task, from domain.TaskStatus),
) (*domain.Task, error) {
	at = at.UTC()
	updated, err := tasks.CompareAndUpdate(ctx, id, Sources(event), func(t *domain.Task) error {
		from := t.Status
		to, ok := Next(from, event)
		if !ok {
			return &TransitionError{TaskID: id, From: from, Event: event}
		}
		t.Status = to
		t.UpdatedAt = at
		if t.StartedAt == nil {
			t.StartedAt = &at
		}
		if to.IsTerminal() {
			t.CompletedAt = &at
		}
		if edit != nil {
			edit(t, from)
		}
		return nil
	})
	if err == nil {
		return updated, nil
	}

	var conflict *store.ConflictError
	switch {
	case errors.As(err, &conflict):
		return nil, &TransitionError{TaskID: id, From: conflict.Current, Event: event}
	case errors.Is(err, store.ErrTaskNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return nil, err
	}
}
