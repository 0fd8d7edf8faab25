package task

import (
	"log/slog"
	"time"

	"github.com/phrazzld/taskforge/internal/audit"
	"github.com/phrazzld/taskforge/internal/store"
)

// Machine applies lifecycle events to stored tasks. Every write it makes is
// a conditional update guarded on the event's source statuses, so of two
// racing terminal writes the first one wins and the second is refused.
type Machine struct {
	tasks    store.TaskStore
	users    store.UserStore
	recorder *audit.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewMachine creates a Machine. recorder receives the audit entries of
// administrative events.
func NewMachine(
	tasks store.TaskStore,
	users store.UserStore,
	recorder *audit.Recorder,
	logger *slog.Logger,
	opts ...Option,
) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	return &Machine{
		tasks:    tasks,
		users:    users,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "state_machine")),
		now:      o.now,
	}
}
