package task_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/audit"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/ledger"
	"github.com/phrazzld/taskforge/internal/mocks"
	"github.com/phrazzld/taskforge/internal/platform/sqlstore"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/task"
	"github.com/phrazzld/taskforge/internal/testdb"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// clock is a settable time source shared by every component of a fixture.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db         *sql.DB
	stores     store.Stores
	clock      *clock
	credits    *ledger.Service
	recorder   *audit.Recorder
	dispatcher *mocks.MockDispatcher
	tx         *mocks.Transactor
	machine    *task.Machine
	handoff    *task.Handoff
	admitter   *task.Admitter
}

func newFixture(t *testing.T, maxConcurrent int) *fixture {
	t.Helper()

	db := testdb.Open(t)
	log := testdb.Logger()
	c := &clock{now: epoch}
	withClock := task.WithClock(c.Now)

	f := &fixture{
		db:         db,
		stores:     sqlstore.Stores(db, log),
		clock:      c,
		dispatcher: &mocks.MockDispatcher{},
		tx:         &mocks.Transactor{Inner: sqlstore.NewTransactor(db, log)},
	}
	f.credits = ledger.NewService(f.stores, log, ledger.WithClock(c.Now))
	f.recorder = audit.NewRecorder(f.stores.Audit, log)
	f.machine = task.NewMachine(f.stores.Tasks, f.stores.Users, f.recorder, log, withClock)
	f.handoff = task.NewHandoff(f.dispatcher, f.stores.Tasks, log, withClock)
	f.admitter = task.NewAdmitter(f.stores.Tasks, f.tx, f.credits, f.handoff, maxConcurrent, log, withClock)
	return f
}

// seed creates a user with the given balance and queues n tasks in their
// workspace, one minute apart.
func (f *fixture) seed(t *testing.T, credits int64, n int) (*domain.User, []*domain.Task) {
	t.Helper()

	user, ws := testdb.SeedUser(t, f.db, credits)
	tasks := make([]*domain.Task, n)
	for i := range tasks {
		tasks[i] = testdb.SeedTask(t, f.db, ws.ID, epoch.Add(time.Duration(i-n)*time.Minute))
	}
	return user, tasks
}

func (f *fixture) task(t *testing.T, id uuid.UUID) *domain.Task {
	t.Helper()
	got, err := f.stores.Tasks.GetByID(context.Background(), id)
	require.NoError(t, err)
	return got
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	balance, err := f.credits.Balance(context.Background(), userID)
	require.NoError(t, err)
	return balance
}

func (f *fixture) charges(t *testing.T, taskID uuid.UUID) int {
	t.Helper()
	entries, err := f.stores.Ledger.ListByTask(context.Background(), taskID)
	require.NoError(t, err)
	return len(entries)
}

// admit runs one admission cycle and requires it to dispatch a task.
func (f *fixture) admit(t *testing.T) *domain.Task {
	t.Helper()
	admission, err := f.admitter.AdmitNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, admission)
	require.Equal(t, task.OutcomeDispatched, admission.Outcome)
	return admission.Task
}

// executing admits the next task and advances it with plan.
func (f *fixture) executing(t *testing.T, plan string) *domain.Task {
	t.Helper()
	admitted := f.admit(t)
	advanced, err := f.machine.Advance(context.Background(), admitted.ID, []byte(plan))
	require.NoError(t, err)
	return advanced
}

func (f *fixture) auditTrail(t *testing.T, taskID uuid.UUID) []*domain.AuditEntry {
	t.Helper()
	entries, err := f.recorder.List(context.Background(), domain.TaskTarget(taskID), 0)
	require.NoError(t, err)
	return entries
}
