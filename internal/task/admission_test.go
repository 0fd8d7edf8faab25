package task_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/ledger"
	"github.com/phrazzld/taskforge/internal/mocks"
	"github.com/phrazzld/taskforge/internal/platform/sqlstore"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/task"
	"github.com/phrazzld/taskforge/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAdmitNext_Dispatches(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	user, tasks := f.seed(t, 2, 1)

	admission, err := f.admitter.AdmitNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, admission)
	assert.Equal(t, task.OutcomeDispatched, admission.Outcome)
	assert.NoError(t, admission.Err)

	got := f.task(t, tasks[0].ID)
	assert.Equal(t, domain.TaskStatusPlanning, got.Status)
	assert.Equal(t, int64(task.CostPerTask), got.CreditsUsed)
	assert.Nil(t, got.Error)
	assert.Nil(t, got.Result)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(epoch))
	assert.Nil(t, got.CompletedAt)

	assert.Equal(t, int64(1), f.balance(t, user.ID))
	assert.Equal(t, 1, f.charges(t, got.ID))

	jobs := f.dispatcher.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, task.Job{TaskID: got.ID, UserID: user.ID, Type: got.Type}, jobs[0])
}

// A user with no credits: the task goes from QUEUED to FAILED, nothing is
// charged and nothing is dispatched.
func TestAdmitNext_InsufficientCredits(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	user, tasks := f.seed(t, 0, 1)

	admission, err := f.admitter.AdmitNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, admission)
	assert.Equal(t, task.OutcomeRejected, admission.Outcome)
	assert.ErrorIs(t, admission.Err, ledger.ErrInsufficientCredits)

	got := f.task(t, tasks[0].ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, task.MsgInsufficientCredits, got.ErrorMessage())
	assert.Equal(t, int64(0), got.CreditsUsed)
	assert.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(epoch))

	assert.Equal(t, int64(0), f.balance(t, user.ID))
	assert.Equal(t, 0, f.charges(t, got.ID))
	assert.Empty(t, f.dispatcher.Jobs())

	// The rejected task does not hold a slot.
	running, err := f.stores.Tasks.CountByStatus(context.Background(), domain.RunningStatuses...)
	require.NoError(t, err)
	assert.Zero(t, running)
}

func TestAdmitNext_EnqueueFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	user, tasks := f.seed(t, 3, 1)
	f.dispatcher.Err = errors.New("redis unavailable")

	admission, err := f.admitter.AdmitNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, admission)
	assert.Equal(t, task.OutcomeEnqueueFailed, admission.Outcome)
	assert.ErrorIs(t, admission.Err, task.ErrEnqueue)

	var enqErr *task.EnqueueError
	require.ErrorAs(t, admission.Err, &enqErr)
	assert.Equal(t, tasks[0].ID, enqErr.TaskID)

	got := f.task(t, tasks[0].ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "Failed to enqueue: redis unavailable", got.ErrorMessage())
	assert.NotNil(t, got.CompletedAt)

	// The debit made at admission stands.
	assert.Equal(t, int64(1), got.CreditsUsed)
	assert.Equal(t, int64(2), f.balance(t, user.ID))
	assert.Equal(t, 1, f.charges(t, got.ID))
}

func TestAdmitNext_CreditCheckFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	user, tasks := f.seed(t, 5, 1)

	broken := &mocks.TestifyMockLedgerStore{}
	broken.On("Debit", mock.Anything, user.ID, int64(task.CostPerTask), domain.ReasonTaskExecution,
		mock.Anything, mock.Anything).Return(nil, errors.New("ledger offline"))
	f.tx.WrapFn = func(s store.Stores) store.Stores {
		s.Ledger = broken
		return s
	}

	admission, err := f.admitter.AdmitNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, admission)
	assert.Equal(t, task.OutcomeRejected, admission.Outcome)

	got := f.task(t, tasks[0].ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "Credit check failed: ledger offline", got.ErrorMessage())
	assert.Equal(t, int64(0), got.CreditsUsed)

	assert.Equal(t, int64(5), f.balance(t, user.ID))
	assert.Equal(t, 0, f.charges(t, got.ID))
	assert.Empty(t, f.dispatcher.Jobs())
	broken.AssertExpectations(t)
}

// A cycle whose credit check errors rolls back before it fails the task.
// If another cycle claims and charges the task in that window, the other
// cycle owns it and the failed check admits nothing.
func TestAdmitNext_CreditCheckFailureYieldsToConcurrentClaim(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	user, tasks := f.seed(t, 5, 1)

	broken := &mocks.TestifyMockLedgerStore{}
	broken.On("Debit", mock.Anything, user.ID, int64(task.CostPerTask), domain.ReasonTaskExecution,
		mock.Anything, mock.Anything).Return(nil, errors.New("ledger offline"))
	f.tx.WrapFn = func(s store.Stores) store.Stores {
		s.Ledger = broken
		return s
	}

	log := testdb.Logger()
	other := task.NewAdmitter(f.stores.Tasks, sqlstore.NewTransactor(f.db, log), f.credits, f.handoff,
		2, log, task.WithClock(f.clock.Now))

	var (
		once     sync.Once
		rival    *task.Admission
		rivalErr error
	)
	f.tx.AfterFn = func(ctx context.Context, err error) {
		if err == nil {
			return
		}
		once.Do(func() { rival, rivalErr = other.AdmitNext(ctx) })
	}

	admission, err := f.admitter.AdmitNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, admission)

	require.NoError(t, rivalErr)
	require.NotNil(t, rival)
	assert.Equal(t, task.OutcomeDispatched, rival.Outcome)

	got := f.task(t, tasks[0].ID)
	assert.Equal(t, domain.TaskStatusPlanning, got.Status)
	assert.Nil(t, got.Error)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, int64(task.CostPerTask), got.CreditsUsed)

	assert.Equal(t, int64(4), f.balance(t, user.ID))
	assert.Equal(t, 1, f.charges(t, got.ID))
	assert.Len(t, f.dispatcher.Jobs(), 1)
	broken.AssertExpectations(t)
}

func TestAdmitNext_NothingQueued(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	f.seed(t, 5, 0)

	admission, err := f.admitter.AdmitNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, admission)
}

func TestAdmitNext_RespectsCapacity(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	_, tasks := f.seed(t, 5, 2)

	first := f.admit(t)
	assert.Equal(t, tasks[0].ID, first.ID)

	admission, err := f.admitter.AdmitNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, admission)
	assert.Equal(t, domain.TaskStatusQueued, f.task(t, tasks[1].ID).Status)

	// Finishing the running task frees the slot.
	_, err = f.machine.Succeed(context.Background(), first.ID, []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, tasks[1].ID, f.admit(t).ID)
}

func TestAdmitNext_OldestFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)
	_, tasks := f.seed(t, 5, 3)

	for _, want := range tasks {
		assert.Equal(t, want.ID, f.admit(t).ID)
	}
}

func TestAdmitNext_ChargesEachTaskOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	user, tasks := f.seed(t, 5, 1)

	f.admit(t)
	for i := 0; i < 3; i++ {
		admission, err := f.admitter.AdmitNext(context.Background())
		require.NoError(t, err)
		assert.Nil(t, admission)
	}

	assert.Equal(t, 1, f.charges(t, tasks[0].ID))
	assert.Equal(t, int64(4), f.balance(t, user.ID))
}

func TestAdmitNext_ConcurrentCyclesClaimOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	user, tasks := f.seed(t, 5, 1)

	const cycles = 6
	results := make(chan *task.Admission, cycles)
	var wg sync.WaitGroup
	for i := 0; i < cycles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admission, err := f.admitter.AdmitNext(context.Background())
			assert.NoError(t, err)
			results <- admission
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for admission := range results {
		if admission != nil {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, f.charges(t, tasks[0].ID))
	assert.Equal(t, int64(4), f.balance(t, user.ID))
	assert.Len(t, f.dispatcher.Jobs(), 1)
}

func TestAdmitNext_ConcurrentCyclesRespectCapacity(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	user, tasks := f.seed(t, 10, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.admitter.AdmitNext(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	running, err := f.stores.Tasks.CountByStatus(ctx, domain.RunningStatuses...)
	require.NoError(t, err)
	assert.LessOrEqual(t, running, 2)

	// Top up sequentially; the cap still holds.
	for i := 0; i < 3; i++ {
		_, err := f.admitter.AdmitNext(ctx)
		require.NoError(t, err)
	}
	running, err = f.stores.Tasks.CountByStatus(ctx, domain.RunningStatuses...)
	require.NoError(t, err)
	assert.Equal(t, 2, running)

	charged := 0
	for _, tk := range tasks {
		charged += f.charges(t, tk.ID)
	}
	assert.Equal(t, 2, charged)
	assert.Equal(t, int64(8), f.balance(t, user.ID))
}

// Balance always equals the opening balance plus the ledger sum, whatever
// mix of admissions and refusals happened.
func TestAdmitNext_LedgerReconciles(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	user, _ := f.seed(t, 2, 4)
	ctx := context.Background()

	outcomes := map[task.Outcome]int{}
	for i := 0; i < 4; i++ {
		admission, err := f.admitter.AdmitNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, admission)
		outcomes[admission.Outcome]++
	}
	assert.Equal(t, map[task.Outcome]int{
		task.OutcomeDispatched: 2,
		task.OutcomeRejected:   2,
	}, outcomes)

	r, err := f.credits.Reconcile(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, r.Consistent)
	assert.Equal(t, int64(0), r.Balance)
	assert.Equal(t, int64(-2), r.LedgerSum)
}
