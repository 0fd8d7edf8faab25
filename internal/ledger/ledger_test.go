package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/ledger"
	"github.com/phrazzld/taskforge/internal/mocks"
	"github.com/phrazzld/taskforge/internal/platform/sqlstore"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, credits int64) (*ledger.Service, store.Stores, *domain.User, *domain.Workspace) {
	t.Helper()
	db := testdb.Open(t)
	user, ws := testdb.SeedUser(t, db, credits)
	stores := sqlstore.Stores(db, testdb.Logger())
	svc := ledger.NewService(stores, testdb.Logger(), ledger.WithClock(func() time.Time { return now }))
	return svc, stores, user, ws
}

func TestService_Debit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, user, _ := newService(t, 1)

	entry, err := svc.Debit(ctx, user.ID, 1, domain.ReasonTaskExecution, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), entry.Amount)
	assert.Equal(t, int64(0), entry.Balance)
	assert.Equal(t, now, entry.CreatedAt)

	// A zero balance cannot pay for anything.
	_, err = svc.Debit(ctx, user.ID, 1, domain.ReasonTaskExecution, nil)
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)

	balance, err := svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	history, err := svc.History(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestService_DebitRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, user, _ := newService(t, 5)

	for _, amount := range []int64{0, -3} {
		_, err := svc.Debit(ctx, user.ID, amount, "bad", nil)
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
		_, err = svc.Grant(ctx, user.ID, amount, "bad")
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	}

	_, err := svc.Debit(ctx, uuid.New(), 1, "ghost", nil)
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)

	_, err = svc.Balance(ctx, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}

func TestService_DebitSameTaskTwice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, stores, user, ws := newService(t, 5)
	task, err := domain.NewTask(ws.ID, "write the report", domain.TaskTypeMixed)
	require.NoError(t, err)
	require.NoError(t, stores.Tasks.Create(ctx, task))

	_, err = svc.Debit(ctx, user.ID, 1, domain.ReasonTaskExecution, &task.ID)
	require.NoError(t, err)
	_, err = svc.Debit(ctx, user.ID, 1, domain.ReasonTaskExecution, &task.ID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyCharged)

	balance, err := svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance)
}

func TestService_GrantAndReconcile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, user, _ := newService(t, 2)

	entry, err := svc.Grant(ctx, user.ID, 5, "support credit")
	require.NoError(t, err)
	assert.Equal(t, int64(7), entry.Balance)

	for i := 0; i < 3; i++ {
		_, err := svc.Debit(ctx, user.ID, 1, domain.ReasonTaskExecution, nil)
		require.NoError(t, err)
	}

	r, err := svc.Reconcile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Reconciliation{
		UserID:         user.ID,
		Balance:        4,
		OpeningBalance: 2,
		LedgerSum:      2,
		Consistent:     true,
	}, r)
}

func TestService_ReconcileReportsDrift(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	users := &mocks.TestifyMockUserStore{}
	users.On("GetByID", mock.Anything, userID).Return(&domain.User{
		ID:             userID,
		Credits:        9,
		OpeningCredits: 10,
	}, nil)
	entries := &mocks.TestifyMockLedgerStore{}
	entries.On("Sum", mock.Anything, userID).Return(int64(-3), nil)

	svc := ledger.NewService(store.Stores{Users: users, Ledger: entries}, testdb.Logger())
	r, err := svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.False(t, r.Consistent)
	assert.Equal(t, int64(-3), r.LedgerSum)

	users.AssertExpectations(t)
	entries.AssertExpectations(t)
}

func TestService_Usage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, stores, user, ws := newService(t, 10)

	task, err := domain.NewTask(ws.ID, "summarize the thread", domain.TaskTypeUser)
	require.NoError(t, err)
	require.NoError(t, stores.Tasks.Create(ctx, task))

	_, err = svc.Debit(ctx, user.ID, 1, domain.ReasonTaskExecution, nil)
	require.NoError(t, err)
	_, err = svc.Grant(ctx, user.ID, 4, "promo")
	require.NoError(t, err)

	usage, err := svc.Usage(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPro, usage.Plan)
	assert.Equal(t, int64(13), usage.Balance)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), usage.PeriodStart)
	assert.Equal(t, int64(1), usage.Spent)
	assert.Equal(t, int64(4), usage.Granted)
	assert.Equal(t, 1, usage.Debits)
	assert.Equal(t, map[domain.TaskStatus]int{domain.TaskStatusQueued: 1}, usage.TasksByStatus)
}
