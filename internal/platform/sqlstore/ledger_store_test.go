package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/sqlstore"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLLedgerStore_Debit(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	user, ws := testdb.SeedUser(t, db, 2)
	task := testdb.SeedTask(t, db, ws.ID, epoch)

	ledger := sqlstore.NewSQLLedgerStore(db, testdb.Logger())
	users := sqlstore.NewSQLUserStore(db, testdb.Logger())

	entry, err := ledger.Debit(ctx, user.ID, 1, domain.ReasonTaskExecution, &task.ID, epoch)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), entry.Amount)
	assert.Equal(t, int64(1), entry.Balance)
	require.NotNil(t, entry.TaskID)
	assert.Equal(t, task.ID, *entry.TaskID)

	// Same task again: refused by the unique index, balance untouched.
	_, err = ledger.Debit(ctx, user.ID, 1, domain.ReasonTaskExecution, &task.ID, epoch)
	assert.ErrorIs(t, err, store.ErrTaskAlreadyCharged)

	reloaded, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.Credits)

	charged, err := ledger.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, charged, 1)

	_, err = ledger.Debit(ctx, user.ID, 2, "too much", nil, epoch)
	assert.ErrorIs(t, err, store.ErrInsufficientBalance)

	_, err = ledger.Debit(ctx, uuid.New(), 1, "ghost", nil, epoch)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestSQLLedgerStore_Reconciles(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	user, _ := testdb.SeedUser(t, db, 3)

	ledger := sqlstore.NewSQLLedgerStore(db, testdb.Logger())
	users := sqlstore.NewSQLUserStore(db, testdb.Logger())

	_, err := ledger.Grant(ctx, user.ID, 10, "top-up", epoch)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := ledger.Debit(ctx, user.ID, 2, "manual", nil, epoch.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	sum, err := ledger.Sum(ctx, user.ID)
	require.NoError(t, err)
	reloaded, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(5), reloaded.Credits)
	assert.Equal(t, reloaded.OpeningCredits+sum, reloaded.Credits)

	totals, err := ledger.Totals(ctx, user.ID, epoch.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, store.LedgerTotals{Spent: 4, Granted: 0, Debits: 2}, totals)

	history, err := ledger.ListByUser(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(5), history[0].Balance)
}
