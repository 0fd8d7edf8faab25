package sqlstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
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

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestSQLTaskStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	_, ws := testdb.SeedUser(t, db, 5)
	tasks := sqlstore.NewSQLTaskStore(db, testdb.Logger())

	created := testdb.SeedTask(t, db, ws.ID, epoch)

	got, err := tasks.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Goal, got.Goal)
	assert.Equal(t, domain.TaskStatusQueued, got.Status)
	assert.True(t, epoch.Equal(got.CreatedAt))
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.Result)

	_, err = tasks.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	orphan, err := domain.NewTask(uuid.New(), "orphan", domain.TaskTypeImage)
	require.NoError(t, err)
	assert.ErrorIs(t, tasks.Create(ctx, orphan), store.ErrWorkspaceNotFound)
}

func TestSQLTaskStore_FindOldestIsFIFO(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	_, ws := testdb.SeedUser(t, db, 5)
	tasks := sqlstore.NewSQLTaskStore(db, testdb.Logger())

	_, err := tasks.FindOldest(ctx, domain.TaskStatusQueued)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	testdb.SeedTask(t, db, ws.ID, epoch.Add(2*time.Minute))
	first := testdb.SeedTask(t, db, ws.ID, epoch)
	testdb.SeedTask(t, db, ws.ID, epoch.Add(time.Minute))

	oldest, err := tasks.FindOldest(ctx, domain.TaskStatusQueued)
	require.NoError(t, err)
	assert.Equal(t, first.ID, oldest.ID)
}

func TestSQLTaskStore_Claim(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	_, ws := testdb.SeedUser(t, db, 5)
	tasks := sqlstore.NewSQLTaskStore(db, testdb.Logger())

	a := testdb.SeedTask(t, db, ws.ID, epoch)
	b := testdb.SeedTask(t, db, ws.ID, epoch.Add(time.Second))
	startedAt := epoch.Add(time.Hour)

	claimed, err := tasks.Claim(ctx, a.ID, startedAt, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPlanning, claimed.Status)
	require.NotNil(t, claimed.StartedAt)
	assert.True(t, startedAt.Equal(*claimed.StartedAt))

	_, err = tasks.Claim(ctx, a.ID, startedAt, 5)
	var conflict *store.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, domain.TaskStatusPlanning, conflict.Current)

	_, err = tasks.Claim(ctx, b.ID, startedAt, 1)
	assert.ErrorIs(t, err, store.ErrCapacityReached)

	running, err := tasks.CountByStatus(ctx, domain.RunningStatuses...)
	require.NoError(t, err)
	assert.Equal(t, 1, running)

	_, err = tasks.Claim(ctx, uuid.New(), startedAt, 5)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestSQLTaskStore_ConcurrentClaimsRespectCap(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	_, ws := testdb.SeedUser(t, db, 5)
	tasks := sqlstore.NewSQLTaskStore(db, testdb.Logger())

	var ids []uuid.UUID
	for i := 0; i < 6; i++ {
		ids = append(ids, testdb.SeedTask(t, db, ws.ID, epoch.Add(time.Duration(i)*time.Second)).ID)
	}

	const maxRunning = 2
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if _, err := tasks.Claim(ctx, id, epoch.Add(time.Hour), maxRunning); err == nil {
				mu.Lock()
				claimed++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, store.ErrCapacityReached)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, maxRunning, claimed)
	running, err := tasks.CountByStatus(ctx, domain.RunningStatuses...)
	require.NoError(t, err)
	assert.Equal(t, maxRunning, running)
}

func TestSQLTaskStore_CompareAndUpdate(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	_, ws := testdb.SeedUser(t, db, 5)
	tasks := sqlstore.NewSQLTaskStore(db, testdb.Logger())

	task := testdb.SeedTask(t, db, ws.ID, epoch)
	_, err := tasks.Claim(ctx, task.ID, epoch.Add(time.Minute), 2)
	require.NoError(t, err)

	plan := json.RawMessage(`{"steps":["a","b"]}`)
	advanced, err := tasks.CompareAndUpdate(ctx, task.ID,
		[]domain.TaskStatus{domain.TaskStatusPlanning},
		func(tk *domain.Task) error {
			tk.Status = domain.TaskStatusExecuting
			tk.Result = domain.PartialResult(plan)
			tk.UpdatedAt = epoch.Add(2 * time.Minute)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusExecuting, advanced.Status)

	// Guard no longer matches.
	_, err = tasks.CompareAndUpdate(ctx, task.ID,
		[]domain.TaskStatus{domain.TaskStatusPlanning},
		func(tk *domain.Task) error {
			tk.Status = domain.TaskStatusFailed
			return nil
		})
	var conflict *store.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, domain.TaskStatusExecuting, conflict.Current)

	// Invalid transitions are rejected by validation before the write.
	_, err = tasks.CompareAndUpdate(ctx, task.ID, domain.RunningStatuses, func(tk *domain.Task) error {
		tk.Status = domain.TaskStatusSucceeded
		return nil
	})
	assert.ErrorIs(t, err, store.ErrInvalidEntity, "completed_at missing")

	reloaded, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusExecuting, reloaded.Status)
	require.NotNil(t, reloaded.Result)
	assert.Equal(t, domain.ResultKindPartial, reloaded.Result.Kind)
	assert.JSONEq(t, string(plan), string(reloaded.Result.Output))

	_, err = tasks.CompareAndUpdate(ctx, task.ID, domain.RunningStatuses, func(tk *domain.Task) error {
		tk.CreditsUsed = 1
		tk.UpdatedAt = epoch.Add(3 * time.Minute)
		return nil
	})
	require.NoError(t, err)
	_, err = tasks.CompareAndUpdate(ctx, task.ID, domain.RunningStatuses, func(tk *domain.Task) error {
		tk.CreditsUsed = 0
		return nil
	})
	assert.ErrorIs(t, err, store.ErrInvalidEntity, "credits_used never decreases")
}

// The row is claimed between the read and the conditional write. The retry
// sees PLANNING, which the caller did not ask for, and must leave it alone.
func TestSQLTaskStore_CompareAndUpdateRetryKeepsGuard(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	_, ws := testdb.SeedUser(t, db, 5)
	tasks := sqlstore.NewSQLTaskStore(db, testdb.Logger())

	task := testdb.SeedTask(t, db, ws.ID, epoch)

	calls := 0
	_, err := tasks.CompareAndUpdate(ctx, task.ID,
		[]domain.TaskStatus{domain.TaskStatusQueued},
		func(tk *domain.Task) error {
			calls++
			if calls == 1 {
				_, err := tasks.Claim(ctx, task.ID, epoch.Add(time.Minute), 2)
				require.NoError(t, err)
			}
			msg := "Credit check failed"
			tk.Status = domain.TaskStatusFailed
			tk.Error = &msg
			tk.UpdatedAt = epoch.Add(time.Minute)
			tk.StartedAt = &tk.UpdatedAt
			tk.CompletedAt = &tk.UpdatedAt
			return nil
		})

	var conflict *store.ConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, domain.TaskStatusPlanning, conflict.Current)
	assert.Equal(t, 1, calls)

	reloaded, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPlanning, reloaded.Status)
	assert.Nil(t, reloaded.Error)
	assert.Nil(t, reloaded.CompletedAt)
}

func TestSQLTaskStore_ListStale(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	_, ws := testdb.SeedUser(t, db, 5)
	tasks := sqlstore.NewSQLTaskStore(db, testdb.Logger())

	old := testdb.SeedTask(t, db, ws.ID, epoch)
	fresh := testdb.SeedTask(t, db, ws.ID, epoch.Add(time.Second))
	_, err := tasks.Claim(ctx, old.ID, epoch.Add(time.Minute), 5)
	require.NoError(t, err)
	_, err = tasks.Claim(ctx, fresh.ID, epoch.Add(time.Hour), 5)
	require.NoError(t, err)

	stale, err := tasks.ListStale(ctx, domain.RunningStatuses, epoch.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}

func TestSQLTaskStore_ListByWorkspace(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	_, ws := testdb.SeedUser(t, db, 5)
	_, other := testdb.SeedUser(t, db, 5)
	tasks := sqlstore.NewSQLTaskStore(db, testdb.Logger())

	first := testdb.SeedTask(t, db, ws.ID, epoch)
	second := testdb.SeedTask(t, db, ws.ID, epoch.Add(time.Minute))
	testdb.SeedTask(t, db, other.ID, epoch)

	list, err := tasks.ListByWorkspace(ctx, ws.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	_, err = tasks.Claim(ctx, first.ID, epoch.Add(time.Hour), 5)
	require.NoError(t, err)
	owner, err := sqlstore.NewSQLUserStore(db, testdb.Logger()).GetWorkspaceOwner(ctx, ws.ID)
	require.NoError(t, err)

	counts, err := tasks.CountByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, map[domain.TaskStatus]int{
		domain.TaskStatusQueued:   1,
		domain.TaskStatusPlanning: 1,
	}, counts)
}
