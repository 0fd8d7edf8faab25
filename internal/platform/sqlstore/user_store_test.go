package sqlstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/sqlstore"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLUserStore(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	users := sqlstore.NewSQLUserStore(db, testdb.Logger())

	user, ws := testdb.SeedUser(t, db, 7)

	byEmail, err := users.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, int64(7), byEmail.OpeningCredits)

	owner, err := users.GetWorkspaceOwner(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner.ID)

	gotWS, err := users.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, gotWS.UserID)

	_, err = users.GetWorkspaceOwner(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrWorkspaceNotFound)
	_, err = users.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	dup, err := domain.NewUser(user.Email, domain.PlanFree, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, users.Create(ctx, dup), store.ErrEmailExists)

	orphanWS, err := domain.NewWorkspace(uuid.New(), "orphan")
	require.NoError(t, err)
	assert.ErrorIs(t, users.CreateWorkspace(ctx, orphanWS), store.ErrUserNotFound)
}
