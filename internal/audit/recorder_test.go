package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/audit"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/mocks"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/platform/sqlstore"
	"github.com/phrazzld/taskforge/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Record(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)
	ctx := context.Background()
	rec := audit.NewRecorder(sqlstore.NewSQLAuditStore(db, testdb.Logger()), testdb.Logger())

	target := domain.TaskTarget(uuid.New())
	entry, err := rec.Record(ctx, domain.AuditActionTaskKilled, "admin-7", target, map[string]string{
		"reason": "policy violation",
	})
	require.NoError(t, err)
	assert.Equal(t, target, entry.Target)

	entries, err := rec.List(ctx, target, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, "admin-7", entries[0].Actor)

	var details map[string]string
	require.NoError(t, json.Unmarshal(entries[0].Details, &details))
	assert.Equal(t, "policy violation", details["reason"])

	recent, err := rec.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestRecorder_RejectsIncompleteEntries(t *testing.T) {
	t.Parallel()

	auditStore := &mocks.TestifyMockAuditStore{}
	rec := audit.NewRecorder(auditStore, testdb.Logger())

	tests := []struct {
		name    string
		action  string
		actor   string
		target  string
		details any
	}{
		{name: "no action", actor: "admin", target: "task:1"},
		{name: "no actor", action: domain.AuditActionTaskKilled, target: "task:1"},
		{name: "blank target", action: domain.AuditActionTaskKilled, actor: "admin", target: "  "},
		{
			name:    "unencodable details",
			action:  domain.AuditActionTaskKilled,
			actor:   "admin",
			target:  "task:1",
			details: map[string]any{"ch": make(chan int)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rec.Record(context.Background(), tt.action, tt.actor, tt.target, tt.details)
			assert.ErrorIs(t, err, audit.ErrInvalidEntry)
		})
	}
	auditStore.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestRecorder_StoreFailureIsLoggedAndReturned(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("disk full")
	auditStore := &mocks.TestifyMockAuditStore{}
	auditStore.On("Append", mock.Anything, mock.AnythingOfType("*domain.AuditEntry")).Return(storeErr)

	log, buf := logger.GetTestLogger(t)
	rec := audit.NewRecorder(auditStore, log)

	_, err := rec.Record(context.Background(), domain.AuditActionTaskKilled, "admin", "task:1", nil)
	assert.ErrorIs(t, err, storeErr)
	logged, err := buf.EntriesWithMessage("failed to record audit entry")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, "ERROR", logged[0]["level"])
	assert.Equal(t, domain.AuditActionTaskKilled, logged[0]["action"])
	auditStore.AssertExpectations(t)
}
