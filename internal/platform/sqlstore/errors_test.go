package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	generic := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: sql.ErrNoRows, want: store.ErrNotFound},
		{name: "unique", err: &pgconn.PgError{Code: pgUniqueViolation}, want: store.ErrDuplicate},
		{name: "foreign key", err: &pgconn.PgError{Code: pgForeignKeyViolation}, want: store.ErrInvalidEntity},
		{name: "check", err: &pgconn.PgError{Code: pgCheckViolation}, want: store.ErrInvalidEntity},
		{name: "not null", err: &pgconn.PgError{Code: pgNotNullViolation}, want: store.ErrInvalidEntity},
		{name: "wrapped unique", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgUniqueViolation}), want: store.ErrDuplicate},
		{name: "unmapped", err: generic, want: generic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, MapError(tt.err), tt.want)
		})
	}

	assert.NoError(t, MapError(nil))
	assert.True(t, isForeignKeyViolation(&pgconn.PgError{Code: pgForeignKeyViolation}))
	assert.False(t, isForeignKeyViolation(generic))
}

func TestWithSQLitePragmas(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"file:x?mode=memory&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		withSQLitePragmas("file:x?mode=memory"))
	assert.Equal(t,
		"tasks.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		withSQLitePragmas("tasks.db"))
	assert.Equal(t, "tasks.db?_pragma=journal_mode(wal)", withSQLitePragmas("tasks.db?_pragma=journal_mode(wal)"))
	assert.Equal(t, "$2, $3, $4", placeholders(2, 3))
}
