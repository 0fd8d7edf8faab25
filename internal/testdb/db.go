package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/sqlstore"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 10 * time.Second

// PostgresURLEnv names the variable that switches tests to PostgreSQL.
const PostgresURLEnv = "TASKFORGE_TEST_DATABASE_URL"

var postgresMu sync.Mutex

// Open returns a migrated database for the test and closes it on cleanup.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	if url := os.Getenv(PostgresURLEnv); url != "" {
		return openPostgres(t, url)
	}
	return OpenSQLite(t)
}

// IsPostgres reports whether tests run against PostgreSQL.
func IsPostgres() bool {
	return os.Getenv(PostgresURLEnv) != ""
}

// OpenSQLite returns a fresh migrated in-memory SQLite database.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver: sqlstore.DriverSQLite,
		URL:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}
	return open(t, cfg)
}

func openPostgres(t *testing.T, url string) *sql.DB {
	t.Helper()

	postgresMu.Lock()
	t.Cleanup(postgresMu.Unlock)

	cfg := config.DatabaseConfig{
		Driver:       sqlstore.DriverPostgres,
		URL:          url,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
	db := open(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx,
		`TRUNCATE audit_log, credit_history, tasks, workspaces, users`)
	require.NoError(t, err, "failed to truncate tables")
	return db
}

func open(t *testing.T, cfg config.DatabaseConfig) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	log := Logger()
	db, err := sqlstore.Open(ctx, cfg, log)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlstore.Migrate(ctx, db, cfg.Driver, "up", log), "failed to migrate test database")
	return db
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// SeedUser inserts a user with the given opening balance and one workspace.
func SeedUser(t *testing.T, db *sql.DB, credits int64) (*domain.User, *domain.Workspace) {
	t.Helper()
	ctx := context.Background()

	user, err := domain.NewUser(uuid.NewString()+"@example.com", domain.PlanPro, credits)
	require.NoError(t, err)
	users := sqlstore.NewSQLUserStore(db, Logger())
	require.NoError(t, users.Create(ctx, user))

	ws, err := domain.NewWorkspace(user.ID, "default")
	require.NoError(t, err)
	require.NoError(t, users.CreateWorkspace(ctx, ws))

	return user, ws
}

// SeedTask inserts a QUEUED task in the workspace created at createdAt.
func SeedTask(t *testing.T, db *sql.DB, workspaceID uuid.UUID, createdAt time.Time) *domain.Task {
	t.Helper()

	task, err := domain.NewTask(workspaceID, "goal "+uuid.NewString()[:8], domain.TaskTypeCoding)
	require.NoError(t, err)
	task.CreatedAt = createdAt.UTC()
	task.UpdatedAt = createdAt.UTC()

	require.NoError(t, sqlstore.NewSQLTaskStore(db, Logger()).Create(context.Background(), task))
	return task
}
