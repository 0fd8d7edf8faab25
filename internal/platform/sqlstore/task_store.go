package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

const taskColumns = `id, workspace_id, goal, type, status, credits_used, error, result,
	created_at, updated_at, started_at, completed_at`

// casAttempts bounds how often CompareAndUpdate re-reads a row whose status
// moved between the read and the conditional write but is still acceptable.
const casAttempts = 3

// SQLTaskStore implements the store.TaskStore interface.
type SQLTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSQLTaskStore creates a task store on a connection or transaction.
// If logger is nil, a default logger will be used.
func NewSQLTaskStore(db store.DBTX, logger *slog.Logger) *SQLTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure SQLTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*SQLTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *SQLTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &SQLTaskStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t           domain.Task
		errMsg      sql.NullString
		result      sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&t.ID, &t.WorkspaceID, &t.Goal, &t.Type, &t.Status, &t.CreditsUsed,
		&errMsg, &result, &t.CreatedAt, &t.UpdatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Error = stringPtr(errMsg)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)

	if result.Valid {
		t.Result, err = domain.UnmarshalResult([]byte(result.String))
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
	}

	return &t, nil
}

func encodeResult(r *domain.Result) (sql.NullString, error) {
	data, err := domain.MarshalResult(r)
	if err != nil || data == nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func statusArgs(statuses []domain.TaskStatus) []any {
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return args
}

// Create implements store.TaskStore.Create
func (s *SQLTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	result, err := encodeResult(task.Result)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		task.ID, task.WorkspaceID, task.Goal, string(task.Type), string(task.Status),
		task.CreditsUsed, nullString(task.Error), result,
		utc(task.CreatedAt), utc(task.UpdatedAt), nullTime(task.StartedAt), nullTime(task.CompletedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %v", store.ErrWorkspaceNotFound, err)
		}
		log.Error("failed to create task",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("task", "create", "insert failed", MapError(err))
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("workspace_id", task.WorkspaceID.String()))
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *SQLTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, store.NewStoreError("task", "get", "query failed", MapError(err))
	}
	return task, nil
}

// ListByWorkspace implements store.TaskStore.ListByWorkspace
func (s *SQLTaskStore) ListByWorkspace(
	ctx context.Context,
	workspaceID uuid.UUID,
	limit int,
) ([]*domain.Task, error) {
	return s.query(ctx, "list_by_workspace", `
		SELECT `+taskColumns+` FROM tasks
		WHERE workspace_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, workspaceID, limit)
}

// FindOldest implements store.TaskStore.FindOldest
func (s *SQLTaskStore) FindOldest(ctx context.Context, status domain.TaskStatus) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1`, string(status))
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, store.NewStoreError("task", "find_oldest", "query failed", MapError(err))
	}
	return task, nil
}

// CountByStatus implements store.TaskStore.CountByStatus
func (s *SQLTaskStore) CountByStatus(ctx context.Context, statuses ...domain.TaskStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status IN (`+placeholders(1, len(statuses))+`)`,
		statusArgs(statuses)...,
	).Scan(&n)
	if err != nil {
		return 0, store.NewStoreError("task", "count", "query failed", MapError(err))
	}
	return n, nil
}

// CountByOwner implements store.TaskStore.CountByOwner
func (s *SQLTaskStore) CountByOwner(ctx context.Context, userID uuid.UUID) (map[domain.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.status, COUNT(*)
		FROM tasks t
		JOIN workspaces w ON w.id = t.workspace_id
		WHERE w.user_id = $1
		GROUP BY t.status`, userID)
	if err != nil {
		return nil, store.NewStoreError("task", "count_by_owner", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var (
			status domain.TaskStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, store.NewStoreError("task", "count_by_owner", "scan failed", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", "count_by_owner", "iteration failed", MapError(err))
	}
	return counts, nil
}

// Claim implements store.TaskStore.Claim. On a *sql.DB it opens its own
// transaction; on a transaction it joins the caller's.
func (s *SQLTaskStore) Claim(
	ctx context.Context,
	id uuid.UUID,
	startedAt time.Time,
	maxRunning int,
) (*domain.Task, error) {
	if db, ok := s.db.(*sql.DB); ok {
		var claimed *domain.Task
		err := store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			claimed, err = s.claim(ctx, tx, id, startedAt, maxRunning)
			return err
		})
		return claimed, err
	}
	return s.claim(ctx, s.db, id, startedAt, maxRunning)
}

func (s *SQLTaskStore) claim(
	ctx context.Context,
	db store.DBTX,
	id uuid.UUID,
	startedAt time.Time,
	maxRunning int,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	// Taking the lock row serializes claims until the transaction ends.
	if _, err := db.ExecContext(ctx, `UPDATE admission_lock SET epoch = epoch + 1 WHERE id = 1`); err != nil {
		return nil, store.NewStoreError("task", "claim", "lock failed", MapError(err))
	}

	var running int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status IN (`+placeholders(1, len(domain.RunningStatuses))+`)`,
		statusArgs(domain.RunningStatuses)...,
	).Scan(&running)
	if err != nil {
		return nil, store.NewStoreError("task", "claim", "count failed", MapError(err))
	}
	if running >= maxRunning {
		log.Debug("claim refused at capacity",
			slog.String("task_id", id.String()),
			slog.Int("running", running),
			slog.Int("max_running", maxRunning))
		return nil, store.ErrCapacityReached
	}

	res, err := db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $2, started_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4`,
		id, string(domain.TaskStatusPlanning), utc(startedAt), string(domain.TaskStatusQueued))
	if err != nil {
		return nil, store.NewStoreError("task", "claim", "update failed", MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, store.NewStoreError("task", "claim", "rows affected", err)
	}
	if n == 0 {
		current, err := s.currentStatus(ctx, db, id)
		if err != nil {
			return nil, err
		}
		return nil, &store.ConflictError{TaskID: id, Current: current}
	}

	return (&SQLTaskStore{db: db, logger: s.logger}).GetByID(ctx, id)
}

func (s *SQLTaskStore) currentStatus(ctx context.Context, db store.DBTX, id uuid.UUID) (domain.TaskStatus, error) {
	var status domain.TaskStatus
	err := db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrTaskNotFound
		}
		return "", store.NewStoreError("task", "get_status", "query failed", MapError(err))
	}
	return status, nil
}

// CompareAndUpdate implements store.TaskStore.CompareAndUpdate
func (s *SQLTaskStore) CompareAndUpdate(
	ctx context.Context,
	id uuid.UUID,
	expected []domain.TaskStatus,
	mutate store.TaskMutation,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var current *domain.Task
	for attempt := 0; attempt < casAttempts; attempt++ {
		var err error
		current, err = s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(expected, current.Status) {
			return nil, &store.ConflictError{TaskID: id, Current: current.Status}
		}

		next := *current
		if err := mutate(&next); err != nil {
			return nil, err
		}
		if next.CreditsUsed < current.CreditsUsed {
			return nil, fmt.Errorf("%w: credits_used cannot decrease", store.ErrInvalidEntity)
		}
		if err := next.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		result, err := encodeResult(next.Result)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE tasks
			SET status = $3, credits_used = $4, error = $5, result = $6,
				updated_at = $7, started_at = $8, completed_at = $9
			WHERE id = $1 AND status = $2`,
			id, string(current.Status), string(next.Status), next.CreditsUsed,
			nullString(next.Error), result, utc(next.UpdatedAt),
			nullTime(next.StartedAt), nullTime(next.CompletedAt),
		)
		if err != nil {
			log.Error("failed to update task",
				slog.String("task_id", id.String()),
				slog.String("error", err.Error()))
			return nil, store.NewStoreError("task", "update", "update failed", MapError(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, store.NewStoreError("task", "update", "rows affected", err)
		}
		if n == 1 {
			next.UpdatedAt = utc(next.UpdatedAt)
			return &next, nil
		}

		log.Debug("task status moved during update, retrying",
			slog.String("task_id", id.String()),
			slog.String("observed_status", string(current.Status)),
			slog.Int("attempt", attempt+1))
	}

	status, err := s.currentStatus(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return nil, &store.ConflictError{TaskID: id, Current: status}
}

// ListStale implements store.TaskStore.ListStale
func (s *SQLTaskStore) ListStale(
	ctx context.Context,
	statuses []domain.TaskStatus,
	cutoff time.Time,
) ([]*domain.Task, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := append([]any{utc(cutoff)}, statusArgs(statuses)...)
	return s.query(ctx, "list_stale", `
		SELECT `+taskColumns+` FROM tasks
		WHERE updated_at < $1 AND status IN (`+placeholders(2, len(statuses))+`)
		ORDER BY updated_at ASC, id ASC`, args...)
}

func (s *SQLTaskStore) query(ctx context.Context, op, query string, args ...any) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", slog.String("operation", op), slog.String("error", err.Error()))
		return nil, store.NewStoreError("task", op, "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, store.NewStoreError("task", op, "scan failed", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", op, "iteration failed", MapError(err))
	}
	return tasks, nil
}
