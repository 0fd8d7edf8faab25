package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

const userColumns = `id, email, plan, credits, opening_credits, created_at, updated_at`

// SQLUserStore implements the store.UserStore interface.
type SQLUserStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSQLUserStore creates a user store on a connection or transaction.
// If logger is nil, a default logger will be used.
func NewSQLUserStore(db store.DBTX, logger *slog.Logger) *SQLUserStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLUserStore{
		db:     db,
		logger: logger.With(slog.String("component", "user_store")),
	}
}

// Ensure SQLUserStore implements store.UserStore interface
var _ store.UserStore = (*SQLUserStore)(nil)

// WithTx implements store.UserStore.WithTx
func (s *SQLUserStore) WithTx(tx *sql.Tx) store.UserStore {
	return &SQLUserStore{db: tx, logger: s.logger}
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Plan, &u.Credits, &u.OpeningCredits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// Create implements store.UserStore.Create
func (s *SQLUserStore) Create(ctx context.Context, user *domain.User) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, string(user.Plan), user.Credits, user.OpeningCredits,
		utc(user.CreatedAt), utc(user.UpdatedAt),
	)
	if err != nil {
		if isDuplicate(err) {
			log.Debug("user email already exists", slog.String("user_id", user.ID.String()))
			return store.ErrEmailExists
		}
		log.Error("failed to create user",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("user", "create", "insert failed", MapError(err))
	}
	return nil
}

// GetByID implements store.UserStore.GetByID
func (s *SQLUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.getOne(ctx, "get", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail implements store.UserStore.GetByEmail
func (s *SQLUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getOne(ctx, "get_by_email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetWorkspaceOwner implements store.UserStore.GetWorkspaceOwner
func (s *SQLUserStore) GetWorkspaceOwner(ctx context.Context, workspaceID uuid.UUID) (*domain.User, error) {
	user, err := s.getOne(ctx, "get_workspace_owner", `
		SELECT u.id, u.email, u.plan, u.credits, u.opening_credits, u.created_at, u.updated_at
		FROM workspaces w
		JOIN users u ON u.id = w.user_id
		WHERE w.id = $1`, workspaceID)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, store.ErrWorkspaceNotFound
	}
	return user, err
}

func (s *SQLUserStore) getOne(ctx context.Context, op, query string, arg any) (*domain.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, store.NewStoreError("user", op, "query failed", MapError(err))
	}
	return user, nil
}

// CreateWorkspace implements store.UserStore.CreateWorkspace
func (s *SQLUserStore) CreateWorkspace(ctx context.Context, ws *domain.Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, user_id, name, created_at)
		VALUES ($1, $2, $3, $4)`,
		ws.ID, ws.UserID, ws.Name, utc(ws.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrUserNotFound
		}
		return store.NewStoreError("workspace", "create", "insert failed", MapError(err))
	}
	return nil
}

// GetWorkspace implements store.UserStore.GetWorkspace
func (s *SQLUserStore) GetWorkspace(ctx context.Context, id uuid.UUID) (*domain.Workspace, error) {
	var ws domain.Workspace
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at FROM workspaces WHERE id = $1`, id,
	).Scan(&ws.ID, &ws.UserID, &ws.Name, &ws.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWorkspaceNotFound
		}
		return nil, store.NewStoreError("workspace", "get", "query failed", MapError(err))
	}
	ws.CreatedAt = ws.CreatedAt.UTC()
	return &ws, nil
}
