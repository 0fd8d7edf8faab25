package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
)

// UserStore defines the interface for user and workspace persistence.
// Balances are never written here; see LedgerStore.
type UserStore interface {
	// Create saves a new user with its opening balance.
	// Returns ErrEmailExists if the email is already taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	// Returns ErrUserNotFound if the user does not exist.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// CreateWorkspace saves a new workspace.
	// Returns ErrUserNotFound if the owner does not exist.
	CreateWorkspace(ctx context.Context, ws *domain.Workspace) error

	// GetWorkspace retrieves a workspace by ID.
	// Returns ErrWorkspaceNotFound if it does not exist.
	GetWorkspace(ctx context.Context, id uuid.UUID) (*domain.Workspace, error)

	// GetWorkspaceOwner resolves the user that owns a workspace.
	// Returns ErrWorkspaceNotFound if the workspace does not exist.
	GetWorkspaceOwner(ctx context.Context, workspaceID uuid.UUID) (*domain.User, error)

	// WithTx returns a new UserStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) UserStore
}
