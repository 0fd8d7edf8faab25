package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/taskforge/internal/domain"
)

// AuditStore defines the interface for the append-only audit log.
type AuditStore interface {
	// Append saves a new audit entry. Entries are never updated.
	Append(ctx context.Context, entry *domain.AuditEntry) error

	// ListByTarget returns entries for target, newest first.
	ListByTarget(ctx context.Context, target string, limit int) ([]*domain.AuditEntry, error)

	// ListRecent returns the newest entries across all targets.
	ListRecent(ctx context.Context, limit int) ([]*domain.AuditEntry, error)

	// WithTx returns a new AuditStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) AuditStore
}
