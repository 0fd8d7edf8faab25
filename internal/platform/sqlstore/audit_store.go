package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

const auditColumns = `id, action, actor, target, details, created_at`

// SQLAuditStore implements the store.AuditStore interface.
type SQLAuditStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSQLAuditStore creates an audit store on a connection or transaction.
// If logger is nil, a default logger will be used.
func NewSQLAuditStore(db store.DBTX, logger *slog.Logger) *SQLAuditStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLAuditStore{
		db:     db,
		logger: logger.With(slog.String("component", "audit_store")),
	}
}

// Ensure SQLAuditStore implements store.AuditStore interface
var _ store.AuditStore = (*SQLAuditStore)(nil)

// WithTx implements store.AuditStore.WithTx
func (s *SQLAuditStore) WithTx(tx *sql.Tx) store.AuditStore {
	return &SQLAuditStore{db: tx, logger: s.logger}
}

// Append implements store.AuditStore.Append
func (s *SQLAuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	details := entry.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	if !json.Valid(details) {
		return fmt.Errorf("%w: audit details are not valid JSON", store.ErrInvalidEntity)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Action, entry.Actor, entry.Target, string(details), utc(entry.CreatedAt),
	)
	if err != nil {
		log.Error("failed to append audit entry",
			slog.String("action", entry.Action),
			slog.String("target", entry.Target),
			slog.String("error", err.Error()))
		return store.NewStoreError("audit_log", "append", "insert failed", MapError(err))
	}
	return nil
}

// ListByTarget implements store.AuditStore.ListByTarget
func (s *SQLAuditStore) ListByTarget(ctx context.Context, target string, limit int) ([]*domain.AuditEntry, error) {
	return s.query(ctx, "list_by_target", `
		SELECT `+auditColumns+` FROM audit_log
		WHERE target = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, target, limit)
}

// ListRecent implements store.AuditStore.ListRecent
func (s *SQLAuditStore) ListRecent(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	return s.query(ctx, "list_recent", `
		SELECT `+auditColumns+` FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
}

func (s *SQLAuditStore) query(ctx context.Context, op, query string, args ...any) ([]*domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("audit_log", op, "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			details string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &e.Target, &details, &e.CreatedAt); err != nil {
			return nil, store.NewStoreError("audit_log", op, "scan failed", err)
		}
		e.Details = json.RawMessage(details)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("audit_log", op, "iteration failed", MapError(err))
	}
	return entries, nil
}
