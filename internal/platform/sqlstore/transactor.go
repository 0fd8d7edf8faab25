package sqlstore

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/taskforge/internal/store"
)

// Stores returns every store bound to db.
func Stores(db store.DBTX, logger *slog.Logger) store.Stores {
	return store.Stores{
		Tasks:  NewSQLTaskStore(db, logger),
		Users:  NewSQLUserStore(db, logger),
		Ledger: NewSQLLedgerStore(db, logger),
		Audit:  NewSQLAuditStore(db, logger),
	}
}

// Transactor implements store.Transactor on a *sql.DB.
type Transactor struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTransactor creates a Transactor.
func NewTransactor(db *sql.DB, logger *slog.Logger) *Transactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transactor{db: db, logger: logger}
}

// Ensure Transactor implements store.Transactor interface
var _ store.Transactor = (*Transactor)(nil)

// Within implements store.Transactor.Within
func (t *Transactor) Within(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error {
	return store.RunInTransaction(ctx, t.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, Stores(tx, t.logger))
	})
}
