package store

import (
	"context"
	"database/sql"
)

// DBTX is an interface that abstracts the database access layer.
// It is implemented by both *sql.DB and *sql.Tx, allowing store code
// to work with either a database connection or a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Stores bundles the stores an operation needs, all bound to the same
// connection or transaction.
type Stores struct {
	Tasks  TaskStore
	Users  UserStore
	Ledger LedgerStore
	Audit  AuditStore
}

// Transactor runs fn with a set of stores bound to a single transaction.
// The transaction commits if fn returns nil and rolls back otherwise.
type Transactor interface {
	Within(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
