package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
)

// LedgerTotals aggregates a user's ledger rows.
type LedgerTotals struct {
	Spent   int64 // sum of debit magnitudes
	Granted int64 // sum of grants
	Debits  int   // number of debit rows
}

// LedgerStore defines the interface for the append-only credit ledger and
// the denormalized balance it backs.
type LedgerStore interface {
	// Debit decrements the user's balance by amount and appends a ledger row
	// with the resulting balance, as one conditional operation. The balance
	// is only decremented if it is at least amount; otherwise
	// ErrInsufficientBalance is returned and nothing is written.
	// Returns ErrTaskAlreadyCharged if taskID already has a ledger row, and
	// ErrUserNotFound if the user does not exist.
	Debit(
		ctx context.Context,
		userID uuid.UUID,
		amount int64,
		reason string,
		taskID *uuid.UUID,
		at time.Time,
	) (*domain.CreditEntry, error)

	// Grant increments the user's balance by amount and appends a ledger row.
	// Returns ErrUserNotFound if the user does not exist.
	Grant(ctx context.Context, userID uuid.UUID, amount int64, reason string, at time.Time) (*domain.CreditEntry, error)

	// ListByUser returns the user's ledger rows, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CreditEntry, error)

	// ListByTask returns every ledger row that references taskID.
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.CreditEntry, error)

	// Sum returns the sum of all ledger amounts for the user.
	Sum(ctx context.Context, userID uuid.UUID) (int64, error)

	// Totals aggregates the user's ledger rows created at or after since.
	Totals(ctx context.Context, userID uuid.UUID, since time.Time) (LedgerTotals, error)

	// WithTx returns a new LedgerStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) LedgerStore
}
