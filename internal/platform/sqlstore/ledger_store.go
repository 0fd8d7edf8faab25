package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

const creditColumns = `id, user_id, amount, balance, reason, task_id, created_at`

// SQLLedgerStore implements the store.LedgerStore interface.
type SQLLedgerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSQLLedgerStore creates a ledger store on a connection or transaction.
// If logger is nil, a default logger will be used.
func NewSQLLedgerStore(db store.DBTX, logger *slog.Logger) *SQLLedgerStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLLedgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "ledger_store")),
	}
}

// Ensure SQLLedgerStore implements store.LedgerStore interface
var _ store.LedgerStore = (*SQLLedgerStore)(nil)

// WithTx implements store.LedgerStore.WithTx
func (s *SQLLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return &SQLLedgerStore{db: tx, logger: s.logger}
}

// Debit implements store.LedgerStore.Debit. The balance check and the
// decrement are one conditional UPDATE; on a *sql.DB the update and the
// ledger insert share a transaction of their own.
func (s *SQLLedgerStore) Debit(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason string,
	taskID *uuid.UUID,
	at time.Time,
) (*domain.CreditEntry, error) {
	return s.apply(ctx, "debit", userID, -amount, reason, taskID, at)
}

// Grant implements store.LedgerStore.Grant
func (s *SQLLedgerStore) Grant(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason string,
	at time.Time,
) (*domain.CreditEntry, error) {
	return s.apply(ctx, "grant", userID, amount, reason, nil, at)
}

func (s *SQLLedgerStore) apply(
	ctx context.Context,
	op string,
	userID uuid.UUID,
	delta int64,
	reason string,
	taskID *uuid.UUID,
	at time.Time,
) (*domain.CreditEntry, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: amount must be non-zero", store.ErrInvalidEntity)
	}
	if db, ok := s.db.(*sql.DB); ok {
		var entry *domain.CreditEntry
		err := store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			entry, err = s.applyIn(ctx, tx, op, userID, delta, reason, taskID, at)
			return err
		})
		return entry, err
	}
	return s.applyIn(ctx, s.db, op, userID, delta, reason, taskID, at)
}

func (s *SQLLedgerStore) applyIn(
	ctx context.Context,
	db store.DBTX,
	op string,
	userID uuid.UUID,
	delta int64,
	reason string,
	taskID *uuid.UUID,
	at time.Time,
) (*domain.CreditEntry, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	at = utc(at)

	// For a debit the guard credits >= -delta refuses to overdraw; for a
	// grant it always holds.
	var balance int64
	err := db.QueryRowContext(ctx, `
		UPDATE users
		SET credits = credits + $2, updated_at = $3
		WHERE id = $1 AND credits + $2 >= 0
		RETURNING credits`,
		userID, delta, at,
	).Scan(&balance)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Error("failed to update balance",
				slog.String("operation", op),
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()))
			return nil, store.NewStoreError("credit_history", op, "balance update failed", MapError(err))
		}
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1`, userID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		if err != nil {
			return nil, store.NewStoreError("credit_history", op, "user lookup failed", MapError(err))
		}
		return nil, store.ErrInsufficientBalance
	}

	entry := &domain.CreditEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    delta,
		Balance:   balance,
		Reason:    reason,
		TaskID:    taskID,
		CreatedAt: at,
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO credit_history (`+creditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.Amount, entry.Balance, entry.Reason,
		nullUUID(entry.TaskID), entry.CreatedAt,
	)
	if err != nil {
		if isDuplicate(err) && taskID != nil {
			return nil, store.ErrTaskAlreadyCharged
		}
		log.Error("failed to append ledger entry",
			slog.String("operation", op),
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("credit_history", op, "insert failed", MapError(err))
	}

	log.Debug("ledger entry appended",
		slog.String("operation", op),
		slog.String("user_id", userID.String()),
		slog.Int64("amount", delta),
		slog.Int64("balance", balance))
	return entry, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func scanCreditEntry(row rowScanner) (*domain.CreditEntry, error) {
	var (
		e      domain.CreditEntry
		taskID uuid.NullUUID
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Amount, &e.Balance, &e.Reason, &taskID, &e.CreatedAt); err != nil {
		return nil, err
	}
	if taskID.Valid {
		id := taskID.UUID
		e.TaskID = &id
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// ListByUser implements store.LedgerStore.ListByUser
func (s *SQLLedgerStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CreditEntry, error) {
	return s.query(ctx, "list_by_user", `
		SELECT `+creditColumns+` FROM credit_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
}

// ListByTask implements store.LedgerStore.ListByTask
func (s *SQLLedgerStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.CreditEntry, error) {
	return s.query(ctx, "list_by_task", `
		SELECT `+creditColumns+` FROM credit_history
		WHERE task_id = $1
		ORDER BY created_at ASC, id ASC`, taskID)
}

func (s *SQLLedgerStore) query(ctx context.Context, op, query string, args ...any) ([]*domain.CreditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("credit_history", op, "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var entries []*domain.CreditEntry
	for rows.Next() {
		e, err := scanCreditEntry(rows)
		if err != nil {
			return nil, store.NewStoreError("credit_history", op, "scan failed", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("credit_history", op, "iteration failed", MapError(err))
	}
	return entries, nil
}

// Sum implements store.LedgerStore.Sum
func (s *SQLLedgerStore) Sum(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM credit_history WHERE user_id = $1`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, store.NewStoreError("credit_history", "sum", "query failed", MapError(err))
	}
	return sum, nil
}

// Totals implements store.LedgerStore.Totals
func (s *SQLLedgerStore) Totals(ctx context.Context, userID uuid.UUID, since time.Time) (store.LedgerTotals, error) {
	var totals store.LedgerTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			CAST(COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0) AS BIGINT),
			CAST(COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0) AS BIGINT),
			COUNT(CASE WHEN amount < 0 THEN 1 END)
		FROM credit_history
		WHERE user_id = $1 AND created_at >= $2`,
		userID, utc(since),
	).Scan(&totals.Spent, &totals.Granted, &totals.Debits)
	if err != nil {
		return store.LedgerTotals{}, store.NewStoreError("credit_history", "totals", "query failed", MapError(err))
	}
	return totals, nil
}
