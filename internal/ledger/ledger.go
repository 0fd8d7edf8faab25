package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

// Reconciliation compares a user's live balance with the ledger.
type Reconciliation struct {
	UserID         uuid.UUID `json:"user_id"`
	Balance        int64     `json:"balance"`
	OpeningBalance int64     `json:"opening_balance"`
	LedgerSum      int64     `json:"ledger_sum"`
	Consistent     bool      `json:"consistent"`
}

// UsageSummary is the read-only reporting view of a user's credits.
type UsageSummary struct {
	UserID        uuid.UUID                 `json:"user_id"`
	Plan          domain.Plan               `json:"plan"`
	Balance       int64                     `json:"balance"`
	PeriodStart   time.Time                 `json:"period_start"`
	Spent         int64                     `json:"spent"`
	Granted       int64                     `json:"granted"`
	Debits        int                       `json:"debits"`
	TasksByStatus map[domain.TaskStatus]int `json:"tasks_by_status"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now as the source of entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service applies debits and grants and reports on the ledger.
type Service struct {
	users  store.UserStore
	ledger store.LedgerStore
	tasks  store.TaskStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a ledger service over the given stores.
func NewService(stores store.Stores, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		users:  stores.Users,
		ledger: stores.Ledger,
		tasks:  stores.Tasks,
		logger: logger.With(slog.String("component", "ledger")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithStores returns a copy of the service bound to stores, typically the
// stores of an enclosing transaction.
func (s *Service) WithStores(stores store.Stores) *Service {
	c := *s
	c.users = stores.Users
	c.ledger = stores.Ledger
	c.tasks = stores.Tasks
	return &c
}

// Debit removes amount credits from the user's balance and records the
// entry. It is never retried: a failure leaves the balance untouched.
func (s *Service) Debit(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason string,
	taskID *uuid.UUID,
) (*domain.CreditEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	entry, err := s.ledger.Debit(ctx, userID, amount, reason, taskID, s.now().UTC())
	if err != nil {
		err = mapStoreError(err)
		if errors.Is(err, ErrInsufficientCredits) {
			log.Info("debit refused",
				slog.String("user_id", userID.String()),
				slog.Int64("amount", amount))
		}
		return nil, err
	}

	log.Info("credits debited",
		slog.String("user_id", userID.String()),
		slog.Int64("amount", amount),
		slog.Int64("balance", entry.Balance),
		slog.String("reason", reason))
	return entry, nil
}

// Grant adds amount credits to the user's balance and records the entry.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, amount int64, reason string) (*domain.CreditEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	entry, err := s.ledger.Grant(ctx, userID, amount, reason, s.now().UTC())
	if err != nil {
		return nil, mapStoreError(err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("credits granted",
		slog.String("user_id", userID.String()),
		slog.Int64("amount", amount),
		slog.Int64("balance", entry.Balance),
		slog.String("reason", reason))
	return entry, nil
}

// Balance returns the user's live balance.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, mapStoreError(err)
	}
	return user.Credits, nil
}

// History returns the user's most recent ledger entries, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CreditEntry, error) {
	entries, err := s.ledger.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return entries, nil
}

// Reconcile checks that the balance equals the opening balance plus the sum
// of every ledger amount. An inconsistency is reported, not repaired.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (Reconciliation, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Reconciliation{}, mapStoreError(err)
	}
	sum, err := s.ledger.Sum(ctx, userID)
	if err != nil {
		return Reconciliation{}, mapStoreError(err)
	}

	r := Reconciliation{
		UserID:         userID,
		Balance:        user.Credits,
		OpeningBalance: user.OpeningCredits,
		LedgerSum:      sum,
		Consistent:     user.Credits == user.OpeningCredits+sum,
	}
	if !r.Consistent {
		logger.FromContextOrDefault(ctx, s.logger).Error("ledger out of balance",
			slog.String("user_id", userID.String()),
			slog.Int64("balance", r.Balance),
			slog.Int64("opening_balance", r.OpeningBalance),
			slog.Int64("ledger_sum", r.LedgerSum))
	}
	return r, nil
}

// Usage summarizes the user's spending for the current calendar month and
// the status of every task they own.
func (s *Service) Usage(ctx context.Context, userID uuid.UUID) (UsageSummary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UsageSummary{}, mapStoreError(err)
	}

	now := s.now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	totals, err := s.ledger.Totals(ctx, userID, periodStart)
	if err != nil {
		return UsageSummary{}, mapStoreError(err)
	}
	counts, err := s.tasks.CountByOwner(ctx, userID)
	if err != nil {
		return UsageSummary{}, mapStoreError(err)
	}

	return UsageSummary{
		UserID:        userID,
		Plan:          user.Plan,
		Balance:       user.Credits,
		PeriodStart:   periodStart,
		Spent:         totals.Spent,
		Granted:       totals.Granted,
		Debits:        totals.Debits,
		TasksByStatus: counts,
	}, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		return fmt.Errorf("%w: %v", ErrInsufficientCredits, err)
	case errors.Is(err, store.ErrUserNotFound):
		return fmt.Errorf("%w: %v", ErrUserNotFound, err)
	case errors.Is(err, store.ErrTaskAlreadyCharged):
		return fmt.Errorf("%w: %v", ErrAlreadyCharged, err)
	default:
		return err
	}
}
