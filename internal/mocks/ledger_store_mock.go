package mocks

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/stretchr/testify/mock"
)

// TestifyMockLedgerStore is a mock of store.LedgerStore interface for use with testify/mock
type TestifyMockLedgerStore struct {
	mock.Mock
}

// Debit is a mock implementation of store.LedgerStore.Debit
func (m *TestifyMockLedgerStore) Debit(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason string,
	taskID *uuid.UUID,
	at time.Time,
) (*domain.CreditEntry, error) {
	args := m.Called(ctx, userID, amount, reason, taskID, at)
	if entry, ok := args.Get(0).(*domain.CreditEntry); ok {
		return entry, args.Error(1)
	}
	return nil, args.Error(1)
}

// Grant is a mock implementation of store.LedgerStore.Grant
func (m *TestifyMockLedgerStore) Grant(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason string,
	at time.Time,
) (*domain.CreditEntry, error) {
	args := m.Called(ctx, userID, amount, reason, at)
	if entry, ok := args.Get(0).(*domain.CreditEntry); ok {
		return entry, args.Error(1)
	}
	return nil, args.Error(1)
}

// ListByUser is a mock implementation of store.LedgerStore.ListByUser
func (m *TestifyMockLedgerStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CreditEntry, error) {
	args := m.Called(ctx, userID, limit)
	if entries, ok := args.Get(0).([]*domain.CreditEntry); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

// ListByTask is a mock implementation of store.LedgerStore.ListByTask
func (m *TestifyMockLedgerStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.CreditEntry, error) {
	args := m.Called(ctx, taskID)
	if entries, ok := args.Get(0).([]*domain.CreditEntry); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

// Sum is a mock implementation of store.LedgerStore.Sum
func (m *TestifyMockLedgerStore) Sum(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// Totals is a mock implementation of store.LedgerStore.Totals
func (m *TestifyMockLedgerStore) Totals(ctx context.Context, userID uuid.UUID, since time.Time) (store.LedgerTotals, error) {
	args := m.Called(ctx, userID, since)
	return args.Get(0).(store.LedgerTotals), args.Error(1)
}

// WithTx is a mock implementation of store.LedgerStore.WithTx
func (m *TestifyMockLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return m
}

// Ensure TestifyMockLedgerStore implements store.LedgerStore interface
var _ store.LedgerStore = (*TestifyMockLedgerStore)(nil)
