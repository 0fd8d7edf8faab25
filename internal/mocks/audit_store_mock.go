package mocks

import (
	"context"
	"database/sql"

	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/stretchr/testify/mock"
)

// TestifyMockAuditStore is a mock of store.AuditStore interface for use with testify/mock
type TestifyMockAuditStore struct {
	mock.Mock
}

// Append is a mock implementation of store.AuditStore.Append
func (m *TestifyMockAuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// ListByTarget is a mock implementation of store.AuditStore.ListByTarget
func (m *TestifyMockAuditStore) ListByTarget(ctx context.Context, target string, limit int) ([]*domain.AuditEntry, error) {
	args := m.Called(ctx, target, limit)
	if entries, ok := args.Get(0).([]*domain.AuditEntry); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

// ListRecent is a mock implementation of store.AuditStore.ListRecent
func (m *TestifyMockAuditStore) ListRecent(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	args := m.Called(ctx, limit)
	if entries, ok := args.Get(0).([]*domain.AuditEntry); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

// WithTx is a mock implementation of store.AuditStore.WithTx
func (m *TestifyMockAuditStore) WithTx(tx *sql.Tx) store.AuditStore {
	return m
}

// Ensure TestifyMockAuditStore implements store.AuditStore interface
var _ store.AuditStore = (*TestifyMockAuditStore)(nil)
