package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/task"
)

// MockExecutor implements task.Executor for testing
type MockExecutor struct {
	// PlanFn allows test cases to mock the Plan behavior
	PlanFn func(ctx context.Context, t *domain.Task) (json.RawMessage, error)

	// ExecuteFn allows test cases to mock the Execute behavior
	ExecuteFn func(ctx context.Context, t *domain.Task, plan json.RawMessage) (json.RawMessage, error)

	// Default responses used when the functions are not set
	PlanResult json.RawMessage
	Output     json.RawMessage
	PlanErr    error
	ExecErr    error

	mu           sync.Mutex
	planCalls    int
	executeCalls int
}

// Plan implements the task.Executor interface
func (m *MockExecutor) Plan(ctx context.Context, t *domain.Task) (json.RawMessage, error) {
	m.mu.Lock()
	m.planCalls++
	m.mu.Unlock()

	if m.PlanFn != nil {
		return m.PlanFn(ctx, t)
	}
	return m.PlanResult, m.PlanErr
}

// Execute implements the task.Executor interface
func (m *MockExecutor) Execute(ctx context.Context, t *domain.Task, plan json.RawMessage) (json.RawMessage, error) {
	m.mu.Lock()
	m.executeCalls++
	m.mu.Unlock()

	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, t, plan)
	}
	return m.Output, m.ExecErr
}

// CallCounts returns how many times Plan and Execute were called.
func (m *MockExecutor) CallCounts() (plan, execute int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.planCalls, m.executeCalls
}

// Ensure MockExecutor implements task.Executor interface
var _ task.Executor = (*MockExecutor)(nil)
