package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/taskforge/internal/task"
)

// MockDispatcher implements task.Dispatcher for testing
type MockDispatcher struct {
	// SubmitFn allows test cases to mock the Submit behavior
	SubmitFn func(ctx context.Context, job task.Job) error

	// Err is returned when SubmitFn is not set
	Err error

	mu   sync.Mutex
	jobs []task.Job
}

// Submit implements the task.Dispatcher interface
func (m *MockDispatcher) Submit(ctx context.Context, job task.Job) error {
	m.mu.Lock()
	m.jobs = append(m.jobs, job)
	m.mu.Unlock()

	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, job)
	}
	return m.Err
}

// Jobs returns a copy of every job passed to Submit, in call order.
func (m *MockDispatcher) Jobs() []task.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]task.Job(nil), m.jobs...)
}

// Ensure MockDispatcher implements task.Dispatcher interface
var _ task.Dispatcher = (*MockDispatcher)(nil)
