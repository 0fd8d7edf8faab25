package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

// Executor runs the agent work of a task.
type Executor interface {
	// Plan produces the plan recorded when a task moves to EXECUTING.
	Plan(ctx context.Context, t *domain.Task) (json.RawMessage, error)

	// Execute carries out the plan and returns the task's output.
	Execute(ctx context.Context, t *domain.Task, plan json.RawMessage) (json.RawMessage, error)
}

// Worker executes dispatched jobs and resolves their tasks.
type Worker struct {
	tasks    store.TaskStore
	machine  *Machine
	executor Executor
	timeout  time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. A positive timeout bounds the executor calls
// for a single job.
func NewWorker(
	tasks store.TaskStore,
	machine *Machine,
	executor Executor,
	timeout time.Duration,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		tasks:    tasks,
		machine:  machine,
		executor: executor,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "worker")),
	}
}

// Handle runs one job. Execution errors are recorded on the task and are
// not returned; a returned error means the outcome could not be written.
// A task that is no longer running, for example because it was killed, is
// skipped, and an outcome arriving after a kill is discarded.
func (w *Worker) Handle(ctx context.Context, job Job) error {
	log := logger.FromContextOrDefault(ctx, w.logger).With(slog.String("task_id", job.TaskID.String()))

	t, err := w.tasks.GetByID(ctx, job.TaskID)
	if errors.Is(err, store.ErrTaskNotFound) {
		log.Warn("job references unknown task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task %s: %w", job.TaskID, err)
	}
	if !t.Status.IsRunning() {
		log.Info("skipping task that is no longer running", slog.String("status", string(t.Status)))
		return nil
	}

	execCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	if t.Status == domain.TaskStatusPlanning {
		plan, err := w.executor.Plan(execCtx, t)
		if err != nil {
			return w.fail(ctx, log, t, "Planning failed: "+err.Error())
		}
		t, err = w.machine.Advance(ctx, t.ID, plan)
		if errors.Is(err, ErrInvalidState) {
			log.Info("task left running state during planning")
			return nil
		}
		if err != nil {
			return err
		}
	}

	var plan json.RawMessage
	if t.Result != nil && t.Result.Kind == domain.ResultKindPartial {
		plan = t.Result.Output
	}

	started := time.Now()
	output, err := w.executor.Execute(execCtx, t, plan)
	if err != nil {
		return w.fail(ctx, log, t, err.Error())
	}

	_, err = w.machine.Succeed(ctx, t.ID, output)
	if errors.Is(err, ErrInvalidState) {
		log.Info("discarding outcome of task that is no longer running")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("task execution succeeded", slog.Duration("duration", time.Since(started)))
	return nil
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, t *domain.Task, message string) error {
	log.Error("task execution failed", slog.String("error", message))
	_, err := w.machine.Fail(ctx, t.ID, message)
	if errors.Is(err, ErrInvalidState) {
		log.Info("discarding failure of task that is no longer running")
		return nil
	}
	return err
}
