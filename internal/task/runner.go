package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/robfig/cron/v3"
)

// RunnerConfig holds the schedules of the background loops. Schedules use
// cron syntax or descriptors such as "@every 10s"; an empty schedule
// disables the loop.
type RunnerConfig struct {
	// AdmissionSchedule triggers admission cycles.
	AdmissionSchedule string

	// ReconcileSchedule triggers reconciliation sweeps. Ignored when the
	// reconciler is disabled.
	ReconcileSchedule string
}

// Runner triggers admission cycles and reconciliation sweeps in the
// background. Cycles run one at a time on the runner's goroutine; cycles
// started elsewhere, such as from the admin API, may overlap with them.
type Runner struct {
	admitter   *Admitter
	reconciler *Reconciler
	config     RunnerConfig
	cron       *cron.Cron
	trigger    chan struct{}
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewRunner creates a Runner. reconciler may be nil.
func NewRunner(admitter *Admitter, reconciler *Reconciler, config RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "runner"))
	cl := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		admitter:   admitter,
		reconciler: reconciler,
		config:     config,
		cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		trigger:    make(chan struct{}, 1),
		ctx:        ctx,
		cancelFunc: cancel,
		logger:     logger,
	}
}

// Start registers the schedules and starts the background loops.
func (r *Runner) Start() error {
	if r.config.AdmissionSchedule != "" {
		if _, err := r.cron.AddFunc(r.config.AdmissionSchedule, func() { r.Trigger() }); err != nil {
			return fmt.Errorf("invalid admission schedule %q: %w", r.config.AdmissionSchedule, err)
		}
	}
	if r.reconciler != nil && r.reconciler.Enabled() && r.config.ReconcileSchedule != "" {
		if _, err := r.cron.AddFunc(r.config.ReconcileSchedule, func() { r.Reconcile(r.ctx) }); err != nil {
			return fmt.Errorf("invalid reconcile schedule %q: %w", r.config.ReconcileSchedule, err)
		}
	}

	r.wg.Add(1)
	go r.loop()
	r.cron.Start()

	r.logger.Info("runner started",
		slog.String("admission_schedule", r.config.AdmissionSchedule),
		slog.String("reconcile_schedule", r.config.ReconcileSchedule),
		slog.Int("max_concurrent", r.admitter.MaxConcurrent()))
	return nil
}

// Stop waits for scheduled jobs in progress, then stops the loops. A cycle
// caught mid-dispatch fails its task rather than leaving it running.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.cancelFunc()
	r.wg.Wait()
	r.logger.Info("runner stopped")
}

// Trigger requests an admission cycle without waiting for it. A request
// made while another is pending is coalesced with it. Reports whether the
// request was queued.
func (r *Runner) Trigger() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunCycle runs one admission cycle and logs its outcome.
func (r *Runner) RunCycle(ctx context.Context) (*Admission, error) {
	admission, err := r.admitter.AdmitNext(ctx)
	if err != nil {
		r.logger.Error("admission cycle failed", slog.String("error", err.Error()))
		return nil, err
	}
	if admission != nil {
		attrs := []any{
			slog.String("task_id", admission.Task.ID.String()),
			slog.String("outcome", string(admission.Outcome)),
			slog.String("status", string(admission.Task.Status)),
		}
		if admission.Err != nil {
			attrs = append(attrs, slog.String("error", admission.Err.Error()))
		}
		r.logger.Info("admission cycle completed", attrs...)
	}
	return admission, nil
}

// Reconcile runs one reconciliation sweep.
func (r *Runner) Reconcile(ctx context.Context) []*domain.Task {
	if r.reconciler == nil {
		return nil
	}
	failed, err := r.reconciler.Sweep(ctx)
	if err != nil {
		r.logger.Error("reconciliation sweep failed", slog.String("error", err.Error()))
		return nil
	}
	if len(failed) > 0 {
		r.logger.Warn("abandoned stale tasks", slog.Int("count", len(failed)))
	}
	return failed
}

func (r *Runner) loop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.trigger:
			_, _ = r.RunCycle(r.ctx)
		}
	}
}

// cronLogger adapts cron.Logger to slog.
type cronLogger struct {
	logger *slog.Logger
}

// Info logs at debug: cron reports every wake-up and job start through it.
func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
