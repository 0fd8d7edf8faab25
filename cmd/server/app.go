package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskforge/internal/audit"
	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/events"
	"github.com/phrazzld/taskforge/internal/ledger"
	"github.com/phrazzld/taskforge/internal/platform/sqlstore"
	"github.com/phrazzld/taskforge/internal/service/auth"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	stores store.Stores
	tx     store.Transactor

	jwtService auth.JWTService
	recorder   *audit.Recorder
	credits    *ledger.Service

	// Orchestration
	emitter    *events.InMemoryEventEmitter
	dispatcher task.Dispatcher
	machine    *task.Machine
	submitter  *task.Submitter
	admitter   *task.Admitter
	reconciler *task.Reconciler
	runner     *task.Runner

	// closers run in reverse order on cleanup.
	closers []func() error
}

// newApplication creates a new application instance with all dependencies initialized.
// The database must already be migrated. dispatcher receives the jobs of
// admitted tasks.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB, dispatcher task.Dispatcher) (*application, error) {
	app := &application{
		config:     cfg,
		logger:     logger,
		db:         db,
		dispatcher: dispatcher,
		stores:     sqlstore.Stores(db, logger),
		tx:         sqlstore.NewTransactor(db, logger),
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.recorder = audit.NewRecorder(app.stores.Audit, logger)
	app.credits = ledger.NewService(app.stores, logger)

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.machine = task.NewMachine(app.stores.Tasks, app.stores.Users, app.recorder, logger)
	app.submitter = task.NewSubmitter(app.stores.Tasks, app.stores.Users, app.emitter, logger)

	handoff := task.NewHandoff(dispatcher, app.stores.Tasks, logger)
	app.admitter = task.NewAdmitter(
		app.stores.Tasks,
		app.tx,
		app.credits,
		handoff,
		cfg.Orchestrator.MaxConcurrent,
		logger,
	)
	app.reconciler = task.NewReconciler(
		app.stores.Tasks,
		app.machine,
		app.recorder,
		cfg.Orchestrator.StaleAfter,
		logger,
	)
	app.runner = task.NewRunner(app.admitter, app.reconciler, task.RunnerConfig{
		AdmissionSchedule: cfg.Orchestrator.AdmissionSchedule,
		ReconcileSchedule: cfg.Orchestrator.ReconcileSchedule,
	}, logger)

	// A submitted task requests an admission cycle right away.
	app.emitter.RegisterHandler(task.NewAdmissionEventHandler(app.runner, logger))

	logger.Info("application initialized",
		slog.Int("max_concurrent", cfg.Orchestrator.MaxConcurrent),
		slog.Bool("reconcile_enabled", app.reconciler.Enabled()))
	return app, nil
}

// newWorker builds the execution side on top of the application's stores.
func (app *application) newWorker(executor task.Executor) *task.Worker {
	return task.NewWorker(app.stores.Tasks, app.machine, executor, app.config.Agent.Timeout, app.logger)
}

// onCleanup registers fn to run when the application shuts down.
func (app *application) onCleanup(fn func() error) {
	app.closers = append(app.closers, fn)
}

// cleanup releases resources in reverse order of acquisition and closes the
// database last.
func (app *application) cleanup() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error("cleanup failed", slog.String("error", err.Error()))
		}
	}
	app.closers = nil

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", slog.String("error", err.Error()))
		} else {
			app.logger.Debug("database connection closed")
		}
	}
}

// setup is the common prologue of every command that touches the database:
// configuration, logger, migrated database, and the wired application.
func setup(ctx context.Context, opts *rootOptions, dispatcher func(*config.Config, *slog.Logger) task.Dispatcher) (*application, error) {
	cfg, log, err := opts.bootstrap()
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	app, err := newApplication(cfg, log, db, dispatcher(cfg, log))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if c, ok := app.dispatcher.(interface{ Close() error }); ok {
		app.onCleanup(c.Close)
	}
	return app, nil
}
