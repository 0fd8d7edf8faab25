package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/platform/agent"
	"github.com/phrazzld/taskforge/internal/platform/queue"
	"github.com/phrazzld/taskforge/internal/task"
	"github.com/spf13/cobra"
)

// queueDispatcher hands admitted tasks to the asynq queue.
func queueDispatcher(cfg *config.Config, log *slog.Logger) task.Dispatcher {
	return queue.NewClient(cfg.Queue, log)
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the admission scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := setup(ctx, opts, queueDispatcher)
			if err != nil {
				return err
			}

			if withWorker {
				if err := app.startWorker(ctx); err != nil {
					app.cleanup()
					return err
				}
			}

			if err := app.runner.Start(); err != nil {
				app.cleanup()
				return err
			}
			app.onCleanup(func() error {
				app.runner.Stop()
				return nil
			})

			return app.startHTTPServer(ctx, app.setupRouter())
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false,
		"also consume execution jobs in this process")
	return cmd
}

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume execution jobs from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := setup(ctx, opts, queueDispatcher)
			if err != nil {
				return err
			}
			defer app.cleanup()

			if err := app.startWorker(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			app.logger.Info("shutting down worker")
			return nil
		},
	}
}

// startWorker starts a queue server that executes jobs with the configured
// agent. The server is shut down on cleanup.
func (app *application) startWorker(ctx context.Context) error {
	executor, err := agent.New(ctx, app.config.Agent, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}

	srv := queue.NewServer(app.config.Queue, app.newWorker(executor), app.logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start queue server: %w", err)
	}
	app.onCleanup(func() error {
		srv.Shutdown()
		return nil
	})
	return nil
}

// startHTTPServer serves router until ctx is canceled, then shuts the
// server down gracefully and releases the application's resources.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", slog.Int("port", app.config.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("server failed", slog.String("error", err.Error()))
			serveErr <- err
			cancelServer()
		}
	}()

	<-serverCtx.Done()
	app.logger.Info("shutting down server")

	timeout := app.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	app.cleanup()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	default:
	}
	if shutdownErr != nil {
		return fmt.Errorf("server shutdown failed: %w", shutdownErr)
	}
	app.logger.Info("server stopped")
	return nil
}
