// Package main implements the taskforge binary: the HTTP API with its
// admission scheduler, the execution worker, and the operator commands used
// to run the orchestrator by hand.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/platform/sqlstore"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "taskforge",
		Short:        "Credit-metered orchestrator for agent tasks",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"config file (default ./taskforge.yaml if present)")

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
		newAdmitCmd(opts),
		newReconcileCmd(opts),
		newKillCmd(opts),
		newGrantCmd(opts),
		newUserCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

// bootstrap loads the configuration and installs the process logger.
func (o *rootOptions) bootstrap() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Debug("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Int("max_concurrent", cfg.Orchestrator.MaxConcurrent),
		slog.Bool("agent_key_present", cfg.Agent.GeminiAPIKey != ""))
	return cfg, log, nil
}

// openDatabase connects to the configured database and applies pending
// migrations. SQLite databases are frequently fresh files, so the server and
// the operator commands both migrate on start.
func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sqlstore.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.Migrate(ctx, db, cfg.Database.Driver, "up", log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return db, nil
}
