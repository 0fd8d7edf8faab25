package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskforge/internal/platform/sqlstore"
	"github.com/spf13/cobra"
)

var migrationCommands = []string{"up", "down", "reset", "status", "version"}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|reset|status|version]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.bootstrap()
			if err != nil {
				return err
			}

			// Open without migrating; the command itself decides what runs.
			db, err := sqlstore.Open(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					log.Error("failed to close database connection", slog.String("error", err.Error()))
				}
			}()

			if err := sqlstore.Migrate(cmd.Context(), db, cfg.Database.Driver, args[0], log); err != nil {
				return fmt.Errorf("migrate %s: %w", args[0], err)
			}
			log.Info("migration command completed", slog.String("command", args[0]))
			return nil
		},
	}
}
