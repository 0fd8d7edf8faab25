package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/api"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/service/auth"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/spf13/cobra"
)

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp runs fn against a fully wired application and releases it after.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, app *application) error) error {
	ctx := cmd.Context()
	app, err := setup(ctx, opts, queueDispatcher)
	if err != nil {
		return err
	}
	defer app.cleanup()
	return fn(ctx, app)
}

func newAdmitCmd(opts *rootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "admit",
		Short: "Run one admission cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				admission, err := app.runner.RunCycle(ctx)
				if err != nil {
					return err
				}

				out := api.NewAdmissionResponse(admission)
				if _, err := app.recorder.Record(ctx, domain.AuditActionAdmissionTriggered, actor,
					domain.AuditTargetOrchestrator, out); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "operator recorded in the audit log")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Fail tasks that have been running longer than orchestrator.stale_after",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				if !app.reconciler.Enabled() {
					return errors.New("reconciliation is disabled: set orchestrator.stale_after")
				}
				return printJSON(cmd.OutOrStdout(), api.NewReconcileResponse(app.runner.Reconcile(ctx)))
			})
		},
	}
}

func newKillCmd(opts *rootOptions) *cobra.Command {
	var actor, reason string

	cmd := &cobra.Command{
		Use:   "kill <task-id>",
		Short: "Fail a running task and record who killed it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				result, err := app.machine.Kill(ctx, id, actor, reason)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "operator recorded as the killer")
	cmd.Flags().StringVar(&reason, "reason", "", "why the task is being killed")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newGrantCmd(opts *rootOptions) *cobra.Command {
	var actor, reason string

	cmd := &cobra.Command{
		Use:   "grant <user-id> <amount>",
		Short: "Add credits to a user's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				entry, err := app.credits.Grant(ctx, userID, amount, reason)
				if err != nil {
					return err
				}
				if _, err := app.recorder.Record(ctx, domain.AuditActionCreditsGranted, actor,
					domain.UserTarget(userID), map[string]any{
						"entry_id": entry.ID,
						"amount":   entry.Amount,
						"balance":  entry.Balance,
						"reason":   reason,
					}); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entry)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "operator recorded in the audit log")
	cmd.Flags().StringVar(&reason, "reason", "manual grant", "ledger reason")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var (
		email   string
		plan    string
		credits int64
		wsName  string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user with an opening balance and one workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := domain.NewUser(email, domain.Plan(plan), credits)
			if err != nil {
				return err
			}
			ws, err := domain.NewWorkspace(user.ID, wsName)
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				err := app.tx.Within(ctx, func(ctx context.Context, s store.Stores) error {
					if err := s.Users.Create(ctx, user); err != nil {
						return err
					}
					return s.Users.CreateWorkspace(ctx, ws)
				})
				if err != nil {
					return err
				}
				app.logger.Info("user created",
					slog.String("user_id", user.ID.String()),
					slog.String("workspace_id", ws.ID.String()))
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"user":      user,
					"workspace": ws,
				})
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email")
	create.Flags().StringVar(&plan, "plan", string(domain.PlanFree), "plan tier (FREE, PRO, TEAM)")
	create.Flags().Int64Var(&credits, "credits", 0, "opening credit balance")
	create.Flags().StringVar(&wsName, "workspace", "default", "name of the first workspace")
	_ = create.MarkFlagRequired("email")

	cmd.AddCommand(create)
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		admin  string
		userID string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token for a user or an administrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.bootstrap()
			if err != nil {
				return err
			}
			jwtService, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}

			principal := auth.Principal{Name: admin, Role: auth.RoleAdmin}
			if userID != "" {
				id, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid user id %q: %w", userID, err)
				}
				principal = auth.Principal{UserID: id, Role: auth.RoleUser}
			}

			token, err := jwtService.GenerateToken(cmd.Context(), principal)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&admin, "admin", "", "administrator name; becomes the actor of audited actions")
	cmd.Flags().StringVar(&userID, "user", "", "user id the token acts for")
	cmd.MarkFlagsMutuallyExclusive("admin", "user")
	cmd.MarkFlagsOneRequired("admin", "user")
	return cmd
}
