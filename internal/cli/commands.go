package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/bootstrap"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/persistence"
	"github.com/spec-kit/helpdesk-engine/internal/sla"
)

func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			if !pg.Enabled() {
				return errors.New("POSTGRES_DSN is required for migrate")
			}
			if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one escalation sweep and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			container, err := bootstrap.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer container.Close()

			result, err := container.Escalation.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newSLACommand() *cobra.Command {
	slaCmd := &cobra.Command{
		Use:   "sla",
		Short: "Inspect the SLA policy",
	}

	var priority, created string
	due := &cobra.Command{
		Use:     "due",
		Short:   "Compute the resolution due date for a priority",
		Example: `  helpdeskctl sla due --priority urgent --created 2024-01-01T00:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := domain.TicketPriority(priority)
			if !p.Valid() {
				return fmt.Errorf("unknown priority %q", priority)
			}
			createdAt := time.Now().UTC()
			if created != "" {
				parsed, err := time.Parse(time.RFC3339, created)
				if err != nil {
					return fmt.Errorf("invalid --created: %w", err)
				}
				createdAt = parsed
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			engine, err := sla.NewEngine(cfg.SLA.Policy)
			if err != nil {
				return err
			}
			target, _ := engine.Target(p)
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"priority":         p,
				"created_at":       createdAt,
				"due_date":         engine.ComputeDueDate(createdAt, p),
				"response_hours":   target.ResponseHours,
				"resolution_hours": target.ResolutionHours,
				"escalation_hours": target.EscalationHours,
			})
		},
	}
	due.Flags().StringVar(&priority, "priority", string(domain.TicketPriorityMedium), "ticket priority (low, medium, high, urgent)")
	due.Flags().StringVar(&created, "created", "", "creation time in RFC3339 (default now)")

	slaCmd.AddCommand(due)
	return slaCmd
}

func newTokenCommand() *cobra.Command {
	var subject, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expiresAt, err := tm.GenerateToken(domain.Actor{ID: subject, Role: domain.ActorRole(role)})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"access_token": token,
				"expires_at":   expiresAt,
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "actor id")
	cmd.Flags().StringVar(&role, "role", string(domain.ActorRoleEndUser), "actor role")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newTechnicianCommand() *cobra.Command {
	techCmd := &cobra.Command{
		Use:   "technician",
		Short: "Manage the technician directory",
	}

	var id, name string
	var maxTickets int
	add := &cobra.Command{
		Use:   "add",
		Short: "Register an active technician",
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxTickets <= 0 {
				return errors.New("--max must be positive")
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			container, err := bootstrap.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer container.Close()

			tech := &domain.Technician{
				ID:                   id,
				Name:                 name,
				Status:               domain.TechnicianStatusActive,
				MaxConcurrentTickets: maxTickets,
				CreatedAt:            time.Now().UTC(),
			}
			if err := container.Store.CreateTechnician(cmd.Context(), tech); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tech)
		},
	}
	add.Flags().StringVar(&id, "id", "", "technician id (default generated)")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().IntVar(&maxTickets, "max", 5, "max concurrent tickets")
	_ = add.MarkFlagRequired("name")

	techCmd.AddCommand(add)
	return techCmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
