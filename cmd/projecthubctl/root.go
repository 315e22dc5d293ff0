package main

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/projecthub/internal/config"
	"github.com/geocoder89/projecthub/internal/db"
	"github.com/geocoder89/projecthub/internal/repo/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const defaultTimeout = 30 * time.Second

var timeout time.Duration

// NewRootCmd creates the operator CLI. Connection settings come from the
// same environment variables as the API.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "projecthubctl",
		Short:        "Operate a projecthub database",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "timeout for database operations (e.g., 30s, 1m)")

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedAdminCmd())

	return cmd
}

// NewMigrateCmd creates the migrate subcommand and its up/status children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				if err := db.Migrate(ctx, pool); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				cmd.Println("migrations applied")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				return db.Status(ctx, pool)
			})
		},
	})

	return cmd
}

// NewSeedAdminCmd creates the bootstrap admin from ADMIN_* settings.
// It is idempotent.
func NewSeedAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the bootstrap admin account if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
				return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required")
			}

			return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				created, err := db.EnsureAdminUser(ctx, postgres.NewUsersRepo(pool, nil), cfg)
				if err != nil {
					return fmt.Errorf("seed admin: %w", err)
				}
				if created {
					cmd.Printf("admin %s created\n", cfg.AdminEmail)
				} else {
					cmd.Printf("admin %s already exists\n", cfg.AdminEmail)
				}
				return nil
			})
		},
	}
}

func withPool(cmd *cobra.Command, fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	// cmd.Context() carries SIGINT/SIGTERM
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, config.Load().DBURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool)
}
