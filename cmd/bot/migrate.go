package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/amazo-world/amazo-bot/config"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/persistence/postgres"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		migrateSubcommand("up", "Apply pending migrations", migrateUp),
		migrateSubcommand("status", "Show applied and pending migrations", migrateStatus),
		migrateSubcommand("down", "Roll back the last applied migration", migrateDown),
	)
	return cmd
}

func migrateSubcommand(use, short string, fn func(cmd *cobra.Command, m *postgres.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			if cfg.Store.Driver != config.DriverPostgres {
				return fmt.Errorf("migrations need STORE_DRIVER=postgres, got %s", cfg.Store.Driver)
			}
			newLogger(cfg)

			conn, err := connectPostgres(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			return fn(cmd, postgres.NewMigrator(conn))
		},
	}
}

func migrateUp(cmd *cobra.Command, m *postgres.Migrator) error {
	applied, err := m.Migrate(cmd.Context())
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
		return nil
	}
	for _, v := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d\n", v)
	}
	return nil
}

func migrateStatus(cmd *cobra.Command, m *postgres.Migrator) error {
	status, err := m.Status(cmd.Context())
	if err != nil {
		return err
	}
	for _, mig := range status {
		state := "pending"
		if mig.IsApplied {
			state = "applied " + mig.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-24s %s\n", mig.Version, mig.Name, state)
	}
	return nil
}

func migrateDown(cmd *cobra.Command, m *postgres.Migrator) error {
	version, err := m.Rollback(cmd.Context())
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d\n", version)
	return nil
}
