package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/portal-api/internal/config"
	"github.com/jwalitptl/portal-api/internal/repository/postgres"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the transition audit table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Audit.DSN == "" {
				return errors.New("audit.dsn is not configured")
			}

			db, err := postgres.NewDB(postgres.DBConfig{DSN: cfg.Audit.DSN})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.EnsureSchema(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Audit schema is up to date.")
			return nil
		},
	}
}
