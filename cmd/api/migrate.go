package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger := bootstrap()
		defer logger.Sync() //nolint:errcheck

		pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := persistence.RunMigrations(cmd.Context(), pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Error("migrations failed", zap.Error(err))
			return err
		}
		return nil
	},
}
