package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaybase/relaybase/db"
	"github.com/relaybase/relaybase/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Applies the embedded SQL migrations to the configured PostgreSQL
database. The serve command runs migrations on startup; this command
exists for deploy pipelines that migrate before rolling instances.`,
	RunE: func(*cobra.Command, []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Environment)
	logger.Info("applying migrations", "host", cfg.PostgresHost, "database", cfg.PostgresDBName)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied")
	return nil
}
