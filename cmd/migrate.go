package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/punchclock/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Open the database selected by DATABASE_URL, apply any pending schema
migrations and list the applied versions. Serving applies migrations too;
this command is for deployments that migrate ahead of rollout.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	backend, err := database.Open(cmd.Context(), &cfg.Database)
	if err != nil {
		return err
	}
	defer backend.Close()

	applied, err := backend.MigrationsApplied(cmd.Context())
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	fmt.Printf("Database (%s) is up to date, %d migrations applied:\n", cfg.Database.Driver(), len(applied))
	for _, version := range applied {
		fmt.Printf("  %s\n", version)
	}
	return nil
}
