package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/abcsmc/internal/infrastructure/database"
	"github.com/emiliopalmerini/abcsmc/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [version]",
	Short: "Run database migrations",
	Long: `Run database migrations.

Without arguments, runs all pending migrations (up).
With a version number, migrates to that specific version (up or down as needed).

Examples:
  abcsmc migrate           # Run all pending migrations
  abcsmc migrate 1         # Migrate to version 1
  abcsmc migrate 0         # Rollback all migrations
  abcsmc migrate 1 --force # Mark version 1 as applied and clean`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

var migrateForce bool

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "Set the version without running migrations, clearing a dirty state")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	db, err := database.New(cfg.Database.URL, cfg.Database.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	m := migrate.New(db.DB, logger)
	if err := m.EnsureTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	target := -1
	if len(args) == 1 {
		if target, err = strconv.Atoi(args[0]); err != nil || target < 0 {
			return fmt.Errorf("invalid version %q", args[0])
		}
	}

	if migrateForce {
		if target < 0 {
			return fmt.Errorf("--force needs a version")
		}
		if err := m.Force(ctx, target); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		fmt.Fprintf(out, "Forced version %d\n", target)
		return nil
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d, run migrate %d --force after fixing it", current, current)
	}

	fmt.Fprintf(out, "Current version: %d\n", current)

	var applied int
	switch {
	case target < 0 || target > current:
		applied, err = m.UpTo(ctx, target)
	case target < current:
		applied, err = m.DownTo(ctx, target)
	default:
		fmt.Fprintln(out, "Already at target version")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed after %d steps: %w", applied, err)
	}

	version, _, err := m.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get new version: %w", err)
	}
	if applied == 0 {
		fmt.Fprintln(out, "No pending migrations")
	}
	fmt.Fprintf(out, "Now at version: %d\n", version)
	return nil
}
