package db

import (
	"fmt"
	"io"

	"github.com/banshee-data/restframe/internal/monitoring"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching.
func RunMigrateCommand(w io.Writer, database *DB, args []string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("missing migrate action")
	}

	switch action := args[0]; action {
	case "up":
		return handleMigrateUp(w, database)
	case "down":
		return handleMigrateDown(w, database)
	case "status":
		return handleMigrateStatus(w, database)
	case "version":
		if len(args) < 2 {
			return fmt.Errorf("usage: restframe migrate version <version_number>")
		}
		return handleMigrateVersion(w, database, args[1])
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: restframe migrate force <version_number>")
		}
		return handleMigrateForce(w, database, args[1])
	case "help":
		PrintMigrateHelp(w)
		return nil
	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
}

// handleMigrateUp applies all pending migrations
func handleMigrateUp(w io.Writer, database *DB) error {
	monitoring.Logf("Running migrations...")
	if err := database.MigrateUp(); err != nil {
		return err
	}
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ All migrations applied. Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

// handleMigrateDown rolls back one migration
func handleMigrateDown(w io.Writer, database *DB) error {
	monitoring.Logf("Rolling back one migration...")
	if err := database.MigrateDown(); err != nil {
		return err
	}
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ Migration rolled back. Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

// handleMigrateStatus displays the current migration status
func handleMigrateStatus(w io.Writer, database *DB) error {
	status, err := database.GetMigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	fmt.Fprintln(w, "=== Migration Status ===")
	fmt.Fprintf(w, "Current version: %d\n", status.CurrentVersion)
	fmt.Fprintf(w, "Latest available: %d\n", status.LatestVersion)
	fmt.Fprintf(w, "Dirty: %v\n", status.Dirty)
	fmt.Fprintf(w, "Schema migrations table exists: %v\n", status.SchemaMigrationsExists)

	switch {
	case status.Dirty:
		fmt.Fprintln(w, "\n⚠️  WARNING: Database is in a dirty state!")
		fmt.Fprintln(w, "A migration failed mid-execution. Inspect the database, then run:")
		fmt.Fprintln(w, "  restframe migrate force <version>")
	case status.Pending() > 0:
		fmt.Fprintf(w, "\n⚠️  Database is %d version(s) behind. Run 'restframe migrate up' to update.\n", status.Pending())
	default:
		fmt.Fprintln(w, "\n✓ Database is up to date!")
	}
	return nil
}

// handleMigrateVersion migrates to a specific version
func handleMigrateVersion(w io.Writer, database *DB, versionStr string) error {
	var targetVersion uint
	if _, err := fmt.Sscanf(versionStr, "%d", &targetVersion); err != nil {
		return fmt.Errorf("invalid version number: %s", versionStr)
	}

	monitoring.Logf("Migrating to version %d...", targetVersion)
	if err := database.MigrateTo(targetVersion); err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ Migrated to version %d\n", targetVersion)
	return nil
}

// handleMigrateForce forces the migration version (recovery only)
func handleMigrateForce(w io.Writer, database *DB, versionStr string) error {
	var forceVersion int
	if _, err := fmt.Sscanf(versionStr, "%d", &forceVersion); err != nil {
		return fmt.Errorf("invalid version number: %s", versionStr)
	}

	if err := database.MigrateForce(forceVersion); err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ Migration version forced to %d\n", forceVersion)
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprintln(w, "Ledger Migration Commands")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: restframe migrate <command> --db <path>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up              Apply all pending migrations")
	fmt.Fprintln(w, "  down            Rollback one migration")
	fmt.Fprintln(w, "  status          Show current migration status and version")
	fmt.Fprintln(w, "  version <N>     Migrate to specific version N")
	fmt.Fprintln(w, "  force <N>       Force migration version to N (recovery only)")
	fmt.Fprintln(w, "  help            Show this help message")
}
