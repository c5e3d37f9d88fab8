package main

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/listeria.report/internal/db"
)

func migrateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect and change the database schema version",
	}

	// withDB opens the database without migrating it; the subcommands manage
	// the schema themselves.
	withDB := func(fn func(cmd *cobra.Command, database *db.DB, migrations fs.FS, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			database, err := db.OpenDB(a.cfg.GetDBPath())
			if err != nil {
				return err
			}
			defer database.Close()
			return fn(cmd, database, db.MigrationsFS(), args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  withDB(migrateUp),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE:  withDB(migrateDown),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE:  withDB(migrateStatus),
		},
		&cobra.Command{
			Use:   "version N",
			Short: "Migrate up or down to version N",
			Args:  cobra.ExactArgs(1),
			RunE:  withDB(migrateVersion),
		},
	)

	force := &cobra.Command{
		Use:   "force N",
		Short: "Set the recorded version to N without running migrations (dirty-state recovery)",
		Args:  cobra.ExactArgs(1),
		RunE:  withDB(migrateForce),
	}
	force.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	cmd.AddCommand(force)
	return cmd
}

func printVersion(w io.Writer, database *db.DB, migrations fs.FS) {
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		fmt.Fprintf(w, "Current version unknown: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Current version: %d (dirty: %v)\n", version, dirty)
}

func migrateUp(cmd *cobra.Command, database *db.DB, migrations fs.FS, _ []string) error {
	if err := database.MigrateUp(migrations); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ All migrations applied successfully")
	printVersion(out, database, migrations)
	return nil
}

func migrateDown(cmd *cobra.Command, database *db.DB, migrations fs.FS, _ []string) error {
	if err := database.MigrateDown(migrations); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ Migration rolled back successfully")
	printVersion(out, database, migrations)
	return nil
}

func migrateStatus(cmd *cobra.Command, database *db.DB, migrations fs.FS, _ []string) error {
	status, err := database.GetMigrationStatus(migrations)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", status.CurrentVersion)
	fmt.Fprintf(out, "Latest available: %d\n", status.LatestVersion)
	fmt.Fprintf(out, "Dirty: %v\n", status.Dirty)
	fmt.Fprintf(out, "Schema migrations table exists: %v\n", status.SchemaMigrationsExists)

	switch {
	case status.Dirty:
		fmt.Fprintln(out, "\n⚠️  WARNING: Database is in a dirty state!")
		fmt.Fprintln(out, "A migration failed mid-execution. Inspect the database, fix it, then run:")
		fmt.Fprintln(out, "  listeria-report migrate force <version>")
	case status.Pending() > 0:
		fmt.Fprintf(out, "\n%d migration(s) pending. Run 'listeria-report migrate up' to update.\n", status.Pending())
	default:
		fmt.Fprintln(out, "\n✓ Database is up to date!")
	}
	return nil
}

func migrateVersion(cmd *cobra.Command, database *db.DB, migrations fs.FS, args []string) error {
	target, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version number %q", args[0])
	}
	if err := database.MigrateTo(migrations, uint(target)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Migrated to version %d successfully\n", target)
	return nil
}

func migrateForce(cmd *cobra.Command, database *db.DB, migrations fs.FS, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version number %q", args[0])
	}

	out := cmd.OutOrStdout()
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		fmt.Fprintf(out, "⚠️  WARNING: Forcing migration version to %d\n", version)
		fmt.Fprintln(out, "This should only be used to recover from a dirty migration state.")
		fmt.Fprint(out, "Continue? [y/N]: ")

		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if r := strings.TrimSpace(response); r != "y" && r != "Y" {
			fmt.Fprintln(out, "Aborted")
			return nil
		}
	}

	if err := database.MigrateForce(migrations, version); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Migration version forced to %d\n", version)
	return nil
}
