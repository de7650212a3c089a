package main

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/vetclinic/backend/internal/infrastructure/config"
	"github.com/vetclinic/backend/internal/infrastructure/migration"
	"go.uber.org/zap"
)

func schemaCommands(a *app) []*cobra.Command {
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMigrator(func(m *migration.Migrator) error { return m.Up() })
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMigrator(func(m *migration.Migrator) error { return m.Down() })
		},
	}

	steps := &cobra.Command{
		Use:     "steps <n>",
		Short:   "Apply n migrations, negative n rolls back",
		Example: "  migrate steps 1\n  migrate steps -- -1",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q: %w", args[0], err)
			}
			return a.withMigrator(func(m *migration.Migrator) error { return m.Steps(n) })
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMigrator(func(m *migration.Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if v == 0 {
					a.log.Info("No migrations applied")
					return nil
				}
				a.log.Info("Current migration version", zap.Uint("version", v), zap.Bool("dirty", dirty))
				return nil
			})
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the recorded version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return a.withMigrator(func(m *migration.Migrator) error {
				a.log.Warn("Forcing migration version", zap.Int("version", v))
				return m.Force(v)
			})
		},
	}

	create := &cobra.Command{
		Use:   "create <name> [description]",
		Short: "Create a new up/down migration pair",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.migrationsPath
			if dir == "" {
				dir = defaultMigrationsDir
			}
			description := ""
			if len(args) == 2 {
				description = args[1]
			}
			mf, err := migration.Create(dir, args[0], description)
			if err != nil {
				return err
			}
			a.log.Info("Migration created",
				zap.Uint("version", mf.Version),
				zap.String("up_file", mf.UpPath),
				zap.String("down_file", mf.DownPath),
			)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List available migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := migration.List(a.source())
			if err != nil {
				return err
			}
			if len(all) == 0 {
				a.log.Info("No migrations found")
				return nil
			}
			for _, m := range all {
				fmt.Fprintf(cmd.OutOrStdout(), "  %06d  %s\n", m.Version, m.Name)
			}
			return nil
		},
	}

	return []*cobra.Command{up, down, steps, versionCmd, force, create, list}
}

// withMigrator opens the configured postgres database and runs fn against it
func (a *app) withMigrator(fn func(m *migration.Migrator) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("schema migrations require the postgres driver, got %q; sqlite is migrated by the server on startup", cfg.Database.Driver)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, a.source(), a.log)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
