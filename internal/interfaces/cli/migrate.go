package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/infrastructure/config"
	"github.com/erp/shopsync/internal/infrastructure/migration"
)

const defaultMigrationsDir = "internal/infrastructure/migration/sql"

// NewMigrateCommand creates the migrate command group. PostgreSQL schemas are
// versioned with the bundled migrations; SQLite databases are migrated from
// the models when they are opened.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var steps int
	var all bool

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if cfg.Database.Driver == config.DriverSQLite {
				// opening the container runs AutoMigrate
				return opts.withSession(cmd, func(ctx context.Context, s *session) error {
					return s.out.Success("SQLite schema is up to date", map[string]string{"driver": config.DriverSQLite})
				})
			}
			return opts.withMigrator(cmd, cfg, func(m *migration.Migrator, out *OutputFormatter) error {
				if err := m.Up(); err != nil {
					return err
				}
				return reportVersion(m, out, "Migrations applied")
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 && !all {
				return NewExitError(ExitCommandError, "--steps must be positive")
			}
			return opts.withPostgresMigrator(cmd, func(m *migration.Migrator, out *OutputFormatter) error {
				if all {
					if err := m.Down(); err != nil {
						return err
					}
				} else if err := m.Steps(-steps); err != nil {
					return err
				}
				return reportVersion(m, out, "Migrations rolled back")
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "Roll back every migration")

	gotoCmd := &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid version", err)
			}
			return opts.withPostgresMigrator(cmd, func(m *migration.Migrator, out *OutputFormatter) error {
				if err := m.GoTo(uint(version)); err != nil {
					return err
				}
				return reportVersion(m, out, "Migrated")
			})
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPostgresMigrator(cmd, func(m *migration.Migrator, out *OutputFormatter) error {
				return reportVersion(m, out, "Schema")
			})
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations, clearing the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid version", err)
			}
			return opts.withPostgresMigrator(cmd, func(m *migration.Migrator, out *OutputFormatter) error {
				if err := m.Force(v); err != nil {
					return err
				}
				return reportVersion(m, out, "Forced")
			})
		},
	}

	var dir, description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create the next numbered migration pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			file, err := migration.CreateMigration(dir, args[0], description)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create migration", err)
			}
			return out.Render(file, func(w io.Writer) {
				writeLine(w, "Created migration %s_%s", file.Version, file.Name)
				writeLine(w, "  up:   %s", file.UpPath)
				writeLine(w, "  down: %s", file.DownPath)
			})
		},
	}
	create.Flags().StringVar(&dir, "dir", defaultMigrationsDir, "Migrations directory")
	create.Flags().StringVar(&description, "description", "", "Description written into the migration header")

	var listDir string
	list := &cobra.Command{
		Use:   "list",
		Short: "List migration files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			var names []string
			var err error
			if listDir == "" {
				names, err = migration.ListMigrations(migration.Files, migration.EmbeddedDir)
			} else {
				names, err = migration.ListMigrations(os.DirFS(listDir), ".")
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list migrations", err)
			}
			return out.Render(names, func(w io.Writer) {
				for _, name := range names {
					writeLine(w, "  - %s", name)
				}
			})
		},
	}
	list.Flags().StringVar(&listDir, "dir", "", "Read migrations from a directory instead of the bundled set")

	cmd.AddCommand(up, down, gotoCmd, version, force, create, list)
	return cmd
}

func reportVersion(m *migration.Migrator, out *OutputFormatter, prefix string) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	data := map[string]any{"version": v, "dirty": dirty}
	return out.Render(data, func(w io.Writer) {
		if dirty {
			writeLine(w, "%s: version %d (dirty)", prefix, v)
			return
		}
		writeLine(w, "%s: version %d", prefix, v)
	})
}

func (o *RootOptions) withPostgresMigrator(cmd *cobra.Command, fn func(*migration.Migrator, *OutputFormatter) error) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return NewExitError(ExitCommandError, fmt.Sprintf("versioned migrations require the %s driver, got %q", config.DriverPostgres, cfg.Database.Driver))
	}
	return o.withMigrator(cmd, cfg, fn)
}

func (o *RootOptions) withMigrator(cmd *cobra.Command, cfg *config.Config, fn func(*migration.Migrator, *OutputFormatter) error) error {
	log, err := o.logger()
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()
	if err := db.PingContext(cmd.Context()); err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to database", err)
	}

	m, err := migration.New(db, log.Named("migrate"))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize migrator", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Error closing migrator", zap.Error(err))
		}
	}()

	if err := fn(m, o.formatter(cmd)); err != nil {
		return WrapExitError(ExitFailure, "migration failed", err)
	}
	return nil
}
