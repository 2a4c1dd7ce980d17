// Package cli implements the shopsync operator command line. Commands share
// the service wiring with the HTTP server but run sync passes inline, without
// the worker pool.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/bootstrap"
	"github.com/erp/shopsync/internal/infrastructure/config"
	"github.com/erp/shopsync/internal/infrastructure/logger"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// RootOptions holds the persistent flags and the hooks commands use to reach
// configuration and services
type RootOptions struct {
	Format  string
	Verbose bool
	EnvFile string

	loadConfig func() (*config.Config, error)
	open       func(ctx context.Context, cfg *config.Config, log *zap.Logger) (*bootstrap.Container, error)
}

func defaultOptions() *RootOptions {
	return &RootOptions{
		Format:     FormatText,
		loadConfig: config.Load,
		open: func(ctx context.Context, cfg *config.Config, log *zap.Logger) (*bootstrap.Container, error) {
			return bootstrap.New(ctx, cfg, log)
		},
	}
}

// NewRootCommand creates the shopsync root command with all subcommands
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultOptions())
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shopsync",
		Short: "Operate the ERP and Shopify synchronization service",
		Long: `shopsync keeps a local ERP record store and Shopify stores in line.

This command manages connected instances, runs import and export passes
inline, inspects jobs and the sync log, applies database migrations and
issues operator tokens for the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != FormatText && opts.Format != FormatJSON {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be 'text' or 'json'", opts.Format))
			}
			if opts.EnvFile != "" {
				if err := godotenv.Load(opts.EnvFile); err != nil {
					return WrapExitError(ExitCommandError, "failed to read env file", err)
				}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "Output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "Load environment variables from this file before reading configuration")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewInstanceCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewLogsCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) config() (*config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// logger writes to stderr so it never interleaves with command output
func (o *RootOptions) logger() (*zap.Logger, error) {
	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	log, err := logger.New(&logger.Config{
		Level:  level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}
	return log, nil
}

// session is a command's view of the wired services
type session struct {
	*bootstrap.Container
	out *OutputFormatter
}

// withSession loads configuration, opens the services and passes them to fn.
// Resources are released when fn returns.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	log, err := o.logger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := o.open(ctx, cfg, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize services", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("Error closing resources", zap.Error(err))
		}
	}()

	return fn(ctx, &session{Container: c, out: o.formatter(cmd)})
}

func writeLine(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
