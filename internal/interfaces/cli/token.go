package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/shopsync/internal/infrastructure/auth"
	"github.com/erp/shopsync/internal/infrastructure/config"
)

// NewTokenCommand creates the token command group for operator API tokens
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and revoke operator API tokens",
	}
	cmd.AddCommand(newTokenIssueCommand(opts), newTokenRevokeCommand(opts))
	return cmd
}

func parseScopes(names []string) ([]auth.Scope, error) {
	scopes := make([]auth.Scope, 0, len(names))
	for _, name := range names {
		switch strings.TrimPrefix(strings.TrimSpace(name), "sync:") {
		case "read":
			scopes = append(scopes, auth.ScopeRead)
		case "write":
			scopes = append(scopes, auth.ScopeWrite)
		default:
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown scope %q: must be 'read' or 'write'", name))
		}
	}
	return scopes, nil
}

func newTokenIssueCommand(opts *RootOptions) *cobra.Command {
	var operator string
	var scopeNames []string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scopes, err := parseScopes(scopeNames)
			if err != nil {
				return err
			}
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			issued, err := auth.NewJWTService(cfg.JWT).IssueToken(operator, scopes, ttl)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to issue token", err)
			}
			return opts.formatter(cmd).Render(issued, func(w io.Writer) {
				writeLine(w, "%s", issued.Token)
			})
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "Name of the operator the token is issued to")
	cmd.Flags().StringSliceVar(&scopeNames, "scope", []string{"read"}, "Granted scopes: read, write")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to the configured lifetime)")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func newTokenRevokeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke a token until it expires",
		Long: `Revoke a token until it expires.

Revocation is stored in the shared Redis backend and is only seen by
servers configured with it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if cfg.Webhook.DedupBackend != config.BackendRedis {
				return NewExitError(ExitCommandError, "token revocation requires the redis backend")
			}
			claims, err := auth.NewJWTService(cfg.JWT).ValidateToken(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "token is not valid", err)
			}
			ttl := time.Until(claims.ExpiresAt.Time)

			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.Blacklist.Revoke(ctx, claims.ID, ttl); err != nil {
					return WrapExitError(ExitFailure, "failed to revoke token", err)
				}
				return s.out.Success(fmt.Sprintf("Token %s revoked", claims.ID), map[string]any{
					"jti":        claims.ID,
					"operator":   claims.Operator,
					"expires_at": claims.ExpiresAt.Time,
				})
			})
		},
	}
}
