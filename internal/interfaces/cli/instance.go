package cli

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	appintegration "github.com/erp/shopsync/internal/application/integration"
	"github.com/erp/shopsync/internal/domain/integration"
)

// instanceView is the printable form of an instance. Credentials are never
// written out.
type instanceView struct {
	ID            uuid.UUID            `json:"id"`
	Name          string               `json:"name"`
	ShopURL       string               `json:"shop_url"`
	Status        string               `json:"status"`
	ShopName      string               `json:"shop_name,omitempty"`
	Currency      string               `json:"currency,omitempty"`
	AutoSync      bool                 `json:"auto_sync"`
	ExportEnabled bool                 `json:"export_enabled"`
	LocationIDs   []string             `json:"location_ids"`
	LastSyncAt    map[string]time.Time `json:"last_sync_at,omitempty"`
	VerifiedAt    *time.Time           `json:"verified_at,omitempty"`
}

func newInstanceView(i *integration.SyncInstance) instanceView {
	v := instanceView{
		ID:            i.ID,
		Name:          i.Name,
		ShopURL:       i.ShopURL,
		Status:        string(i.Status),
		ShopName:      i.ShopName,
		Currency:      i.Currency,
		AutoSync:      i.AutoSync,
		ExportEnabled: i.ExportEnabled,
		LocationIDs:   i.LocationIDs,
		VerifiedAt:    i.VerifiedAt,
	}
	if len(i.LastSyncAt) > 0 {
		v.LastSyncAt = make(map[string]time.Time, len(i.LastSyncAt))
		for entity, at := range i.LastSyncAt {
			v.LastSyncAt[string(entity)] = at
		}
	}
	return v
}

func writeInstance(w io.Writer, v instanceView) {
	writeLine(w, "ID:        %s", v.ID)
	writeLine(w, "Name:      %s", v.Name)
	writeLine(w, "Shop:      %s", v.ShopURL)
	writeLine(w, "Status:    %s", v.Status)
	if v.ShopName != "" {
		writeLine(w, "Shop name: %s (%s)", v.ShopName, v.Currency)
	}
	writeLine(w, "Auto sync: %t", v.AutoSync)
	writeLine(w, "Export:    %t", v.ExportEnabled)
	writeLine(w, "Locations: %s", strings.Join(v.LocationIDs, ", "))
	for _, entity := range integration.PipelineOrder() {
		if at, ok := v.LastSyncAt[string(entity)]; ok {
			writeLine(w, "Last %-9s %s", string(entity)+":", at.Format(time.RFC3339))
		}
	}
}

// NewInstanceCommand creates the instance command group
func NewInstanceCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "instance",
		Aliases: []string{"instances"},
		Short:   "Manage connected Shopify stores",
	}
	cmd.AddCommand(
		newInstanceListCommand(opts),
		newInstanceShowCommand(opts),
		newInstanceAddCommand(opts),
		newInstanceTestCommand(opts),
		newInstanceLocationsCommand(opts),
		newInstanceWebhooksCommand(opts),
	)
	return cmd
}

func newInstanceListCommand(opts *RootOptions) *cobra.Command {
	var autoSyncOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				filter := integration.InstanceFilter{Page: 1, PageSize: 100}
				if autoSyncOnly {
					filter.AutoSync = &autoSyncOnly
				}
				instances, total, err := s.Instances.List(ctx, filter)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list instances", err)
				}
				views := make([]instanceView, 0, len(instances))
				rows := make([][]string, 0, len(instances))
				for i := range instances {
					v := newInstanceView(&instances[i])
					views = append(views, v)
					rows = append(rows, []string{v.ID.String(), v.Name, v.ShopURL, v.Status, strconv.FormatBool(v.AutoSync)})
				}
				return s.out.Render(map[string]any{"instances": views, "total": total}, func(w io.Writer) {
					table(w, []string{"ID", "NAME", "SHOP", "STATUS", "AUTO SYNC"}, rows)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&autoSyncOnly, "auto-sync", false, "Only list instances with periodic sync enabled")
	return cmd
}

func newInstanceShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <instance-id>",
		Short: "Show one instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "instance")
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				instance, err := s.Instances.Get(ctx, id)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to get instance", err)
				}
				v := newInstanceView(instance)
				return s.out.Render(v, func(w io.Writer) { writeInstance(w, v) })
			})
		},
	}
}

func newInstanceAddCommand(opts *RootOptions) *cobra.Command {
	var in appintegration.CreateInstanceInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a store. The connection is verified separately with 'instance test'.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				instance, err := s.Instances.Create(ctx, in)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to create instance", err)
				}
				v := newInstanceView(instance)
				return s.out.Render(v, func(w io.Writer) {
					writeLine(w, "Instance created")
					writeInstance(w, v)
				})
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.Name, "name", "", "Display name")
	flags.StringVar(&in.ShopURL, "shop", "", "Shop domain or URL, e.g. acme or acme.myshopify.com")
	flags.StringVar(&in.AccessToken, "token", "", "Admin API access token")
	flags.StringVar(&in.WebhookSecret, "webhook-secret", "", "Secret used to verify webhook signatures")
	flags.StringVar(&in.APIVersion, "api-version", "", "Admin API version (defaults to the configured version)")
	flags.StringSliceVar(&in.LocationIDs, "location", nil, "Remote location ID to synchronize (repeatable)")
	flags.BoolVar(&in.AutoSync, "auto-sync", false, "Enable periodic sync")
	flags.BoolVar(&in.ExportEnabled, "export", false, "Allow exporting local records to the store")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("shop")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newInstanceTestCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <instance-id>",
		Short: "Probe the store with the stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "instance")
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				instance, err := s.Instances.TestConnection(ctx, id)
				if err != nil {
					return WrapExitError(ExitFailure, "connection test failed", err)
				}
				v := newInstanceView(instance)
				return s.out.Render(v, func(w io.Writer) {
					writeLine(w, "Connected to %s (%s)", v.ShopName, v.Currency)
				})
			})
		},
	}
}

func newInstanceLocationsCommand(opts *RootOptions) *cobra.Command {
	var set []string
	cmd := &cobra.Command{
		Use:   "locations <instance-id>",
		Short: "Replace the synchronized locations with the store's active ones, or with --set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "instance")
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				var instance *integration.SyncInstance
				var err error
				if cmd.Flags().Changed("set") {
					instance, err = s.Instances.SetLocations(ctx, id, set)
				} else {
					instance, err = s.Instances.SyncLocations(ctx, id)
				}
				if err != nil {
					return WrapExitError(ExitFailure, "failed to update locations", err)
				}
				return s.out.Render(map[string]any{"location_ids": instance.LocationIDs}, func(w io.Writer) {
					writeLine(w, "Locations: %s", strings.Join(instance.LocationIDs, ", "))
				})
			})
		},
	}
	cmd.Flags().StringSliceVar(&set, "set", nil, "Location IDs to synchronize instead of asking the store")
	return cmd
}

type subscriptionView struct {
	Topic    string `json:"topic"`
	RemoteID string `json:"remote_id"`
	Address  string `json:"address"`
}

func renderSubscriptions(out *OutputFormatter, subs []integration.WebhookSubscription) error {
	views := make([]subscriptionView, 0, len(subs))
	rows := make([][]string, 0, len(subs))
	for _, sub := range subs {
		views = append(views, subscriptionView{Topic: string(sub.Topic), RemoteID: sub.RemoteID, Address: sub.Address})
		rows = append(rows, []string{string(sub.Topic), sub.RemoteID, sub.Address})
	}
	return out.Render(views, func(w io.Writer) {
		table(w, []string{"TOPIC", "REMOTE ID", "ADDRESS"}, rows)
	})
}

func newInstanceWebhooksCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Manage the store's webhook subscriptions",
	}

	list := &cobra.Command{
		Use:   "list <instance-id>",
		Short: "List registered subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "instance")
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				subs, err := s.Instances.Subscriptions(ctx, id)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list subscriptions", err)
				}
				return renderSubscriptions(s.out, subs)
			})
		},
	}

	var baseURL string
	register := &cobra.Command{
		Use:   "register <instance-id>",
		Short: "Subscribe to every handled topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "instance")
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				url := baseURL
				if url == "" {
					url = s.Config.Shopify.CallbackBaseURL
				}
				subs, err := s.Instances.RegisterWebhooks(ctx, id, url)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to register webhooks", err)
				}
				return renderSubscriptions(s.out, subs)
			})
		},
	}
	register.Flags().StringVar(&baseURL, "base-url", "", "Public base URL of this service (defaults to the configured callback URL)")

	unregister := &cobra.Command{
		Use:   "unregister <instance-id>",
		Short: "Remove every subscription from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "instance")
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.Instances.UnregisterWebhooks(ctx, id); err != nil {
					return WrapExitError(ExitFailure, "failed to unregister webhooks", err)
				}
				return s.out.Success("Webhooks unregistered", map[string]string{"instance_id": id.String()})
			})
		},
	}

	cmd.AddCommand(list, register, unregister)
	return cmd
}

func parseID(arg, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, WrapExitError(ExitCommandError, "invalid "+what+" id", err)
	}
	return id, nil
}
