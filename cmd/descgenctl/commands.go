package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/descgen-core/internal/adapters/driven/auth"
	"github.com/custodia-labs/descgen-core/internal/client"
	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/services"
)

func getCmd(opts *options) *cobra.Command {
	var (
		asJSON   bool
		showKeys bool
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the current settings",
		Long:  "Show the current settings. When the service does not answer in time the last cached snapshot, or the defaults, are shown instead.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			settings, source := opts.client().Settings(cmd.Context())

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(settings)
			}

			if source != client.SourceLive {
				warn.Fprintf(out, "  service unreachable, showing %s\n", source)
			}

			fmt.Fprintf(out, "  %s %s\n", subtle.Sprint("endpoint:"), settings.APIEndpoint)
			if len(settings.APIKeys) == 0 {
				fmt.Fprintf(out, "  %s none\n", subtle.Sprint("api keys:"))
				return nil
			}

			fmt.Fprintf(out, "  %s\n", subtle.Sprint("api keys:"))
			current := -1
			if settings.CurrentAPIKeyIndex != nil {
				current = *settings.CurrentAPIKeyIndex
			}
			for i, key := range settings.APIKeys {
				if !showKeys {
					key = maskKey(key)
				}
				if i == current {
					good.Fprintf(out, "  * [%d] %s\n", i, key)
				} else {
					fmt.Fprintf(out, "    [%d] %s\n", i, key)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw snapshot as JSON")
	cmd.Flags().BoolVar(&showKeys, "show-keys", false, "print API keys unmasked")
	return cmd
}

func apiKeyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "api-key",
		Short: "Print the active API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := opts.client().GetAPIKey(cmd.Context())
			if err != nil {
				return fail(cmd.ErrOrStderr(), "get api key: %w", err)
			}
			if key == "" {
				warn.Fprintln(cmd.ErrOrStderr(), "  no API key configured")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func saveCmd(opts *options) *cobra.Command {
	var (
		endpoint string
		keys     []string
		index    int
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Change one or more settings",
		Example: `  descgenctl save --endpoint https://example.com/generate
  descgenctl save --key AIza-first --key AIza-second --index 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := &domain.SettingsPatch{}
			if cmd.Flags().Changed("endpoint") {
				patch.APIEndpoint = &endpoint
			}
			if cmd.Flags().Changed("key") {
				patch.APIKeys = &keys
			}
			if cmd.Flags().Changed("index") {
				patch.CurrentAPIKeyIndex = &index
			}
			if patch.IsEmpty() {
				return fail(cmd.ErrOrStderr(), "nothing to save: pass --endpoint, --key or --index")
			}
			if err := patch.Validate(); err != nil {
				return fail(cmd.ErrOrStderr(), "%w", err)
			}

			if err := opts.client().SaveSettings(cmd.Context(), patch); err != nil {
				return fail(cmd.ErrOrStderr(), "save settings: %w", err)
			}
			good.Fprintln(cmd.OutOrStdout(), "  settings saved")
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "generation endpoint URL")
	cmd.Flags().StringArrayVar(&keys, "key", nil, "API key (repeat to set the full rotation list)")
	cmd.Flags().IntVar(&index, "index", 0, "active API key index")
	return cmd
}

func rotateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Switch to the next API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := opts.client().RotateAPIKey(cmd.Context())
			if err != nil {
				return fail(cmd.ErrOrStderr(), "rotate api key: %w", err)
			}
			good.Fprintf(cmd.OutOrStdout(), "  now using %s\n", maskKey(key))
			return nil
		},
	}
}

func resetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().ResetSettings(cmd.Context()); err != nil {
				return fail(cmd.ErrOrStderr(), "reset settings: %w", err)
			}
			good.Fprintln(cmd.OutOrStdout(), "  settings reset to defaults")
			return nil
		},
	}
}

func openOptionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "open-options",
		Short: "Open the options page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().OpenOptions(cmd.Context()); err != nil {
				return fail(cmd.ErrOrStderr(), "open options: %w", err)
			}
			good.Fprintln(cmd.OutOrStdout(), "  options page opened")
			return nil
		},
	}
}

func contextsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "contexts",
		Short: "List connected extension contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := opts.client().Contexts(cmd.Context())
			if err != nil {
				return fail(cmd.ErrOrStderr(), "list contexts: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, subtle.Sprint("  no contexts connected"))
				return nil
			}
			for _, info := range infos {
				fmt.Fprintf(out, "  %-10s %s %s\n", info.Kind, info.ID, subtle.Sprint(info.URL))
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		kind   string
		ttl    time.Duration
		secret string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a context token signed with AUTH_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("AUTH_SECRET")
			}
			if secret == "" {
				return fail(cmd.ErrOrStderr(), "AUTH_SECRET is not set")
			}

			authService := services.NewAuthService(auth.NewAdapter(secret))
			token, err := authService.IssueToken(cmd.Context(), domain.ContextKind(kind), ttl)
			if err != nil {
				return fail(cmd.ErrOrStderr(), "issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(domain.ContextKindContent), "context kind (content, options, popup, background)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to AUTH_SECRET)")
	return cmd
}
