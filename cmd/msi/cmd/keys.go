package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/3worlds/aot/internal/auth/apikey"
	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/postgres"
)

func newKeysCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the ingestion service",
		Long: `Create, list and revoke the API keys that authorise index uploads.
Keys are stored in the PostgreSQL database named by the config file.`,
	}
	cmd.AddCommand(newKeysCreateCmd(global))
	cmd.AddCommand(newKeysListCmd(global))
	cmd.AddCommand(newKeysRevokeCmd(global))
	return cmd
}

// openValidator connects to the configured database. The returned func
// closes the connection.
func openValidator(ctx context.Context, global *globalOptions) (*apikey.Validator, func(), error) {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return apikey.NewValidator(db), func() { db.Close() }, nil
}

func newKeysCreateCmd(global *globalOptions) *cobra.Command {
	var (
		name      string
		rateLimit int
		expiresIn time.Duration
		sources   []string
	)

	cmd := &cobra.Command{
		Use:   "create --name NAME",
		Short: "Create a new API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rateLimit <= 0 {
				return fmt.Errorf("--rate-limit must be positive")
			}
			var expiresAt *time.Time
			if expiresIn > 0 {
				t := time.Now().Add(expiresIn)
				expiresAt = &t
			}

			v, closeDB, err := openValidator(cmd.Context(), global)
			if err != nil {
				return err
			}
			defer closeDB()

			key, err := v.CreateKey(cmd.Context(), apikey.KeySpec{
				Name:      name,
				RateLimit: rateLimit,
				Sources:   sources,
				ExpiresAt: expiresAt,
			})
			if err != nil {
				return fmt.Errorf("creating key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "API key created successfully.")
			fmt.Fprintln(out, "Store this key securely, it cannot be retrieved again.")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Key:        %s\n", key)
			fmt.Fprintf(out, "  Name:       %s\n", name)
			fmt.Fprintf(out, "  Rate Limit: %d req/min\n", rateLimit)
			fmt.Fprintf(out, "  Sources:    %s\n", formatSources(sources))
			fmt.Fprintf(out, "  Expires:    %s\n", formatExpiry(expiresAt))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name of the client the key is issued to")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 100, "Requests per minute")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Expiry, e.g. 720h (default never)")
	cmd.Flags().StringArrayVar(&sources, "source", nil, "Source the key may publish (repeatable, default all)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newKeysListCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, closeDB, err := openValidator(cmd.Context(), global)
			if err != nil {
				return err
			}
			defer closeDB()

			keys, err := v.ListKeys(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing keys: %w", err)
			}
			printKeys(cmd, keys)
			return nil
		},
	}
}

func printKeys(cmd *cobra.Command, keys []apikey.KeyInfo) {
	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		fmt.Fprintln(out, "No active API keys.")
		return
	}
	fmt.Fprintf(out, "%-36s  %-20s  %-10s  %-20s  %s\n", "ID", "Name", "Rate Limit", "Sources", "Expires")
	fmt.Fprintln(out, "------------------------------------  --------------------  ----------  --------------------  -------------------------")
	for _, k := range keys {
		fmt.Fprintf(out, "%-36s  %-20s  %-10d  %-20s  %s\n",
			k.ID, k.Name, k.RateLimit, formatSources(k.Sources), formatExpiry(k.ExpiresAt))
	}
	fmt.Fprintf(out, "\nTotal: %d active key(s)\n", len(keys))
}

func newKeysRevokeCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke KEY",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, closeDB, err := openValidator(cmd.Context(), global)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := v.RevokeKey(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("revoking key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key revoked successfully.")
			return nil
		},
	}
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func formatSources(sources []string) string {
	if len(sources) == 0 {
		return "all"
	}
	return strings.Join(sources, ",")
}
