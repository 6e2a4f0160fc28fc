package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke the API keys users authenticate with.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		email string
		label string
		days  int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key owned by a user. The raw key is shown once and cannot be retrieved again.",
		Example: `  turnstile key create --user dev@example.com --label "CI pipeline"
  turnstile key create --user dev@example.com --days 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(cmd, email, label, days)
		},
	}

	cmd.Flags().StringVar(&email, "user", "", "Email of the owning user (required)")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label for the key")
	cmd.Flags().IntVar(&days, "days", 0, "Days until the key expires (default: auth.api_key_ttl)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyCreate(cmd *cobra.Command, email, label string, days int) error {
	if days < 0 {
		return fmt.Errorf("--days must not be negative")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	// Key creation signs nothing, so no keyring is needed.
	authSvc, err := newAuthService(cfg, store, nil, nil, newLogger(cfg.Logging, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	ctx := context.Background()
	user, err := lookupUser(ctx, store, email)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if days > 0 {
		ttl = parseDays(days)
	}
	rawKey, apiKey, err := authSvc.CreateAPIKey(ctx, user.ID, label, ttl)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "API Key created:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Key:     %s\n", rawKey)
	fmt.Fprintf(out, "  User:    %s\n", user.Email)
	fmt.Fprintf(out, "  Expires: %s\n", apiKey.ExpiresAt.Format(time.RFC3339))
	if apiKey.Label != "" {
		fmt.Fprintf(out, "  Label:   %s\n", apiKey.Label)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	// Build a user ID -> email map for display
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	emails := make(map[string]string, len(users))
	for _, u := range users {
		emails[u.ID] = u.Email
	}

	type keyRow struct {
		Prefix  string     `json:"prefix"`
		User    string     `json:"user"`
		Label   string     `json:"label"`
		Expires time.Time  `json:"expires_at"`
		UsedAt  *time.Time `json:"used_at,omitempty"`
		Expired bool       `json:"expired"`
	}

	now := time.Now()
	rows := make([]keyRow, len(keys))
	for i, k := range keys {
		rows[i] = keyRow{
			Prefix:  k.KeyPrefix,
			User:    emails[k.UserID],
			Label:   k.Label,
			Expires: k.ExpiresAt,
			UsedAt:  k.UsedAt,
			Expired: k.ExpiredAt(now),
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No API keys. Use 'turnstile key create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-14s %-30s %-20s %-22s %-8s\n", "PREFIX", "USER", "LABEL", "EXPIRES", "EXPIRED")
	fmt.Fprintf(out, "%-14s %-30s %-20s %-22s %-8s\n", "------", "----", "-----", "-------", "-------")
	for _, k := range rows {
		expired := "no"
		if k.Expired {
			expired = "yes"
		}
		fmt.Fprintf(out, "%-14s %-30s %-20s %-22s %-8s\n", k.Prefix, k.User, k.Label, k.Expires.Format(time.RFC3339), expired)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Delete an API key. Requests presenting it fail with api_key_not_found from then on. If several keys share the prefix, nothing is revoked.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(cmd, args[0])
		},
	}

	return cmd
}

func runKeyRevoke(cmd *cobra.Command, prefix string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := store.DeleteAPIKeyByPrefix(context.Background(), prefix); err != nil {
		return fmt.Errorf("revoke api key %q: %w", prefix, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Revoked API key with prefix %q\n", prefix)
	return nil
}
