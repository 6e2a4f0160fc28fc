package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/faucetdb/turnstile/internal/config"
	"github.com/faucetdb/turnstile/internal/model"
	"github.com/faucetdb/turnstile/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long:  "Create, list, confirm, and disable the accounts that log in and own API keys.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserStatusCmd("confirm", "Activate a pending user", model.UserStatusActive))
	cmd.AddCommand(newUserStatusCmd("disable", "Disable a user so they can no longer log in", model.UserStatusDisabled))

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		name     string
		pending  bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		Example: `  turnstile user create --email dev@example.com --name Dev --password secret123
  turnstile user create --email dev@example.com --name Dev  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(cmd, email, password, name, pending)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().BoolVar(&pending, "pending", false, "Create the user unconfirmed")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runUserCreate(cmd *cobra.Command, email, password, name string, pending bool) error {
	email, err := service.NormalizeEmail(email)
	if err != nil {
		return err
	}

	// Prompt for password if not provided
	if password == "" {
		password, err = promptPassword()
		if err != nil {
			return err
		}
	}
	if len(password) < service.MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", service.MinPasswordLen)
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

	hash, err := service.HashPassword(password, cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Status:       model.UserStatusActive,
	}
	if pending {
		user.Status = model.UserStatusPending
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created user %q (%s, %s)\n", user.Email, user.ID, user.Status)
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	users, err := store.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if users == nil {
			users = []model.User{}
		}
		return printJSON(out, users)
	}

	if len(users) == 0 {
		fmt.Fprintln(out, "No users. Use 'turnstile user create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-30s %-24s %-8s\n", "ID", "EMAIL", "NAME", "STATUS")
	fmt.Fprintf(out, "%-36s %-30s %-24s %-8s\n", "--", "-----", "----", "------")
	for _, u := range users {
		fmt.Fprintf(out, "%-36s %-30s %-24s %-8s\n", u.ID, u.Email, u.Name, u.Status)
	}

	return nil
}

// ---------- user confirm / disable ----------

func newUserStatusCmd(use, short, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			user, err := lookupUser(context.Background(), store, args[0])
			if err != nil {
				return err
			}
			if err := store.UpdateUserStatus(context.Background(), user.ID, status); err != nil {
				return fmt.Errorf("update user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %q is now %s\n", user.Email, status)
			return nil
		},
	}
}

func lookupUser(ctx context.Context, store *config.Store, email string) (*model.User, error) {
	normalized, err := service.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	user, err := store.GetUserByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", email, err)
	}
	return user, nil
}
