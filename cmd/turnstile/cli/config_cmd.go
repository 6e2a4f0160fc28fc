package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage turnstile configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default turnstile.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

const defaultConfig = `# Turnstile Configuration

server:
  host: 0.0.0.0
  port: 8080
  max_body_size: 1MB
  shutdown_timeout: 30s
  cors_origins:
    - "*"

# Credential verification and issuance
auth:
  jwt_secret: ""            # Set via TURNSTILE_AUTH_JWT_SECRET env var
  jwt_previous_secret: ""   # Still accepted for verification during rotation
  session_ttl: 720h
  cookie_secure: false      # Set true when served over HTTPS
  header_name: Turnstile-Authorization
  api_key_ttl: 8760h
  bcrypt_cost: 10

# Users and API keys
store:
  driver: sqlite            # sqlite, postgres, or mysql
  dsn: ""                   # Empty sqlite dsn uses the data directory

# Per-IP limit on signup, login, and confirmation
rate_limit:
  login_per_minute: 10

# Logging
log:
  level: info    # debug, info, warn, error
  format: text   # text or json
`

func runConfigInit(cmd *cobra.Command, force bool) error {
	path := "turnstile.yaml"

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	// The file may end up holding a signing secret.
	if err := os.WriteFile(path, []byte(defaultConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "Set TURNSTILE_AUTH_JWT_SECRET, then run 'turnstile serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	return cmd
}

const redacted = "********"

func runConfigShow(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Fprintf(out, "Config file: %s\n", configFile)
	} else {
		fmt.Fprintln(out, "Config file: (none found, using defaults)")
	}
	fmt.Fprintln(out)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = redacted
	}
	if cfg.Auth.JWTPreviousSecret != "" {
		cfg.Auth.JWTPreviousSecret = redacted
	}
	if cfg.Store.DSN != "" {
		cfg.Store.DSN = redacted
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
