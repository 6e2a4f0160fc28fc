package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/faucetdb/turnstile/internal/config"
	"github.com/faucetdb/turnstile/internal/service"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// devSecret signs tokens when no secret is configured and --dev is set.
const devSecret = "turnstile-dev-secret-change-me"

// resolveDataDir returns the data directory from --data-dir flag,
// TURNSTILE_DATA_DIR env var, or ~/.turnstile as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("TURNSTILE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".turnstile")
}

// loadConfig builds the effective configuration: defaults, then the YAML
// file viper located, then TURNSTILE_* environment variables and bound flags.
func loadConfig() (*config.YAMLConfig, error) {
	cfg := config.DefaultYAMLConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overrideString(&cfg.Server.Host, "server.host")
	overrideInt(&cfg.Server.Port, "server.port")
	overrideString(&cfg.Server.MaxBodySize, "server.max_body_size")
	overrideString(&cfg.Server.ShutdownTimeout, "server.shutdown_timeout")
	overrideString(&cfg.Auth.JWTSecret, "auth.jwt_secret")
	overrideString(&cfg.Auth.JWTPreviousSecret, "auth.jwt_previous_secret")
	overrideString(&cfg.Auth.SessionTTL, "auth.session_ttl")
	overrideString(&cfg.Auth.HeaderName, "auth.header_name")
	overrideString(&cfg.Auth.APIKeyTTL, "auth.api_key_ttl")
	overrideInt(&cfg.Auth.BcryptCost, "auth.bcrypt_cost")
	if viper.IsSet("auth.cookie_secure") {
		cfg.Auth.CookieSecure = viper.GetBool("auth.cookie_secure")
	}
	overrideString(&cfg.Store.Driver, "store.driver")
	overrideString(&cfg.Store.DSN, "store.dsn")
	overrideInt(&cfg.RateLimit.LoginPerMinute, "rate_limit.login_per_minute")
	overrideString(&cfg.Logging.Level, "log.level")
	overrideString(&cfg.Logging.Format, "log.format")
	return cfg, nil
}

func overrideString(dst *string, key string) {
	if v := viper.GetString(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if viper.IsSet(key) {
		if v := viper.GetInt(key); v != 0 {
			*dst = v
		}
	}
}

// openStore opens the store named by cfg. SQLite without a DSN lives in
// the data directory.
func openStore(cfg *config.YAMLConfig) (*config.Store, error) {
	if cfg.Store.Driver == "" || cfg.Store.Driver == config.DialectSQLite {
		if cfg.Store.DSN == "" {
			dir := resolveDataDir()
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			return config.NewStore(dir)
		}
	}
	return config.Open(config.StoreOptions{
		Dialect: cfg.Store.Driver,
		DSN:     cfg.Store.DSN,
		Pool:    cfg.Store.Pool,
	})
}

// newLogger returns a slog logger for the configured level and format.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newKeyring loads the signing secrets. Without a configured secret only
// dev mode may continue, on a fixed secret.
func newKeyring(cfg config.AuthConfig, dev bool, logger *slog.Logger) (*service.Keyring, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		if !dev {
			return nil, fmt.Errorf("auth.jwt_secret is not set (use TURNSTILE_AUTH_JWT_SECRET, or --dev for a local secret)")
		}
		logger.Warn("no jwt secret configured, using the development secret")
		secret = devSecret
	}
	return service.NewKeyring(secret, cfg.JWTPreviousSecret)
}

// newAuthService builds the auth service from cfg.
func newAuthService(cfg *config.YAMLConfig, store *config.Store, keys *service.Keyring, metrics *service.Metrics, logger *slog.Logger) (*service.AuthService, error) {
	sessionTTL, err := config.ParseDuration(cfg.Auth.SessionTTL, service.DefaultSessionTTL)
	if err != nil {
		return nil, fmt.Errorf("auth.session_ttl: %w", err)
	}
	apiKeyTTL, err := config.ParseDuration(cfg.Auth.APIKeyTTL, service.DefaultAPIKeyTTL)
	if err != nil {
		return nil, fmt.Errorf("auth.api_key_ttl: %w", err)
	}
	return service.NewAuthService(store, keys, service.AuthOptions{
		SessionTTL:   sessionTTL,
		APIKeyTTL:    apiKeyTTL,
		CookieSecure: cfg.Auth.CookieSecure,
		BcryptCost:   cfg.Auth.BcryptCost,
	}, metrics, logger), nil
}

// parseSize parses a human size such as "1MB" into bytes.
func parseSize(s string, fallback int64) (int64, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

// parseDays parses a day count for key and token lifetimes.
func parseDays(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
