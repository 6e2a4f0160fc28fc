package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faucetdb/turnstile/internal/model"
)

// YAMLConfig represents the top-level turnstile configuration file.
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"log"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	MaxBodySize     string   `yaml:"max_body_size"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// AuthConfig controls credential verification and session issuance.
type AuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret"`
	JWTPreviousSecret string `yaml:"jwt_previous_secret"`
	SessionTTL        string `yaml:"session_ttl"`
	CookieSecure      bool   `yaml:"cookie_secure"`
	HeaderName        string `yaml:"header_name"`
	APIKeyTTL         string `yaml:"api_key_ttl"`
	BcryptCost        int    `yaml:"bcrypt_cost"`
}

// StoreConfig selects the database that holds users and API keys.
type StoreConfig struct {
	Driver string           `yaml:"driver"`
	DSN    string           `yaml:"dsn"`
	Pool   model.PoolConfig `yaml:"pool"` // ignored for sqlite
}

// RateLimitConfig throttles the credential-accepting endpoints.
type RateLimitConfig struct {
	LoginPerMinute int `yaml:"login_per_minute"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
// Keys missing from the file keep their default values.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     "1MB",
			ShutdownTimeout: "30s",
			CORSOrigins:     []string{"*"},
		},
		Auth: AuthConfig{
			SessionTTL: "720h",
			HeaderName: "Turnstile-Authorization",
			APIKeyTTL:  "8760h",
			BcryptCost: 10,
		},
		Store: StoreConfig{
			Driver: DialectSQLite,
			Pool:   model.DefaultPoolConfig(),
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ParseDuration parses a config duration, returning fallback for empty input.
func ParseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
