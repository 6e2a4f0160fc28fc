package cli

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/faucetdb/turnstile/internal/config"
	"github.com/faucetdb/turnstile/internal/server"
	"github.com/faucetdb/turnstile/internal/service"
)

const banner = `
 _____ _   _ ___ _  _ ___ _____ ___ _    ___
|_   _| | | | _ \ \| / __|_   _|_ _| |  | __|
  | | | |_| |   / .' \__ \ | |  | || |__| _|
  |_|  \___/|_|_\_|\_|___/ |_| |___|____|___|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the turnstile auth server",
		Long:  "Start the HTTP server that resolves credentials and issues sessions and API keys.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if dev {
				cfg.Logging.Level = "debug"
			}
			return runServe(cfg, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, fallback signing secret)")

	return cmd
}

func runServe(cfg *config.YAMLConfig, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(cfg.Logging, os.Stderr)

	// 1. Open the user store
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	logger.Info("store initialized", "driver", store.Dialect())

	// 2. Signing secrets and metrics
	keys, err := newKeyring(cfg.Auth, dev, logger)
	if err != nil {
		store.Close()
		return err
	}
	logger.Info("signing keys loaded", "keys", keys.Size())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(registry)

	// 3. Auth service
	authSvc, err := newAuthService(cfg, store, keys, metrics, logger)
	if err != nil {
		store.Close()
		return err
	}

	// 4. Build and start HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.CORSOrigins = cfg.Server.CORSOrigins
	srvCfg.CredentialHeader = cfg.Auth.HeaderName
	srvCfg.LoginPerMinute = cfg.RateLimit.LoginPerMinute
	srvCfg.Version = versionString()
	if srvCfg.MaxBodySize, err = parseSize(cfg.Server.MaxBodySize, srvCfg.MaxBodySize); err != nil {
		store.Close()
		return fmt.Errorf("server.max_body_size: %w", err)
	}
	if srvCfg.ShutdownTimeout, err = config.ParseDuration(cfg.Server.ShutdownTimeout, srvCfg.ShutdownTimeout); err != nil {
		store.Close()
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}

	srv := server.New(srvCfg, store, authSvc, registry, logger)

	fmt.Printf("→ Turnstile %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Credential header: %s\n", srvCfg.CredentialHeader)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
