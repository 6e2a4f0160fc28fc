package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check if the turnstile server is ready",
		Long:  "Query /readyz on a running server and report whether it can reach its store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Server address (default: from server.host and server.port)")

	return cmd
}

func runStatus(cmd *cobra.Command, addr string) error {
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		addr = fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
	}

	readyAddr := addr + "/readyz"
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(readyAddr)
	if err != nil {
		return fmt.Errorf("server not responding at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	json.NewDecoder(resp.Body).Decode(&body)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server at %s: %s (%d)\n", addr, body.Status, resp.StatusCode)
	for name, result := range body.Checks {
		fmt.Fprintf(out, "  %-8s %s\n", name+":", result)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server is not ready")
	}
	return nil
}
