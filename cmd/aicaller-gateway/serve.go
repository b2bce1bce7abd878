// ABOUTME: serve and health subcommands
// ABOUTME: Starts the HTTP gateway with a startup banner, or probes a running one

package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codecafelab/aicaller-gateway/internal/gateway"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, out)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:      %s\n", opts.configPath)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Environment: %s\n", cfg.Environment)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "HTTP:        %s\n", cfg.Server.HTTPAddr)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Database:    %s", cfg.Database.Driver)
	if cfg.Database.Driver == "sqlite" {
		gray.Fprintf(out, " (%s)", cfg.Database.Path)
	}
	fmt.Fprintln(out)
	if cfg.Metrics.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Metrics:     %s\n", cfg.Metrics.Path)
	}
	if !cfg.IsProduction() && cfg.Auth.JWTSecret == "" {
		yellow.Fprintln(out, "    ! no jwt_secret configured, using the insecure development default")
	}
	fmt.Fprintln(out)

	logger.Info("starting aicaller-gateway",
		"config", opts.configPath,
		"environment", cfg.Environment,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(ctx, cfg, logger, gateway.Options{})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that a running gateway can reach its database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return checkHealth(cmd, healthURL(cfg.Server.HTTPAddr))
		},
	}
}

// healthURL turns a listen address into a loopback readiness URL.
func healthURL(addr string) string {
	if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "127.0.0.1:" + strings.TrimPrefix(addr, "0.0.0.0:")
	} else if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return fmt.Sprintf("http://%s/health/ready", addr)
}

func checkHealth(cmd *cobra.Command, url string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "healthy")
	return nil
}
