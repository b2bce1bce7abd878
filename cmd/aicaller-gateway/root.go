// ABOUTME: Cobra command tree for aicaller-gateway
// ABOUTME: Wires serve, init, hash-password, bootstrap-admin and health under a shared --config flag

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codecafelab/aicaller-gateway/internal/config"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "aicaller-gateway",
		Short: "Login and session service for the AI Caller platform",
		Long: `aicaller-gateway authenticates platform admins, client admins and client
sub-users against the shared database, issues session tokens, and upgrades
legacy plaintext passwords to bcrypt in the background.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(),
		"Path to the config file, YAML or TOML (env: AICALLER_CONFIG)")

	root.AddCommand(
		newServeCmd(opts),
		newInitCmd(),
		newHashPasswordCmd(opts),
		newBootstrapAdminCmd(opts),
		newHealthCmd(opts),
	)

	return root
}
