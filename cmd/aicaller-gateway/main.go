// ABOUTME: Entry point for aicaller-gateway, the login and session service
// ABOUTME: Builds the cobra command tree and runs it under a signal-aware context

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
       _                 _ _
  __ _(_) ___ __ _  | | | ___ _ __
 / _' | |/ __/ _' | | | |/ _ \ '__|
| (_| | | (_| (_| | | | |  __/ |
 \__,_|_|\___\__,_| |_|_|\___|_|    gateway
`

// getConfigPath returns the default path to the gateway config file.
// Priority: AICALLER_CONFIG env var > XDG_CONFIG_HOME/aicaller/gateway.yaml > ~/.config/aicaller/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AICALLER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "aicaller", "gateway.yaml")
}

// getDataPath returns the path to the aicaller data directory.
// Priority: XDG_DATA_HOME/aicaller > ~/.local/share/aicaller
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "aicaller")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
