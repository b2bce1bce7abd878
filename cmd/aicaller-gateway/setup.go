// ABOUTME: init, hash-password and bootstrap-admin subcommands
// ABOUTME: Writes a config with a random signing secret, hashes passwords, and seeds the first admin

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codecafelab/aicaller-gateway/internal/auth"
	"github.com/codecafelab/aicaller-gateway/internal/config"
	"github.com/codecafelab/aicaller-gateway/internal/gateway"
	"github.com/codecafelab/aicaller-gateway/internal/store"
)

type initOptions struct {
	output      string
	environment string
	httpAddr    string
	dbPath      string
	force       bool
}

func newInitCmd() *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new config file with a random JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", getConfigPath(), "Where to write the config file")
	cmd.Flags().StringVar(&opts.environment, "env", config.EnvDevelopment, "Environment name (development, production)")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", "127.0.0.1:5000", "HTTP listen address")
	cmd.Flags().StringVar(&opts.dbPath, "db-path", filepath.Join(getDataPath(), "aicaller.db"), "SQLite database path")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing config file")

	return cmd
}

// generateSecret returns a base64 string of 32 random bytes.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func runInit(out io.Writer, opts *initOptions) error {
	if _, err := os.Stat(opts.output); err == nil && !opts.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", opts.output)
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	configContent := fmt.Sprintf(`# aicaller-gateway configuration
# Generated by aicaller-gateway init

environment: %q

server:
  http_addr: %q
  trust_proxy: false

database:
  driver: "sqlite"
  path: %q

auth:
  jwt_secret: %q
  session_ttl: "24h"

cors:
  allowed_origins:
    - "http://localhost:3000"

background:
  workers: 2
  queue_size: 256
  job_timeout: "10s"

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
  path: "/metrics"
`, opts.environment, opts.httpAddr, opts.dbPath, secret)

	if err := os.MkdirAll(filepath.Dir(opts.output), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// The file holds the signing secret.
	if err := os.WriteFile(opts.output, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Fprintf(out, "  ✓ Created config: %s\n", opts.output)
	fmt.Fprintf(out, "  Data directory: %s\n", filepath.Dir(opts.dbPath))
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  aicaller-gateway serve")
	return nil
}

// readPassword takes the first line of r, without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}

func newHashPasswordCmd(opts *rootOptions) *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print the bcrypt hash of a password read from stdin",
		Long: `Reads one line from stdin and prints its bcrypt hash, suitable for
writing into admin_users.password, clients.adminPassword or
client_users.password by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("cost") {
				if cfg, err := opts.loadConfig(); err == nil {
					cost = cfg.Auth.BcryptCost
				}
			}
			hash, err := auth.NewPasswordVerifier(cost).Hash(password)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default: auth.bcrypt_cost from config, else 10)")
	return cmd
}

type bootstrapOptions struct {
	email string
	name  string
	role  string
}

func newBootstrapAdminCmd(opts *rootOptions) *cobra.Command {
	bo := &bootstrapOptions{}

	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create a platform admin; the password is read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runBootstrapAdmin(cmd, cfg, bo)
		},
	}

	cmd.Flags().StringVar(&bo.email, "email", "", "Admin email (required)")
	cmd.Flags().StringVar(&bo.name, "name", "Administrator", "Display name")
	cmd.Flags().StringVar(&bo.role, "role", "super_admin", "Role name (super_admin or admin)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runBootstrapAdmin(cmd *cobra.Command, cfg *config.Config, bo *bootstrapOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	email := strings.TrimSpace(bo.email)
	if email == "" {
		return errors.New("--email must not be empty")
	}
	name := strings.TrimSpace(bo.name)
	if name == "" {
		return errors.New("display name cannot be empty or whitespace only")
	}
	if len(name) > 100 {
		return errors.New("display name exceeds maximum length of 100 characters")
	}

	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	s, err := gateway.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.GetAdminUserByEmail(ctx, email); err == nil {
		return fmt.Errorf("an admin with email %s already exists", email)
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("checking existing admin: %w", err)
	}

	hash, err := auth.NewPasswordVerifier(cfg.Auth.BcryptCost).Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	admin := &store.AdminUser{
		Name:     name,
		Email:    email,
		Password: hash,
		RoleName: bo.role,
	}
	if err := s.CreateAdminUser(ctx, admin); err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	green.Fprintf(out, "  ✓ Created admin %s (id %d)\n", email, admin.ID)
	cyan.Fprintf(out, "  Role: %s\n", admin.RoleName)
	return nil
}
