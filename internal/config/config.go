// ABOUTME: Configuration loading and parsing for aicaller-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults and production checks

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// insecureDefaultSecret mirrors auth.InsecureDefaultSecret; config must not import auth.
const insecureDefaultSecret = "your-very-secret-key"

// minSecretLength mirrors auth.MinSecretLength.
const minSecretLength = 32

// Config represents the complete aicaller-gateway configuration
type Config struct {
	Environment string           `yaml:"environment" toml:"environment"`
	Server      ServerConfig     `yaml:"server" toml:"server"`
	Database    DatabaseConfig   `yaml:"database" toml:"database"`
	Auth        AuthConfig       `yaml:"auth" toml:"auth"`
	CORS        CORSConfig       `yaml:"cors" toml:"cors"`
	Background  BackgroundConfig `yaml:"background" toml:"background"`
	Logging     LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics     MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`

	// TrustProxy honours X-Forwarded-Proto when deciding the cookie Secure flag.
	TrustProxy bool `yaml:"trust_proxy" toml:"trust_proxy"`

	ReadHeaderTimeout time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ReadHeaderTimeoutRaw string `yaml:"read_header_timeout" toml:"read_header_timeout"`
	ShutdownTimeoutRaw   string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DatabaseConfig holds datastore configuration
type DatabaseConfig struct {
	Driver       string `yaml:"driver" toml:"driver"` // sqlite | mysql
	Path         string `yaml:"path" toml:"path"`     // sqlite file
	DSN          string `yaml:"dsn" toml:"dsn"`       // mysql DSN
	MaxOpenConns int    `yaml:"max_open_conns" toml:"max_open_conns"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`

	SessionTTL         time.Duration `yaml:"-" toml:"-"`
	ClientUserTokenTTL time.Duration `yaml:"-" toml:"-"` // zero: sub-user tokens carry no expiry

	SessionTTLRaw         string `yaml:"session_ttl" toml:"session_ttl"`
	ClientUserTokenTTLRaw string `yaml:"client_user_token_ttl" toml:"client_user_token_ttl"`

	BcryptCost int `yaml:"bcrypt_cost" toml:"bcrypt_cost"`

	// AllowQueryToken accepts ?token= on authenticated routes. Refused in production.
	AllowQueryToken bool `yaml:"allow_query_token" toml:"allow_query_token"`

	// LegacyAllowEmptyClientUserPassword lets a sub-user without a stored
	// password log in with any password. Refused in production.
	LegacyAllowEmptyClientUserPassword bool `yaml:"legacy_allow_empty_client_user_password" toml:"legacy_allow_empty_client_user_password"`
}

// CORSConfig holds cross-origin settings for the browser frontend
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// BackgroundConfig sizes the fire-and-forget job queue
type BackgroundConfig struct {
	Workers   int `yaml:"workers" toml:"workers"`
	QueueSize int `yaml:"queue_size" toml:"queue_size"`

	JobTimeout    time.Duration `yaml:"-" toml:"-"`
	JobTimeoutRaw string        `yaml:"job_timeout" toml:"job_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text | json
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a development configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, formatFor(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw configuration content in the given format ("yaml" or "toml").
func Parse(data []byte, format string) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch format {
	case "toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	cfg.applyEnvOverrides()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func formatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvOverrides lets the deployment environment pick the environment
// name and supply the signing secret.
func (c *Config) applyEnvOverrides() {
	if env := os.Getenv("AICALLER_ENV"); env != "" {
		c.Environment = env
	} else if env := os.Getenv("NODE_ENV"); env != "" {
		c.Environment = env
	}

	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))

	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:5000"
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		c.Database.Path = "./aicaller.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}

	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 24 * time.Hour
	}

	if c.Background.Workers == 0 {
		c.Background.Workers = 2
	}
	if c.Background.QueueSize == 0 {
		c.Background.QueueSize = 256
	}
	if c.Background.JobTimeout == 0 {
		c.Background.JobTimeout = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// IsProduction reports whether the production hardening rules apply.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// ErrInsecureProductionConfig wraps every production-only validation failure.
var ErrInsecureProductionConfig = errors.New("insecure configuration for production")

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverMySQL:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMySQL, c.Database.Driver)
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative")
	}

	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}
	if c.Auth.SessionTTL < 0 || c.Auth.ClientUserTokenTTL < 0 {
		return fmt.Errorf("auth token lifetimes must not be negative")
	}

	if c.Background.Workers < 0 || c.Background.QueueSize < 0 {
		return fmt.Errorf("background.workers and background.queue_size must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.IsProduction() {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateProduction() error {
	secret := c.Auth.JWTSecret
	switch {
	case secret == "":
		return fmt.Errorf("%w: auth.jwt_secret (or JWT_SECRET) must be set", ErrInsecureProductionConfig)
	case secret == insecureDefaultSecret:
		return fmt.Errorf("%w: auth.jwt_secret is the built-in default", ErrInsecureProductionConfig)
	case len(secret) < minSecretLength:
		return fmt.Errorf("%w: auth.jwt_secret must be at least %d bytes", ErrInsecureProductionConfig, minSecretLength)
	}
	if c.Auth.AllowQueryToken {
		return fmt.Errorf("%w: auth.allow_query_token must be false", ErrInsecureProductionConfig)
	}
	if c.Auth.LegacyAllowEmptyClientUserPassword {
		return fmt.Errorf("%w: auth.legacy_allow_empty_client_user_password must be false", ErrInsecureProductionConfig)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_header_timeout", cfg.Server.ReadHeaderTimeoutRaw, &cfg.Server.ReadHeaderTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.session_ttl", cfg.Auth.SessionTTLRaw, &cfg.Auth.SessionTTL},
		{"auth.client_user_token_ttl", cfg.Auth.ClientUserTokenTTLRaw, &cfg.Auth.ClientUserTokenTTL},
		{"background.job_timeout", cfg.Background.JobTimeoutRaw, &cfg.Background.JobTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
