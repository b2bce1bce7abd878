// ABOUTME: Gateway orchestrator that wires the store, login pipeline and HTTP server
// ABOUTME: Manages the background queue, metrics registry and graceful shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/codecafelab/aicaller-gateway/internal/auth"
	"github.com/codecafelab/aicaller-gateway/internal/background"
	"github.com/codecafelab/aicaller-gateway/internal/config"
	"github.com/codecafelab/aicaller-gateway/internal/metrics"
	"github.com/codecafelab/aicaller-gateway/internal/store"
)

// Gateway owns every long-lived component of aicaller-gateway.
type Gateway struct {
	config     *config.Config
	store      store.Store
	jobs       *background.Queue
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
	login      *auth.LoginService
	issuer     *auth.TokenIssuer
	validator  *auth.TokenValidator
	cookies    *auth.CookieBinder
	httpServer *http.Server

	// Development-only switches, forced off in production whatever the config says.
	allowQueryToken bool
	allowEmptyPass  bool
	logger     *slog.Logger
}

// Options overrides components New would otherwise build from config.
// The zero value is valid.
type Options struct {
	// Store is used instead of opening cfg.Database. The gateway closes it on shutdown.
	Store store.Store

	// Registry receives the gateway's collectors; a fresh registry is created when nil.
	Registry *prometheus.Registry
}

// OpenStore opens the datastore named by cfg.Database.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		s, err := store.NewMySQLStore(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
		if err != nil {
			return nil, fmt.Errorf("opening mysql store: %w", err)
		}
		return s, nil
	default:
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	}
}

// signingSecret returns the secret and token options for cfg. Outside
// production an unset secret falls back to the built-in default, loudly.
func signingSecret(cfg *config.Config, logger *slog.Logger) ([]byte, []auth.TokenOption) {
	opts := []auth.TokenOption{
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
		auth.WithClientUserTTL(cfg.Auth.ClientUserTokenTTL),
	}

	secret := cfg.Auth.JWTSecret
	if cfg.IsProduction() {
		return []byte(secret), opts
	}

	if secret == "" {
		secret = auth.InsecureDefaultSecret
	}
	if secret == auth.InsecureDefaultSecret {
		logger.Warn("using the built-in default JWT secret; set auth.jwt_secret or JWT_SECRET before deploying",
			"environment", cfg.Environment)
		opts = append(opts, auth.WithInsecureDefaultSecret())
	}
	return []byte(secret), opts
}

// devOnlySwitches returns the query-token and empty-password settings to
// wire. Both stay off in production even when config validation was skipped.
func devOnlySwitches(cfg *config.Config, logger *slog.Logger) (allowQueryToken, allowEmptyPass bool) {
	if cfg.IsProduction() {
		if cfg.Auth.AllowQueryToken || cfg.Auth.LegacyAllowEmptyClientUserPassword {
			logger.Error("ignoring development-only auth settings in production",
				"allow_query_token", cfg.Auth.AllowQueryToken,
				"legacy_allow_empty_client_user_password", cfg.Auth.LegacyAllowEmptyClientUserPassword)
		}
		return false, false
	}

	if cfg.Auth.LegacyAllowEmptyClientUserPassword {
		logger.Warn("legacy_allow_empty_client_user_password is enabled; client users without a password can log in with any password")
	}
	return cfg.Auth.AllowQueryToken, cfg.Auth.LegacyAllowEmptyClientUserPassword
}

// New creates a new Gateway instance with the given configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := metrics.New(registry)

	secret, tokenOpts := signingSecret(cfg, logger)
	issuer, err := auth.NewTokenIssuer(secret, tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}
	validator, err := auth.NewTokenValidator(secret, tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating token validator: %w", err)
	}

	s := opts.Store
	if s == nil {
		s, err = OpenStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	jobs := background.New(background.Config{
		Workers:    cfg.Background.Workers,
		QueueSize:  cfg.Background.QueueSize,
		JobTimeout: cfg.Background.JobTimeout,
		Logger:     logger.With("component", "background"),
		OnDone:     m.JobDone,
	})

	allowQueryToken, allowEmptyPass := devOnlySwitches(cfg, logger)

	login, err := auth.NewLoginService(auth.LoginServiceConfig{
		Resolver:                     auth.NewResolver(s, logger),
		Verifier:                     auth.NewPasswordVerifier(cfg.Auth.BcryptCost),
		Issuer:                       issuer,
		Writer:                       s,
		Audit:                        s,
		Jobs:                         jobs,
		Recorder:                     m,
		Logger:                       logger,
		AllowEmptyClientUserPassword: allowEmptyPass,
	})
	if err != nil {
		_ = jobs.Close(ctx)
		if opts.Store == nil {
			_ = s.Close()
		}
		return nil, fmt.Errorf("creating login service: %w", err)
	}

	gw := &Gateway{
		config:    cfg,
		store:     s,
		jobs:      jobs,
		metrics:   m,
		registry:  registry,
		login:     login,
		issuer:    issuer,
		validator: validator,
		cookies:   auth.NewCookieBinder(cfg.IsProduction(), cfg.Server.TrustProxy),
		logger:    logger.With("component", "gateway"),

		allowQueryToken: allowQueryToken,
		allowEmptyPass:  allowEmptyPass,
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.newRouter(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	return gw, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run listens on the configured address and serves until ctx is canceled.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}
	return g.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled or the server fails, then shuts down.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening",
			"addr", ln.Addr().String(),
			"environment", g.config.Environment,
			"database", g.databaseDialect())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

// databaseDialect names the backend the store talks to, falling back to the
// configured driver for stores that do not say.
func (g *Gateway) databaseDialect() string {
	if d, ok := g.store.(interface{ Dialect() store.Dialect }); ok {
		return string(d.Dialect())
	}
	return g.config.Database.Driver
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the serving context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, drains background jobs and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway",
		"pending_jobs", g.jobs.Pending(),
		"claimed_job_keys", g.jobs.Claimed())

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "background drain", g.jobs.Close(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the datastore answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
