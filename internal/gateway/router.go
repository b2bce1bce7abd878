// ABOUTME: HTTP router for aicaller-gateway built on chi
// ABOUTME: Mounts login, logout, session, audit, health and metrics routes behind shared middleware

package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codecafelab/aicaller-gateway/internal/auth"
	"github.com/codecafelab/aicaller-gateway/internal/config"
)

// Login route labels, used in metrics and audit entries.
const (
	routeLogin       = "login"
	routeClientAdmin = "client_admin"
	routeClientUser  = "client_user"
)

// defaultAllowedOrigins is the development frontend.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

// corsOptions returns the CORS policy for the browser frontend. Credentials
// are allowed so the session cookies travel with cross-origin requests.
func corsOptions(cfg *config.Config) cors.Options {
	origins := cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultAllowedOrigins
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// newRouter assembles the chi.Router with shared middleware and every route.
func (g *Gateway) newRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if g.config.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(g.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(g.config)))

	authOpts := auth.MiddlewareOptions{
		AllowQueryToken: g.allowQueryToken,
		Logger:          g.logger,
		Recorder:        g.metrics,
	}
	requireAuth := auth.HTTPAuthMiddleware(g.validator, authOpts)
	optionalAuth := auth.OptionalAuthMiddleware(g.validator, authOpts)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", g.handleLogin(routeLogin))
		r.Post("/client-admin/login", g.handleLogin(routeClientAdmin, auth.KindClient))
		r.Post("/client-user/login", g.handleLogin(routeClientUser, auth.KindClientUser))
		r.With(optionalAuth).Post("/logout", g.handleLogout)
		r.With(requireAuth).Get("/me", g.handleMe)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(auth.RequireRoles("super_admin", "admin"))
		r.Get("/login-audit", g.handleLoginAudit)
	})

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	if g.config.Metrics.Enabled {
		r.Handle(g.config.Metrics.Path, promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	return r
}
