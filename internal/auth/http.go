// ABOUTME: HTTP middleware for session-token authentication and role gates
// ABOUTME: Extracts the token from header, cookies or (dev only) query and adds claims to context

package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// ClaimsValidator validates a raw session token.
type ClaimsValidator interface {
	Validate(token string) (*Claims, error)
}

// TokenRecorder receives validation outcomes for metrics.
type TokenRecorder interface {
	TokenCheck(outcome string)
}

// MiddlewareOptions configures HTTPAuthMiddleware and OptionalAuthMiddleware.
type MiddlewareOptions struct {
	// AllowQueryToken accepts ?token= as a last resort. Only ever set outside production.
	AllowQueryToken bool
	Logger          *slog.Logger
	Recorder        TokenRecorder
}

func (o MiddlewareOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default().With("component", "auth")
	}
	return o.Logger.With("component", "auth")
}

func (o MiddlewareOptions) record(outcome string) {
	if o.Recorder != nil {
		o.Recorder.TokenCheck(outcome)
	}
}

// Token carriers, in extraction order.
const (
	carrierHeader       = "header"
	carrierCookie       = "cookie"
	carrierLegacyCookie = "legacy_cookie"
	carrierQuery        = "query"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns "" when the header is absent or not a Bearer credential.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// extractToken finds a candidate token and names the carrier it came from.
func extractToken(r *http.Request, allowQuery bool) (token, carrier string) {
	if t := extractBearerToken(r.Header.Get("Authorization")); t != "" {
		return t, carrierHeader
	}
	if c, err := r.Cookie(CookieAuthToken); err == nil && c.Value != "" {
		return c.Value, carrierCookie
	}
	if c, err := r.Cookie(CookieLegacyToken); err == nil && c.Value != "" {
		return c.Value, carrierLegacyCookie
	}
	if allowQuery {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, carrierQuery
		}
	}
	return "", ""
}

// authenticate extracts and validates a token from r.
func authenticate(r *http.Request, v ClaimsValidator, opts MiddlewareOptions, logger *slog.Logger) (*Claims, error) {
	token, carrier := extractToken(r, opts.AllowQueryToken)
	if token == "" {
		opts.record("missing")
		return nil, ErrTokenMissing
	}
	if carrier == carrierQuery {
		logger.Warn("SESSION TOKEN READ FROM QUERY STRING; never enable allow_query_token outside development",
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
	}

	claims, err := v.Validate(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			opts.record("expired")
		} else {
			opts.record("malformed")
		}
		logger.Debug("token rejected", "carrier", carrier, "error", err)
		return nil, err
	}

	opts.record("valid")
	return claims, nil
}

// HTTPAuthMiddleware rejects requests without a valid session token and adds
// the token's claims to the request context.
func HTTPAuthMiddleware(v ClaimsValidator, opts MiddlewareOptions) func(http.Handler) http.Handler {
	logger := opts.logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, v, opts, logger)
			if err != nil {
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRoles allows only callers whose role is in roles.
// Must be used after HTTPAuthMiddleware.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := FromContext(r.Context())
			if claims == nil {
				writeAuthError(w, ErrTokenMissing)
				return
			}

			if !claims.HasRole(roles...) {
				writeAuthError(w, ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuthMiddleware attaches claims when a valid token is present and
// lets every request through.
func OptionalAuthMiddleware(v ClaimsValidator, opts MiddlewareOptions) func(http.Handler) http.Handler {
	logger := opts.logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, v, opts, logger)
			if err != nil {
				next.ServeHTTP(w, r) // Continue as anonymous
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// writeAuthError writes the {success:false,message} envelope for err.
func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": PublicMessage(err),
	})
}
