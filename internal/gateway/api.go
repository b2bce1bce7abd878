// ABOUTME: HTTP API handlers for login, logout, session introspection and the login audit log
// ABOUTME: Shapes JSON envelopes per login route and binds session cookies on success

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/codecafelab/aicaller-gateway/internal/auth"
	"github.com/codecafelab/aicaller-gateway/internal/store"
)

// maxLoginBody bounds the login request body.
const maxLoginBody = 64 << 10

// LoginRequest is the JSON request body for every login route.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    any    `json:"user"`
	Token   string `json:"token"`

	// ExpiresIn is the session lifetime in milliseconds. The client-user route omits it.
	ExpiresIn int64 `json:"expiresIn,omitempty"`
}

// UserResponse describes an admin or client admin in a login response.
type UserResponse struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Email       string             `json:"email"`
	Role        string             `json:"role"`
	Type        auth.PrincipalKind `json:"type"`
	CompanyName string             `json:"companyName,omitempty"`
}

// ClientUserResponse describes a client sub-user in a login response.
type ClientUserResponse struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	RoleName    string   `json:"role_name"`
	Permissions []string `json:"permissions"`
	ClientID    int64    `json:"client_id"`
	CompanyName string   `json:"companyName"`
	FullName    string   `json:"full_name"`
}

// ErrorResponse is the failure envelope. Error carries the cause of a
// datastore failure outside production only.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// AuditEntryResponse is one row of GET /admin/login-audit.
type AuditEntryResponse struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	PrincipalType string         `json:"principal_type,omitempty"`
	PrincipalID   int64          `json:"principal_id,omitempty"`
	Email         string         `json:"email,omitempty"`
	RemoteAddr    string         `json:"remote_addr,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Detail        map[string]any `json:"detail,omitempty"`
}

// writeJSON writes v with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes the failure envelope for err.
func (g *Gateway) sendJSONError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Message: auth.PublicMessage(err)}
	if errors.Is(err, auth.ErrStoreUnavailable) && !g.config.IsProduction() {
		resp.Error = err.Error()
	}
	g.writeJSON(w, auth.HTTPStatus(err), resp)
}

// handleLogin returns the handler for one login route. kinds restricts the
// principal tables searched; none means every table in priority order.
func (g *Gateway) handleLogin(route string, kinds ...auth.PrincipalKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			g.metrics.ObserveLogin(route, time.Since(start).Seconds())
		}()

		var req LoginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
			g.sendJSONError(w, auth.ErrMissingCredentials)
			return
		}

		result, err := g.login.Login(r.Context(), auth.LoginRequest{
			Email:      req.Email,
			Password:   req.Password,
			RemoteAddr: r.RemoteAddr,
			Route:      route,
			Kinds:      kinds,
		})
		if err != nil {
			g.sendJSONError(w, err)
			return
		}

		g.cookies.Bind(w, r, result.Token)
		g.writeJSON(w, http.StatusOK, g.loginResponse(route, result))
	}
}

// loginResponse shapes the success body for route.
func (g *Gateway) loginResponse(route string, result *auth.LoginResult) LoginResponse {
	p := result.Principal
	resp := LoginResponse{
		Success:   true,
		Message:   "Login successful",
		Token:     result.Token,
		ExpiresIn: g.issuer.TTLFor(p.Kind).Milliseconds(),
	}
	if resp.ExpiresIn == 0 {
		// Tokens without exp still live only as long as the session cookie.
		resp.ExpiresIn = (auth.CookieMaxAge * time.Second).Milliseconds()
	}

	switch route {
	case routeClientUser:
		resp.ExpiresIn = 0
		resp.User = ClientUserResponse{
			ID:          p.ID,
			Email:       p.Email,
			Role:        p.Role,
			RoleName:    p.RoleName,
			Permissions: p.Permissions,
			ClientID:    p.ClientID,
			CompanyName: p.CompanyName,
			FullName:    p.FullName,
		}
	case routeClientAdmin:
		resp.User = UserResponse{
			ID:          p.ID,
			Name:        p.Name,
			Email:       p.Email,
			Role:        p.Role,
			Type:        p.Kind,
			CompanyName: p.CompanyName,
		}
	default:
		resp.User = UserResponse{
			ID:    p.ID,
			Name:  p.Name,
			Email: p.Email,
			Role:  p.Role,
			Type:  p.Kind,
		}
	}
	return resp
}

// handleLogout clears the session cookies. Tokens are stateless, so a
// missing or stale session still logs out.
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	if claims := auth.FromContext(r.Context()); claims != nil {
		g.logger.Info("logout", "type", claims.Type, "id", claims.ID)
	}
	g.cookies.Clear(w, r)
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

// handleMe echoes the validated session claims.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustFromContext(r.Context())
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    claims,
	})
}

// handleLoginAudit handles GET /admin/login-audit?action=&type=&email=&limit=.
func (g *Gateway) handleLoginAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.AuditFilter

	if v := q.Get("action"); v != "" {
		action := store.AuditAction(v)
		if !validAuditAction(action) {
			g.writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "unknown audit action"})
			return
		}
		filter.Action = &action
	}
	if v := q.Get("type"); v != "" {
		filter.PrincipalType = &v
	}
	if v := q.Get("email"); v != "" {
		filter.Email = &v
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			g.writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	entries, err := g.store.ListAuditLog(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing login audit failed", "error", err)
		g.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "Database error"})
		return
	}

	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:            e.ID,
			Action:        string(e.Action),
			PrincipalType: e.PrincipalType,
			PrincipalID:   e.PrincipalID,
			Email:         e.Email,
			RemoteAddr:    e.RemoteAddr,
			Timestamp:     e.Timestamp,
			Detail:        e.Detail,
		})
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"entries": out,
	})
}

func validAuditAction(a store.AuditAction) bool {
	for _, valid := range store.ValidAuditActions {
		if a == valid {
			return true
		}
	}
	return false
}
