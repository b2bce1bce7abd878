// ABOUTME: Session cookie policy for the split frontend/backend deployment
// ABOUTME: Writes and clears the auth_token, legacy token and isAuthenticated cookies

package auth

import (
	"net/http"
	"time"
)

// Cookie names.
const (
	CookieAuthToken       = "auth_token"
	CookieLegacyToken     = "token"
	CookieIsAuthenticated = "isAuthenticated"
)

// CookieMaxAge is the lifetime of every session cookie in seconds. It does not
// follow the token's own expiry, so a sub-user token without exp still loses
// its cookie after a day.
const CookieMaxAge = 24 * 60 * 60

// CookieBinder decides cookie attributes from deployment context.
type CookieBinder struct {
	production bool
	trustProxy bool
}

// NewCookieBinder creates a binder. trustProxy enables X-Forwarded-Proto.
func NewCookieBinder(production, trustProxy bool) *CookieBinder {
	return &CookieBinder{production: production, trustProxy: trustProxy}
}

// IsSecure reports whether cookies for r get the Secure attribute.
func (b *CookieBinder) IsSecure(r *http.Request) bool {
	if b.production || r.TLS != nil {
		return true
	}
	return b.trustProxy && r.Header.Get("X-Forwarded-Proto") == "https"
}

// Bind writes the three session cookies for token.
// Domain is left unset so cookies belong to the requesting host.
func (b *CookieBinder) Bind(w http.ResponseWriter, r *http.Request, token string) {
	secure := b.IsSecure(r)
	for _, c := range []struct {
		name     string
		value    string
		httpOnly bool
	}{
		{CookieAuthToken, token, true},
		{CookieLegacyToken, token, true},
		{CookieIsAuthenticated, "true", false},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    c.value,
			Path:     "/",
			MaxAge:   CookieMaxAge,
			HttpOnly: c.httpOnly,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// Clear expires all three session cookies.
func (b *CookieBinder) Clear(w http.ResponseWriter, r *http.Request) {
	secure := b.IsSecure(r)
	for _, name := range []string{CookieAuthToken, CookieLegacyToken, CookieIsAuthenticated} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: name != CookieIsAuthenticated,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
