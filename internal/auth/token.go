// ABOUTME: Session token issuing and validation for logged-in principals
// ABOUTME: HS256 JWTs carrying identity and tenant claims, with per-kind expiry

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultSessionTTL is the lifetime of admin and client admin tokens.
	DefaultSessionTTL = 24 * time.Hour

	// MinSecretLength is the minimum HS256 signing secret length in bytes.
	MinSecretLength = 32

	// InsecureDefaultSecret is the historical fallback secret. It is only
	// accepted when explicitly allowed, and never in production.
	InsecureDefaultSecret = "your-very-secret-key"
)

// Claims is the payload of a session token.
type Claims struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name,omitempty"`
	Email       string        `json:"email"`
	Role        string        `json:"role"`
	Type        PrincipalKind `json:"type"`
	CompanyName string        `json:"companyName,omitempty"`
	ClientID    int64         `json:"client_id,omitempty"`
	RoleName    string        `json:"role_name,omitempty"`
	Permissions []string      `json:"permissions,omitempty"`
	FullName    string        `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry one of roles.
func (c *Claims) HasRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// TokenOption configures a TokenIssuer or TokenValidator.
type TokenOption func(*tokenOptions)

type tokenOptions struct {
	sessionTTL      time.Duration
	clientUserTTL   time.Duration
	now             func() time.Time
	allowDefaultKey bool
}

// WithSessionTTL sets the lifetime of admin and client admin tokens.
func WithSessionTTL(d time.Duration) TokenOption {
	return func(o *tokenOptions) {
		o.sessionTTL = d
	}
}

// WithClientUserTTL gives client sub-user tokens an expiry. Zero, the
// default, issues them without one.
func WithClientUserTTL(d time.Duration) TokenOption {
	return func(o *tokenOptions) {
		o.clientUserTTL = d
	}
}

// WithClock replaces time.Now for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(o *tokenOptions) {
		o.now = now
	}
}

// WithInsecureDefaultSecret accepts InsecureDefaultSecret despite its length.
// Callers must only pass this outside production.
func WithInsecureDefaultSecret() TokenOption {
	return func(o *tokenOptions) {
		o.allowDefaultKey = true
	}
}

func buildTokenOptions(secret []byte, opts []TokenOption) (tokenOptions, error) {
	o := tokenOptions{
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if string(secret) == InsecureDefaultSecret {
		if !o.allowDefaultKey {
			return o, fmt.Errorf("%w: the built-in default secret is not allowed", ErrWeakSecret)
		}
		return o, nil
	}
	if len(secret) < MinSecretLength {
		return o, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(secret))
	}
	return o, nil
}

// TokenIssuer signs session tokens for resolved principals.
type TokenIssuer struct {
	secret []byte
	opts   tokenOptions
}

// NewTokenIssuer creates an issuer. Returns ErrWeakSecret for short secrets.
func NewTokenIssuer(secret []byte, opts ...TokenOption) (*TokenIssuer, error) {
	o, err := buildTokenOptions(secret, opts)
	if err != nil {
		return nil, err
	}
	return &TokenIssuer{secret: secret, opts: o}, nil
}

// TTLFor returns the token lifetime for a kind; zero means no expiry.
func (i *TokenIssuer) TTLFor(kind PrincipalKind) time.Duration {
	if kind == KindClientUser {
		// Sub-user sessions historically last until logout. Kept unless
		// auth.client_user_token_ttl is configured.
		return i.opts.clientUserTTL
	}
	return i.opts.sessionTTL
}

// ClaimsFor builds the claims a token for p would carry.
func (i *TokenIssuer) ClaimsFor(p *Principal) *Claims {
	now := i.opts.now()
	claims := &Claims{
		ID:    p.ID,
		Name:  p.Name,
		Email: p.Email,
		Role:  p.Role,
		Type:  p.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	switch p.Kind {
	case KindClient:
		claims.CompanyName = p.CompanyName
	case KindClientUser:
		claims.ClientID = p.ClientID
		claims.CompanyName = p.CompanyName
		claims.RoleName = p.RoleName
		claims.Permissions = p.Permissions
		if claims.Permissions == nil {
			claims.Permissions = []string{}
		}
		claims.FullName = p.FullName
	}

	if ttl := i.TTLFor(p.Kind); ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return claims
}

// Issue signs a token for p and returns it with its claims.
func (i *TokenIssuer) Issue(p *Principal) (string, *Claims, error) {
	claims := i.ClaimsFor(p)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims, nil
}

// TokenValidator checks session tokens presented on requests.
type TokenValidator struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenValidator creates a validator. Returns ErrWeakSecret for short secrets.
func NewTokenValidator(secret []byte, opts ...TokenOption) (*TokenValidator, error) {
	o, err := buildTokenOptions(secret, opts)
	if err != nil {
		return nil, err
	}
	return &TokenValidator{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(o.now),
		),
	}, nil
}

// Validate verifies signature and expiry and returns the claims.
// An expired but correctly signed token yields ErrTokenExpired; every other
// failure yields ErrTokenMalformed.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	// An empty permission set is dropped from the wire by omitempty.
	if claims.Type == KindClientUser && claims.Permissions == nil {
		claims.Permissions = []string{}
	}
	return claims, nil
}
