// ABOUTME: Error taxonomy for login and session-token checks
// ABOUTME: Maps each failure kind to the HTTP status and public message clients see

package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Login errors
var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrStoreUnavailable   = errors.New("principal store unavailable")
)

// Token errors
var (
	ErrTokenMissing   = errors.New("no token provided")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("invalid token")
	ErrForbidden      = errors.New("insufficient permissions")
	ErrWeakSecret     = errors.New("jwt secret too short")
)

// StoreError reports a datastore failure while looking up a principal kind.
// errors.Is(err, ErrStoreUnavailable) is true for every StoreError.
type StoreError struct {
	Kind PrincipalKind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("looking up %s principal: %v", e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// HTTPStatus returns the status code for an error from this package.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTokenMissing), errors.Is(err, ErrTokenMalformed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a client for err.
// It never says which principal table matched or whether an email exists.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "Email and password are required"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, ErrStoreUnavailable):
		return "Database error"
	case errors.Is(err, ErrTokenMissing):
		return "No token provided"
	case errors.Is(err, ErrTokenExpired):
		return "Session expired, please log in again"
	case errors.Is(err, ErrTokenMalformed):
		return "Invalid or expired token"
	case errors.Is(err, ErrForbidden):
		return "Insufficient permissions"
	default:
		return "Authentication error"
	}
}
