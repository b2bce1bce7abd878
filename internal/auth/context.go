// ABOUTME: Request context helpers for the validated session claims
// ABOUTME: Provides WithClaims/FromContext for handlers behind the auth middleware

package auth

import (
	"context"
)

// claimsContextKey is the key type for storing Claims in context.Context.
type claimsContextKey struct{}

// WithClaims returns a new context with the claims attached.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// FromContext retrieves the claims from the context, returning nil if not present.
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return claims
}

// MustFromContext retrieves the claims from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Claims {
	claims := FromContext(ctx)
	if claims == nil {
		panic("auth: Claims not found in context")
	}
	return claims
}
