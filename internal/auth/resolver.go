// ABOUTME: Priority-ordered principal lookup across the three login tables
// ABOUTME: First table with a matching row wins; store failures are kept distinct from not-found

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codecafelab/aicaller-gateway/internal/store"
)

// Resolver finds the principal behind a login email.
type Resolver struct {
	store  store.PrincipalReader
	logger *slog.Logger
}

// NewResolver creates a resolver over the given principal tables.
func NewResolver(s store.PrincipalReader, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  s,
		logger: logger.With("component", "resolver"),
	}
}

// Resolve queries each kind in order and returns the first match.
// With no kinds it uses ResolutionOrder. Lookups are sequential and stop at the
// first hit, so a later table is never queried once an earlier one matched.
//
// Returns ErrPrincipalNotFound when no table has the email, or a *StoreError
// when a query fails.
func (r *Resolver) Resolve(ctx context.Context, email string, kinds ...PrincipalKind) (*Principal, error) {
	if len(kinds) == 0 {
		kinds = ResolutionOrder
	}

	for _, kind := range kinds {
		p, err := r.lookup(ctx, kind, email)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, &StoreError{Kind: kind, Err: err}
		}
		return p, nil
	}
	return nil, ErrPrincipalNotFound
}

func (r *Resolver) lookup(ctx context.Context, kind PrincipalKind, email string) (*Principal, error) {
	switch kind {
	case KindAdmin:
		u, err := r.store.GetAdminUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		return principalFromAdmin(u), nil

	case KindClient:
		c, err := r.store.GetClientByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		return principalFromClient(c), nil

	case KindClientUser:
		u, err := r.store.GetActiveClientUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		return principalFromClientUser(u, r.logger), nil

	default:
		return nil, fmt.Errorf("unknown principal kind %q", kind)
	}
}
