// ABOUTME: Principal variants that can log in: platform admins, client admins, client sub-users
// ABOUTME: Converts store rows into one tagged Principal shape used by verifier and issuer

package auth

import (
	"encoding/json"
	"log/slog"

	"github.com/codecafelab/aicaller-gateway/internal/store"
)

// PrincipalKind tags which table a principal came from. The value is also the
// "type" claim of its session token.
type PrincipalKind string

const (
	KindAdmin      PrincipalKind = "admin"
	KindClient     PrincipalKind = "client"
	KindClientUser PrincipalKind = "client_user"
)

// Fixed role strings for tenant principals.
const (
	RoleClientAdmin = "client_admin"
	RoleClientUser  = "client_user"
)

// ResolutionOrder is the priority in which the combined login looks up an email.
var ResolutionOrder = []PrincipalKind{KindAdmin, KindClient, KindClientUser}

// Valid reports whether k is a known kind.
func (k PrincipalKind) Valid() bool {
	switch k {
	case KindAdmin, KindClient, KindClientUser:
		return true
	}
	return false
}

// Owner returns the table holding this kind's credential.
func (k PrincipalKind) Owner() store.CredentialOwner {
	switch k {
	case KindClient:
		return store.OwnerClient
	case KindClientUser:
		return store.OwnerClientUser
	default:
		return store.OwnerAdminUser
	}
}

// Principal is a resolved login candidate. Tenant fields are zero for admins.
type Principal struct {
	Kind       PrincipalKind
	ID         int64
	Email      string
	Name       string // admin name, company name, or sub-user full name
	Role       string
	Credential string // stored password column, hashed or legacy plaintext

	ClientID    int64
	CompanyName string

	// Sub-users only.
	RoleName    string
	Permissions []string
	FullName    string
}

func principalFromAdmin(u *store.AdminUser) *Principal {
	return &Principal{
		Kind:       KindAdmin,
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.RoleName,
		Credential: u.Password,
	}
}

func principalFromClient(c *store.Client) *Principal {
	return &Principal{
		Kind:        KindClient,
		ID:          c.ID,
		Email:       c.CompanyEmail,
		Name:        c.CompanyName,
		Role:        RoleClientAdmin,
		Credential:  c.AdminPassword,
		ClientID:    c.ID,
		CompanyName: c.CompanyName,
	}
}

func principalFromClientUser(u *store.ClientUser, logger *slog.Logger) *Principal {
	return &Principal{
		Kind:        KindClientUser,
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.FullName,
		Role:        RoleClientUser,
		Credential:  u.Password,
		ClientID:    u.ClientID,
		CompanyName: u.CompanyName,
		RoleName:    u.RoleName,
		Permissions: parsePermissions(u.PermissionsSummary, u.ID, logger),
		FullName:    u.FullName,
	}
}

// parsePermissions decodes a permissions_summary JSON array.
// Empty or unparseable summaries yield an empty, non-nil set.
func parsePermissions(summary string, userID int64, logger *slog.Logger) []string {
	perms := []string{}
	if summary == "" {
		return perms
	}
	if err := json.Unmarshal([]byte(summary), &perms); err != nil {
		logger.Warn("unparseable permissions summary", "client_user_id", userID, "error", err)
		return []string{}
	}
	if perms == nil {
		return []string{}
	}
	return perms
}
