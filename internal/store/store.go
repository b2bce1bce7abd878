// ABOUTME: Principal record types and the Store interface for aicaller-gateway persistence
// ABOUTME: Models platform admins, client companies, client sub-users, and their roles

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrCredentialChanged is returned by ReplaceCredential when the stored
// credential no longer matches the expected value (another writer got there first).
var ErrCredentialChanged = errors.New("credential changed since it was read")

// ClientUserStatusActive is the only client_users.status value that may log in.
const ClientUserStatusActive = "Active"

// AdminUser is a row of admin_users: a platform-wide administrator.
type AdminUser struct {
	ID        int64
	Name      string
	Email     string
	Password  string // bcrypt hash, or legacy plaintext; empty when NULL
	RoleName  string // e.g. "super_admin"
	LastLogin *time.Time
}

// Client is a row of clients: a tenant company and its admin login.
type Client struct {
	ID            int64
	CompanyName   string
	CompanyEmail  string
	AdminPassword string // bcrypt hash, or legacy plaintext
}

// ClientUser is a row of client_users joined with its role and company.
type ClientUser struct {
	ID       int64
	ClientID int64
	RoleID   *int64
	FullName string
	Email    string
	Password string // empty when the column is NULL
	Status   string

	// Joined columns; empty when the LEFT JOIN finds nothing.
	RoleName           string
	PermissionsSummary string // JSON array of permission strings
	CompanyName        string
}

// UserRole is a row of user_roles: a named permission bundle for client sub-users.
type UserRole struct {
	ID                 int64
	ClientID           *int64
	RoleName           string
	PermissionsSummary string
}

// CredentialOwner identifies which table and column hold a principal's password.
type CredentialOwner string

const (
	OwnerAdminUser  CredentialOwner = "admin_users"
	OwnerClient     CredentialOwner = "clients"
	OwnerClientUser CredentialOwner = "client_users"
)

// PrincipalReader looks up login candidates by email.
// Each method returns ErrNotFound when no row matches.
type PrincipalReader interface {
	GetAdminUserByEmail(ctx context.Context, email string) (*AdminUser, error)
	GetClientByEmail(ctx context.Context, email string) (*Client, error)
	GetActiveClientUserByEmail(ctx context.Context, email string) (*ClientUser, error)
}

// CredentialWriter mutates login-related columns outside the response path.
type CredentialWriter interface {
	// ReplaceCredential swaps the stored password for replacement only if it
	// still equals expected. Returns ErrCredentialChanged when 0 rows match.
	ReplaceCredential(ctx context.Context, owner CredentialOwner, id int64, expected, replacement string) error

	// TouchLastLogin stamps the last-login column. Owners without one are a no-op.
	TouchLastLogin(ctx context.Context, owner CredentialOwner, id int64, at time.Time) error
}

// AuditStore records and lists login audit entries.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// PrincipalAdmin creates principal rows. Used by the CLI and tests.
type PrincipalAdmin interface {
	CreateAdminUser(ctx context.Context, user *AdminUser) error
	CreateClient(ctx context.Context, client *Client) error
	CreateUserRole(ctx context.Context, role *UserRole) error
	CreateClientUser(ctx context.Context, user *ClientUser) error
}

// Store combines every persistence concern of the gateway.
type Store interface {
	PrincipalReader
	CredentialWriter
	AuditStore
	PrincipalAdmin

	Ping(ctx context.Context) error
	Close() error
}
