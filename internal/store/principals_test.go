// ABOUTME: Tests for principal lookup queries
// ABOUTME: Covers admin, client and client user lookups including role and company joins

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAdminUserByEmail(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	admin := &AdminUser{Name: "Ada", Email: "ada@example.com", Password: "$2a$10$x", RoleName: "super_admin"}
	require.NoError(t, s.CreateAdminUser(ctx, admin))
	assert.NotZero(t, admin.ID)

	got, err := s.GetAdminUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, "$2a$10$x", got.Password)
	assert.Equal(t, "super_admin", got.RoleName)
}

func TestGetAdminUserByEmail_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	_, err := s.GetAdminUserByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAdminUserByEmail_NullPassword(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_users (name, email, password, roleName) VALUES (?, ?, NULL, ?)`,
		"Nil", "nil@example.com", "admin")
	require.NoError(t, err)

	got, err := s.GetAdminUserByEmail(ctx, "nil@example.com")
	require.NoError(t, err)
	assert.Empty(t, got.Password)
	assert.Equal(t, "admin", got.RoleName)
}

func TestGetClientByEmail(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	client := &Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test", AdminPassword: "plain"}
	require.NoError(t, s.CreateClient(ctx, client))

	got, err := s.GetClientByEmail(ctx, "ops@acme.test")
	require.NoError(t, err)
	assert.Equal(t, client.ID, got.ID)
	assert.Equal(t, "Acme", got.CompanyName)
	assert.Equal(t, "plain", got.AdminPassword)

	_, err = s.GetClientByEmail(ctx, "other@acme.test")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetClientByEmail_NullPassword(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateClient(ctx, &Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test"}))

	got, err := s.GetClientByEmail(ctx, "ops@acme.test")
	require.NoError(t, err)
	assert.Empty(t, got.AdminPassword)
}

func TestGetActiveClientUserByEmail_JoinsRoleAndCompany(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	client := &Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test", AdminPassword: "pw"}
	require.NoError(t, s.CreateClient(ctx, client))

	role := &UserRole{ClientID: &client.ID, RoleName: "agent", PermissionsSummary: `["calls.read","calls.write"]`}
	require.NoError(t, s.CreateUserRole(ctx, role))

	user := &ClientUser{ClientID: client.ID, RoleID: &role.ID, FullName: "Sam Doe", Email: "sam@acme.test", Password: "pw"}
	require.NoError(t, s.CreateClientUser(ctx, user))
	assert.Equal(t, ClientUserStatusActive, user.Status)

	got, err := s.GetActiveClientUserByEmail(ctx, "sam@acme.test")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, client.ID, got.ClientID)
	require.NotNil(t, got.RoleID)
	assert.Equal(t, role.ID, *got.RoleID)
	assert.Equal(t, "Sam Doe", got.FullName)
	assert.Equal(t, "agent", got.RoleName)
	assert.Equal(t, `["calls.read","calls.write"]`, got.PermissionsSummary)
	assert.Equal(t, "Acme", got.CompanyName)
}

func TestGetActiveClientUserByEmail_NoRole(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	client := &Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test"}
	require.NoError(t, s.CreateClient(ctx, client))
	require.NoError(t, s.CreateClientUser(ctx, &ClientUser{ClientID: client.ID, FullName: "Sam", Email: "sam@acme.test"}))

	got, err := s.GetActiveClientUserByEmail(ctx, "sam@acme.test")
	require.NoError(t, err)
	assert.Nil(t, got.RoleID)
	assert.Empty(t, got.RoleName)
	assert.Empty(t, got.PermissionsSummary)
	assert.Empty(t, got.Password)
}

func TestGetActiveClientUserByEmail_InactiveIsNotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	client := &Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test"}
	require.NoError(t, s.CreateClient(ctx, client))
	require.NoError(t, s.CreateClientUser(ctx, &ClientUser{
		ClientID: client.ID,
		FullName: "Sam",
		Email:    "sam@acme.test",
		Password: "pw",
		Status:   "Suspended",
	}))

	_, err := s.GetActiveClientUserByEmail(ctx, "sam@acme.test")
	assert.ErrorIs(t, err, ErrNotFound)
}
