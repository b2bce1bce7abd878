// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLStore
// ABOUTME: Focuses on guarded credential replacement and the failure hooks

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_ReplaceCredential_Guarded(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	admin := &AdminUser{Name: "Ada", Email: "ada@example.com", Password: "legacy"}
	require.NoError(t, m.CreateAdminUser(ctx, admin))

	require.NoError(t, m.ReplaceCredential(ctx, OwnerAdminUser, admin.ID, "legacy", "hashed"))
	assert.Equal(t, "hashed", m.StoredCredential(OwnerAdminUser, admin.ID))

	err := m.ReplaceCredential(ctx, OwnerAdminUser, admin.ID, "legacy", "other")
	assert.ErrorIs(t, err, ErrCredentialChanged)
	assert.Equal(t, "hashed", m.StoredCredential(OwnerAdminUser, admin.ID))

	err = m.ReplaceCredential(ctx, OwnerClientUser, 999, "x", "y")
	assert.ErrorIs(t, err, ErrCredentialChanged)
}

func TestMockStore_BeforeReplaceHook(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	client := &Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test", AdminPassword: "legacy"}
	require.NoError(t, m.CreateClient(ctx, client))

	boom := errors.New("disk full")
	m.BeforeReplace = func(ctx context.Context, owner CredentialOwner, id int64) error {
		assert.Equal(t, OwnerClient, owner)
		assert.Equal(t, client.ID, id)
		return boom
	}

	err := m.ReplaceCredential(ctx, OwnerClient, client.ID, "legacy", "hashed")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "legacy", m.StoredCredential(OwnerClient, client.ID))
}

func TestMockStore_LookupErrAndCounts(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	_, err := m.GetAdminUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, m.Lookups(OwnerAdminUser))

	m.LookupErr = errors.New("connection refused")
	_, err = m.GetClientByEmail(ctx, "nobody@example.com")
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, 1, m.Lookups(OwnerClient))
	assert.Error(t, m.Ping(ctx))
}

func TestMockStore_ClientUserJoinAndStatus(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	client := &Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test"}
	require.NoError(t, m.CreateClient(ctx, client))
	role := &UserRole{ClientID: &client.ID, RoleName: "agent", PermissionsSummary: `["calls.read"]`}
	require.NoError(t, m.CreateUserRole(ctx, role))

	require.NoError(t, m.CreateClientUser(ctx, &ClientUser{ClientID: client.ID, RoleID: &role.ID, FullName: "Sam", Email: "sam@acme.test"}))
	require.NoError(t, m.CreateClientUser(ctx, &ClientUser{ClientID: client.ID, FullName: "Old", Email: "old@acme.test", Status: "Inactive"}))

	got, err := m.GetActiveClientUserByEmail(ctx, "sam@acme.test")
	require.NoError(t, err)
	assert.Equal(t, "agent", got.RoleName)
	assert.Equal(t, "Acme", got.CompanyName)

	_, err = m.GetActiveClientUserByEmail(ctx, "old@acme.test")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockStore_TouchLastLogin(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	at := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, m.TouchLastLogin(ctx, OwnerAdminUser, 3, at))
	got, ok := m.LastLogin(OwnerAdminUser, 3)
	require.True(t, ok)
	assert.Equal(t, at, got)

	require.NoError(t, m.TouchLastLogin(ctx, OwnerClient, 4, at))
	_, ok = m.LastLogin(OwnerClient, 4)
	assert.False(t, ok)
}

func TestMockStore_AuditFilterAndLimit(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.AppendAuditLog(ctx, &AuditEntry{Action: AuditLoginFailed, Email: "a@x.test"}))
	require.NoError(t, m.AppendAuditLog(ctx, &AuditEntry{Action: AuditLoginSucceeded, Email: "b@x.test"}))
	require.NoError(t, m.AppendAuditLog(ctx, &AuditEntry{Action: AuditLoginFailed, Email: "c@x.test"}))

	failed := AuditLoginFailed
	entries, err := m.ListAuditLog(ctx, AuditFilter{Action: &failed})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c@x.test", entries[0].Email)

	entries, err = m.ListAuditLog(ctx, AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c@x.test", entries[0].Email)

	m.AuditErr = errors.New("read only")
	assert.Error(t, m.AppendAuditLog(ctx, &AuditEntry{Action: AuditLoginFailed}))
}
