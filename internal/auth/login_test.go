// ABOUTME: Tests for the shared login pipeline
// ABOUTME: Covers priority resolution, legacy upgrades, non-blocking upgrade writes and the empty-password policy

package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/codecafelab/aicaller-gateway/internal/background"
	"github.com/codecafelab/aicaller-gateway/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loginRecorder collects metrics calls, which arrive from worker goroutines too.
type loginRecorder struct {
	mu       sync.Mutex
	logins   []string
	upgrades []string
}

func (r *loginRecorder) LoginAttempt(route, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, route+":"+outcome)
}

func (r *loginRecorder) CredentialUpgrade(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upgrades = append(r.upgrades, outcome)
}

func (r *loginRecorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logins...), append([]string(nil), r.upgrades...)
}

type loginFixture struct {
	store    *store.MockStore
	queue    *background.Queue
	verifier *PasswordVerifier
	svc      *LoginService
	rec      *loginRecorder
}

func newLoginFixture(t *testing.T, configure ...func(*LoginServiceConfig)) *loginFixture {
	t.Helper()

	s := store.NewMockStore()
	q := background.New(background.Config{Workers: 2, Logger: discardLogger()})
	t.Cleanup(func() { _ = q.Close(context.Background()) })

	issuer, err := NewTokenIssuer(testSecret)
	require.NoError(t, err)

	f := &loginFixture{
		store:    s,
		queue:    q,
		verifier: NewPasswordVerifier(bcrypt.MinCost),
		rec:      &loginRecorder{},
	}

	cfg := LoginServiceConfig{
		Resolver: NewResolver(s, discardLogger()),
		Verifier: f.verifier,
		Issuer:   issuer,
		Writer:   s,
		Audit:    s,
		Jobs:     q,
		Recorder: f.rec,
		Logger:   discardLogger(),
	}
	for _, fn := range configure {
		fn(&cfg)
	}

	f.svc, err = NewLoginService(cfg)
	require.NoError(t, err)
	return f
}

// drain waits for every queued background job.
func (f *loginFixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, f.queue.Close(context.Background()))
}

func (f *loginFixture) login(email, password string, kinds ...PrincipalKind) (*LoginResult, error) {
	return f.svc.Login(context.Background(), LoginRequest{
		Email:      email,
		Password:   password,
		RemoteAddr: "127.0.0.1:5555",
		Route:      "login",
		Kinds:      kinds,
	})
}

func TestLogin_PriorityAdminOverClient(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	hash := mustHash(t, "shared-pass")
	require.NoError(t, f.store.CreateAdminUser(ctx, &store.AdminUser{Name: "Ada", Email: "dup@x.com", Password: hash, RoleName: "super_admin"}))
	require.NoError(t, f.store.CreateClient(ctx, &store.Client{CompanyName: "Dup Co", CompanyEmail: "dup@x.com", AdminPassword: "shared-pass"}))

	res, err := f.login("dup@x.com", "shared-pass")
	require.NoError(t, err)
	assert.Equal(t, KindAdmin, res.Principal.Kind)
	assert.Equal(t, KindAdmin, res.Claims.Type)
	assert.Equal(t, "super_admin", res.Claims.Role)
	assert.NotEmpty(t, res.Token)
}

func TestLogin_PriorityAdminWrongPasswordDoesNotFallThrough(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.CreateAdminUser(ctx, &store.AdminUser{Name: "Ada", Email: "dup@x.com", Password: mustHash(t, "admin-pass"), RoleName: "admin"}))
	require.NoError(t, f.store.CreateClient(ctx, &store.Client{CompanyName: "Dup Co", CompanyEmail: "dup@x.com", AdminPassword: "client-pass"}))

	// The client password is right but the admin row matched first.
	_, err := f.login("dup@x.com", "client-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 0, f.store.Lookups(store.OwnerClient))
}

func TestLogin_LegacyPlaintextUpgrade(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	client := &store.Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test", AdminPassword: "legacy-pass"}
	require.NoError(t, f.store.CreateClient(ctx, client))

	res, err := f.login("ops@acme.test", "legacy-pass")
	require.NoError(t, err)
	assert.Equal(t, KindClient, res.Principal.Kind)
	assert.Equal(t, "Acme", res.Claims.CompanyName)

	f.drain(t)

	stored := f.store.StoredCredential(store.OwnerClient, client.ID)
	require.True(t, IsHashed(stored), "credential should be upgraded, got %q", stored)
	assert.Equal(t, VerifyResult{Valid: true}, f.verifier.Verify("legacy-pass", stored))

	_, upgrades := f.rec.snapshot()
	assert.Equal(t, []string{"upgraded"}, upgrades)

	upgraded := store.AuditCredentialUpgraded
	entries, err := f.store.ListAuditLog(ctx, store.AuditFilter{Action: &upgraded})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLogin_SecondLoginUsesHashedPath(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	client := &store.Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test", AdminPassword: "legacy-pass"}
	require.NoError(t, f.store.CreateClient(ctx, client))

	_, err := f.login("ops@acme.test", "legacy-pass")
	require.NoError(t, err)

	// Wait for the upgrade without closing the queue.
	require.Eventually(t, func() bool {
		return IsHashed(f.store.StoredCredential(store.OwnerClient, client.ID))
	}, 5*time.Second, 10*time.Millisecond)
	hashed := f.store.StoredCredential(store.OwnerClient, client.ID)

	_, err = f.login("ops@acme.test", "legacy-pass")
	require.NoError(t, err)
	f.drain(t)

	// No second upgrade happened: the hash is unchanged.
	assert.Equal(t, hashed, f.store.StoredCredential(store.OwnerClient, client.ID))
	_, upgrades := f.rec.snapshot()
	assert.Equal(t, []string{"upgraded"}, upgrades)
}

func TestLogin_UpgradeDoesNotBlockResponse(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	f := newLoginFixture(t)
	f.store.BeforeReplace = func(ctx context.Context, owner store.CredentialOwner, id int64) error {
		close(entered)
		<-release
		return nil
	}

	ctx := context.Background()
	user := &store.AdminUser{Name: "Ada", Email: "ada@x.com", Password: "plain", RoleName: "admin"}
	require.NoError(t, f.store.CreateAdminUser(ctx, user))

	start := time.Now()
	res, err := f.login("ada@x.com", "plain")
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	// The write is stuck, yet the login already returned.
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("upgrade write never started")
	}
	assert.Equal(t, "plain", f.store.StoredCredential(store.OwnerAdminUser, user.ID))
	assert.Less(t, elapsed, 2*time.Second)

	close(release)
	f.drain(t)
	assert.True(t, IsHashed(f.store.StoredCredential(store.OwnerAdminUser, user.ID)))
}

func TestLogin_FailingUpgradeStillLogsIn(t *testing.T) {
	f := newLoginFixture(t)
	f.store.BeforeReplace = func(ctx context.Context, owner store.CredentialOwner, id int64) error {
		return errors.New("deadlock found when trying to get lock")
	}

	ctx := context.Background()
	user := &store.AdminUser{Name: "Ada", Email: "ada@x.com", Password: "plain", RoleName: "admin"}
	require.NoError(t, f.store.CreateAdminUser(ctx, user))

	res, err := f.login("ada@x.com", "plain")
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.Claims.ID)

	f.drain(t)
	assert.Equal(t, "plain", f.store.StoredCredential(store.OwnerAdminUser, user.ID))
	_, upgrades := f.rec.snapshot()
	assert.Equal(t, []string{"failed"}, upgrades)
}

func TestLogin_UpgradeSkippedWhenCredentialChanged(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	user := &store.AdminUser{Name: "Ada", Email: "ada@x.com", Password: "plain", RoleName: "admin"}
	require.NoError(t, f.store.CreateAdminUser(ctx, user))

	// Someone resets the password between the read and the upgrade write.
	f.store.BeforeReplace = func(ctx context.Context, owner store.CredentialOwner, id int64) error {
		f.store.BeforeReplace = nil
		return f.store.ReplaceCredential(ctx, owner, id, "plain", "reset-by-admin")
	}

	_, err := f.login("ada@x.com", "plain")
	require.NoError(t, err)
	f.drain(t)

	assert.Equal(t, "reset-by-admin", f.store.StoredCredential(store.OwnerAdminUser, user.ID))
	_, upgrades := f.rec.snapshot()
	assert.Equal(t, []string{"skipped"}, upgrades)
}

func TestLogin_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateAdminUser(ctx, &store.AdminUser{Name: "Ada", Email: "ada@x.com", Password: mustHash(t, "right"), RoleName: "admin"}))

	_, unknownErr := f.login("ghost@x.com", "whatever")
	_, wrongErr := f.login("ada@x.com", "wrong")

	for _, err := range []error{unknownErr, wrongErr} {
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, 401, HTTPStatus(err))
		assert.Equal(t, "Invalid credentials", PublicMessage(err))
	}
	assert.ErrorIs(t, unknownErr, ErrPrincipalNotFound)

	f.drain(t)
	failed := store.AuditLoginFailed
	entries, err := f.store.ListAuditLog(ctx, store.AuditFilter{Action: &failed})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	logins, _ := f.rec.snapshot()
	assert.Equal(t, []string{"login:invalid", "login:invalid"}, logins)
}

func TestLogin_StoreErrorIsNotInvalidCredentials(t *testing.T) {
	f := newLoginFixture(t)
	f.store.LookupErr = errors.New("connection refused")

	_, err := f.login("ada@x.com", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
	assert.Equal(t, 500, HTTPStatus(err))

	logins, _ := f.rec.snapshot()
	assert.Equal(t, []string{"login:error"}, logins)
}

func TestLogin_MissingCredentials(t *testing.T) {
	f := newLoginFixture(t)

	for _, tc := range [][2]string{{"", "pw"}, {"   ", "pw"}, {"a@x.com", ""}} {
		_, err := f.login(tc[0], tc[1])
		assert.ErrorIs(t, err, ErrMissingCredentials)
		assert.Equal(t, 400, HTTPStatus(err))
	}
	assert.Equal(t, 0, f.store.Lookups(store.OwnerAdminUser))
}

func TestLogin_EmailIsTrimmed(t *testing.T) {
	f := newLoginFixture(t)
	require.NoError(t, f.store.CreateAdminUser(context.Background(), &store.AdminUser{Name: "Ada", Email: "ada@x.com", Password: mustHash(t, "pw"), RoleName: "admin"}))

	_, err := f.login("  ada@x.com ", "pw")
	assert.NoError(t, err)
}

func seedClientUser(t *testing.T, s *store.MockStore, password, status string) *store.ClientUser {
	t.Helper()
	ctx := context.Background()
	client := &store.Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test", AdminPassword: "x"}
	require.NoError(t, s.CreateClient(ctx, client))
	role := &store.UserRole{ClientID: &client.ID, RoleName: "viewer", PermissionsSummary: `["reports.view"]`}
	require.NoError(t, s.CreateUserRole(ctx, role))
	user := &store.ClientUser{ClientID: client.ID, RoleID: &role.ID, FullName: "Sam Doe", Email: "sam@acme.test", Password: password, Status: status}
	require.NoError(t, s.CreateClientUser(ctx, user))
	return user
}

func TestLogin_ClientUserClaims(t *testing.T) {
	f := newLoginFixture(t)
	user := seedClientUser(t, f.store, mustHash(t, "pw"), store.ClientUserStatusActive)

	res, err := f.login("sam@acme.test", "pw", KindClientUser)
	require.NoError(t, err)
	assert.Equal(t, KindClientUser, res.Claims.Type)
	assert.Equal(t, RoleClientUser, res.Claims.Role)
	assert.Equal(t, "viewer", res.Claims.RoleName)
	assert.Equal(t, []string{"reports.view"}, res.Claims.Permissions)
	assert.Equal(t, user.ClientID, res.Claims.ClientID)
	assert.Equal(t, "Acme", res.Claims.CompanyName)
	assert.Equal(t, "Sam Doe", res.Claims.FullName)
	assert.Nil(t, res.Claims.ExpiresAt)

	f.drain(t)
	_, ok := f.store.LastLogin(store.OwnerClientUser, user.ID)
	assert.True(t, ok, "last login should be stamped")
}

func TestLogin_InactiveClientUserRejected(t *testing.T) {
	f := newLoginFixture(t)
	seedClientUser(t, f.store, mustHash(t, "pw"), "Inactive")

	_, err := f.login("sam@acme.test", "pw", KindClientUser)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_EmptyClientUserPasswordDeniedByDefault(t *testing.T) {
	f := newLoginFixture(t)
	seedClientUser(t, f.store, "", store.ClientUserStatusActive)

	_, err := f.login("sam@acme.test", "anything", KindClientUser)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_EmptyClientUserPasswordLegacyBypass(t *testing.T) {
	f := newLoginFixture(t, func(cfg *LoginServiceConfig) {
		cfg.AllowEmptyClientUserPassword = true
	})
	user := seedClientUser(t, f.store, "", store.ClientUserStatusActive)

	res, err := f.login("sam@acme.test", "anything", KindClientUser)
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.Claims.ID)

	// Nothing to upgrade: the column stays empty.
	f.drain(t)
	assert.Empty(t, f.store.StoredCredential(store.OwnerClientUser, user.ID))
}

func TestLogin_EmptyAdminPasswordNeverBypasses(t *testing.T) {
	f := newLoginFixture(t, func(cfg *LoginServiceConfig) {
		cfg.AllowEmptyClientUserPassword = true
	})
	require.NoError(t, f.store.CreateClient(context.Background(), &store.Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test"}))

	_, err := f.login("ops@acme.test", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNewLoginService_RequiresDependencies(t *testing.T) {
	_, err := NewLoginService(LoginServiceConfig{})
	assert.Error(t, err)
}
