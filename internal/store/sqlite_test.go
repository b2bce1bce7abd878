// ABOUTME: Tests for the database/sql store implementation
// ABOUTME: Covers SQLite initialization, schema creation, and guarded credential replacement

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if store.Dialect() != DialectSQLite {
		t.Errorf("expected sqlite dialect, got %q", store.Dialect())
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	admin := &AdminUser{Name: "Root", Email: "root@example.com", Password: "pw", RoleName: "super_admin"}
	if err := first.CreateAdminUser(ctx, admin); err != nil {
		t.Fatalf("CreateAdminUser failed: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	got, err := second.GetAdminUserByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatalf("GetAdminUserByEmail after reopen failed: %v", err)
	}
	if got.ID != admin.ID {
		t.Errorf("expected id %d, got %d", admin.ID, got.ID)
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	store.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail after Close")
	}
}

func TestReplaceCredential_Guarded(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	admin := &AdminUser{Name: "Ada", Email: "ada@example.com", Password: "legacy", RoleName: "admin"}
	if err := store.CreateAdminUser(ctx, admin); err != nil {
		t.Fatalf("CreateAdminUser failed: %v", err)
	}

	if err := store.ReplaceCredential(ctx, OwnerAdminUser, admin.ID, "legacy", "$2a$10$first"); err != nil {
		t.Fatalf("first replace failed: %v", err)
	}

	// The stored value no longer equals "legacy", so a second writer loses.
	err := store.ReplaceCredential(ctx, OwnerAdminUser, admin.ID, "legacy", "$2a$10$second")
	if !errors.Is(err, ErrCredentialChanged) {
		t.Fatalf("expected ErrCredentialChanged, got %v", err)
	}

	got, err := store.GetAdminUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetAdminUserByEmail failed: %v", err)
	}
	if got.Password != "$2a$10$first" {
		t.Errorf("expected first replacement to stick, got %q", got.Password)
	}
}

func TestReplaceCredential_AllOwners(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	client := &Client{CompanyName: "Acme", CompanyEmail: "ops@acme.test", AdminPassword: "clientpw"}
	if err := store.CreateClient(ctx, client); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	user := &ClientUser{ClientID: client.ID, FullName: "Sam", Email: "sam@acme.test", Password: "userpw"}
	if err := store.CreateClientUser(ctx, user); err != nil {
		t.Fatalf("CreateClientUser failed: %v", err)
	}

	if err := store.ReplaceCredential(ctx, OwnerClient, client.ID, "clientpw", "$2a$10$c"); err != nil {
		t.Fatalf("client replace failed: %v", err)
	}
	if err := store.ReplaceCredential(ctx, OwnerClientUser, user.ID, "userpw", "$2a$10$u"); err != nil {
		t.Fatalf("client user replace failed: %v", err)
	}

	gotClient, err := store.GetClientByEmail(ctx, "ops@acme.test")
	if err != nil {
		t.Fatalf("GetClientByEmail failed: %v", err)
	}
	if gotClient.AdminPassword != "$2a$10$c" {
		t.Errorf("client password not replaced: %q", gotClient.AdminPassword)
	}

	gotUser, err := store.GetActiveClientUserByEmail(ctx, "sam@acme.test")
	if err != nil {
		t.Fatalf("GetActiveClientUserByEmail failed: %v", err)
	}
	if gotUser.Password != "$2a$10$u" {
		t.Errorf("client user password not replaced: %q", gotUser.Password)
	}
}

func TestReplaceCredential_UnknownOwner(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.ReplaceCredential(context.Background(), CredentialOwner("nope"), 1, "a", "b")
	if err == nil {
		t.Fatal("expected error for unknown owner")
	}
	if errors.Is(err, ErrCredentialChanged) {
		t.Error("unknown owner should not report ErrCredentialChanged")
	}
}

func TestReplaceCredential_ConcurrentWritersOneWins(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	admin := &AdminUser{Name: "Ada", Email: "ada@example.com", Password: "legacy", RoleName: "admin"}
	if err := store.CreateAdminUser(ctx, admin); err != nil {
		t.Fatalf("CreateAdminUser failed: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.ReplaceCredential(ctx, OwnerAdminUser, admin.ID, "legacy", "$2a$10$hash")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winning writer, got %d", wins)
	}
}

func TestTouchLastLogin(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	admin := &AdminUser{Name: "Ada", Email: "ada@example.com", Password: "pw", RoleName: "admin"}
	if err := store.CreateAdminUser(ctx, admin); err != nil {
		t.Fatalf("CreateAdminUser failed: %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.TouchLastLogin(ctx, OwnerAdminUser, admin.ID, at); err != nil {
		t.Fatalf("TouchLastLogin failed: %v", err)
	}

	var stored string
	if err := store.db.QueryRowContext(ctx, `SELECT lastLogin FROM admin_users WHERE id = ?`, admin.ID).Scan(&stored); err != nil {
		t.Fatalf("reading lastLogin failed: %v", err)
	}
	if stored != "2026-03-01T12:00:00Z" {
		t.Errorf("unexpected lastLogin %q", stored)
	}

	if err := store.TouchLastLogin(ctx, OwnerClient, 99, at); err != nil {
		t.Errorf("client touch should be a no-op, got %v", err)
	}
}

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
