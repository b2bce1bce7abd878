// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject failures and delays

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
// The exported hook fields let tests simulate datastore failures and slow writes.
type MockStore struct {
	mu          sync.RWMutex
	admins      map[int64]*AdminUser
	clients     map[int64]*Client
	roles       map[int64]*UserRole
	clientUsers map[int64]*ClientUser
	audit       []*AuditEntry
	lastLogins  map[CredentialOwner]map[int64]time.Time
	nextID      int64

	// LookupErr, when set, is returned by every PrincipalReader method.
	LookupErr error

	// LookupCalls counts PrincipalReader calls per owner.
	LookupCalls map[CredentialOwner]int

	// BeforeReplace runs at the start of ReplaceCredential; a non-nil return
	// aborts the write with that error. It may block to simulate a slow write.
	BeforeReplace func(ctx context.Context, owner CredentialOwner, id int64) error

	// AuditErr, when set, is returned by AppendAuditLog.
	AuditErr error
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		admins:      make(map[int64]*AdminUser),
		clients:     make(map[int64]*Client),
		roles:       make(map[int64]*UserRole),
		clientUsers: make(map[int64]*ClientUser),
		lastLogins:  make(map[CredentialOwner]map[int64]time.Time),
		LookupCalls: make(map[CredentialOwner]int),
	}
}

func (m *MockStore) recordLookup(owner CredentialOwner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LookupCalls[owner]++
	return m.LookupErr
}

// Lookups returns how many times the given owner's table was queried.
func (m *MockStore) Lookups(owner CredentialOwner) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LookupCalls[owner]
}

// GetAdminUserByEmail returns a copy of the admin with the given email.
func (m *MockStore) GetAdminUserByEmail(ctx context.Context, email string) (*AdminUser, error) {
	if err := m.recordLookup(OwnerAdminUser); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range sortedIDs(m.admins) {
		if a := m.admins[id]; a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// GetClientByEmail returns a copy of the client with the given company email.
func (m *MockStore) GetClientByEmail(ctx context.Context, email string) (*Client, error) {
	if err := m.recordLookup(OwnerClient); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range sortedIDs(m.clients) {
		if c := m.clients[id]; c.CompanyEmail == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// GetActiveClientUserByEmail returns an active client user with joined role and company columns.
func (m *MockStore) GetActiveClientUserByEmail(ctx context.Context, email string) (*ClientUser, error) {
	if err := m.recordLookup(OwnerClientUser); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range sortedIDs(m.clientUsers) {
		u := m.clientUsers[id]
		if u.Email != email || u.Status != ClientUserStatusActive {
			continue
		}
		cp := *u
		if u.RoleID != nil {
			if r, ok := m.roles[*u.RoleID]; ok {
				cp.RoleName = r.RoleName
				cp.PermissionsSummary = r.PermissionsSummary
			}
		}
		if c, ok := m.clients[u.ClientID]; ok {
			cp.CompanyName = c.CompanyName
		}
		return &cp, nil
	}
	return nil, ErrNotFound
}

// ReplaceCredential swaps a stored password when it still equals expected.
func (m *MockStore) ReplaceCredential(ctx context.Context, owner CredentialOwner, id int64, expected, replacement string) error {
	if m.BeforeReplace != nil {
		if err := m.BeforeReplace(ctx, owner, id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var current *string
	switch owner {
	case OwnerAdminUser:
		if a, ok := m.admins[id]; ok {
			current = &a.Password
		}
	case OwnerClient:
		if c, ok := m.clients[id]; ok {
			current = &c.AdminPassword
		}
	case OwnerClientUser:
		if u, ok := m.clientUsers[id]; ok {
			current = &u.Password
		}
	}

	if current == nil || *current != expected {
		return ErrCredentialChanged
	}
	*current = replacement
	return nil
}

// TouchLastLogin records the last-login time for admins and client users.
func (m *MockStore) TouchLastLogin(ctx context.Context, owner CredentialOwner, id int64, at time.Time) error {
	if owner == OwnerClient {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastLogins[owner] == nil {
		m.lastLogins[owner] = make(map[int64]time.Time)
	}
	m.lastLogins[owner][id] = at
	return nil
}

// LastLogin returns the recorded last-login time, if any.
func (m *MockStore) LastLogin(owner CredentialOwner, id int64) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.lastLogins[owner][id]
	return at, ok
}

// StoredCredential returns the current password column for a principal.
func (m *MockStore) StoredCredential(owner CredentialOwner, id int64) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch owner {
	case OwnerAdminUser:
		if a, ok := m.admins[id]; ok {
			return a.Password
		}
	case OwnerClient:
		if c, ok := m.clients[id]; ok {
			return c.AdminPassword
		}
	case OwnerClientUser:
		if u, ok := m.clientUsers[id]; ok {
			return u.Password
		}
	}
	return ""
}

// AppendAuditLog stores an audit entry in memory.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if m.AuditErr != nil {
		return m.AuditErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	cp := *e
	m.audit = append(m.audit, &cp)
	return nil
}

// ListAuditLog returns stored audit entries, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if filter.Action != nil && e.Action != *filter.Action {
			continue
		}
		if filter.PrincipalType != nil && e.PrincipalType != *filter.PrincipalType {
			continue
		}
		if filter.Email != nil && e.Email != *filter.Email {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if len(out) >= normalizeAuditLimit(filter.Limit) {
			break
		}
	}
	return out, nil
}

// CreateAdminUser stores an admin and assigns its ID.
func (m *MockStore) CreateAdminUser(ctx context.Context, user *AdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	user.ID = m.nextID
	cp := *user
	m.admins[user.ID] = &cp
	return nil
}

// CreateClient stores a client and assigns its ID.
func (m *MockStore) CreateClient(ctx context.Context, client *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	client.ID = m.nextID
	cp := *client
	m.clients[client.ID] = &cp
	return nil
}

// CreateUserRole stores a role and assigns its ID.
func (m *MockStore) CreateUserRole(ctx context.Context, role *UserRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	role.ID = m.nextID
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

// CreateClientUser stores a client user and assigns its ID.
func (m *MockStore) CreateClientUser(ctx context.Context, user *ClientUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.Status == "" {
		user.Status = ClientUserStatusActive
	}
	m.nextID++
	user.ID = m.nextID
	cp := *user
	m.clientUsers[user.ID] = &cp
	return nil
}

// Ping always succeeds unless LookupErr is set.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LookupErr
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// sortedIDs returns map keys in ascending order so lookups are deterministic.
func sortedIDs[T any](rows map[int64]T) []int64 {
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
