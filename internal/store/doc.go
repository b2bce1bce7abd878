// Package store provides persistent storage for login principals and the login audit trail.
//
// # Architecture
//
// The store package splits persistence into small interfaces:
//
//   - PrincipalReader: Lookup of admins, clients and active client users by email
//   - CredentialWriter: Guarded credential replacement and last-login stamping
//   - AuditStore: Append-only login audit log
//   - PrincipalAdmin: Row creation used by the CLI and tests
//
// SQLStore implements all of them over database/sql, and Store combines them.
//
// # Data Models
//
//   - AdminUser: Platform administrator (admin_users)
//   - Client: Tenant company with its admin login (clients)
//   - ClientUser: Client sub-user joined with its role and company (client_users)
//   - UserRole: Named permission bundle for sub-users (user_roles)
//   - AuditEntry: One login or credential-upgrade event (audit_log)
//
// # Backends
//
// SQLite (modernc.org/sqlite) is used for development and tests. It owns its
// full schema and runs with WAL mode and a busy timeout on every connection.
//
// MySQL (github.com/go-sql-driver/mysql) is used in production against the
// existing principal tables. Only audit_log is created.
//
// # Error Handling
//
//   - ErrNotFound: No row matched the lookup
//   - ErrCredentialChanged: A guarded credential replace found the value already changed
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests. Its hook fields simulate lookup failures
// and slow or failing credential writes. Use NewSQLiteStore with a path under
// t.TempDir() for integration tests.
package store
