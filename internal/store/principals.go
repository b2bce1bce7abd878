// ABOUTME: Principal lookup and credential maintenance queries
// ABOUTME: Reads admin_users, clients, client_users (joined with roles) and guards password upgrades

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetAdminUserByEmail retrieves a platform admin by exact email match.
func (s *SQLStore) GetAdminUserByEmail(ctx context.Context, email string) (*AdminUser, error) {
	query := `
		SELECT id, name, email, password, roleName
		FROM admin_users
		WHERE email = ?
		LIMIT 1
	`

	var user AdminUser
	var password, roleName sql.NullString

	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&password,
		&roleName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin user by email: %w", err)
	}

	user.Password = password.String
	user.RoleName = roleName.String
	return &user, nil
}

// GetClientByEmail retrieves a client company by its admin login email.
func (s *SQLStore) GetClientByEmail(ctx context.Context, email string) (*Client, error) {
	query := `
		SELECT id, companyName, companyEmail, adminPassword
		FROM clients
		WHERE companyEmail = ?
		LIMIT 1
	`

	var client Client
	var adminPassword sql.NullString

	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&client.ID,
		&client.CompanyName,
		&client.CompanyEmail,
		&adminPassword,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying client by email: %w", err)
	}

	client.AdminPassword = adminPassword.String
	return &client, nil
}

// GetActiveClientUserByEmail retrieves an active client sub-user together with
// its role name, permission summary and company name.
// Users whose status is not Active are reported as ErrNotFound.
func (s *SQLStore) GetActiveClientUserByEmail(ctx context.Context, email string) (*ClientUser, error) {
	query := `
		SELECT cu.id, cu.client_id, cu.role_id, cu.full_name, cu.email, cu.password, cu.status,
		       ur.role_name, ur.permissions_summary, c.companyName
		FROM client_users cu
		LEFT JOIN user_roles ur ON cu.role_id = ur.id
		LEFT JOIN clients c ON cu.client_id = c.id
		WHERE cu.email = ? AND cu.status = ?
		LIMIT 1
	`

	var user ClientUser
	var roleID sql.NullInt64
	var password, roleName, permissions, companyName sql.NullString

	err := s.db.QueryRowContext(ctx, query, email, ClientUserStatusActive).Scan(
		&user.ID,
		&user.ClientID,
		&roleID,
		&user.FullName,
		&user.Email,
		&password,
		&user.Status,
		&roleName,
		&permissions,
		&companyName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying client user by email: %w", err)
	}

	if roleID.Valid {
		id := roleID.Int64
		user.RoleID = &id
	}
	user.Password = password.String
	user.RoleName = roleName.String
	user.PermissionsSummary = permissions.String
	user.CompanyName = companyName.String
	return &user, nil
}

// credentialColumns maps an owner to its table and password column.
func credentialColumns(owner CredentialOwner) (table, column string, err error) {
	switch owner {
	case OwnerAdminUser:
		return "admin_users", "password", nil
	case OwnerClient:
		return "clients", "adminPassword", nil
	case OwnerClientUser:
		return "client_users", "password", nil
	default:
		return "", "", fmt.Errorf("unknown credential owner %q", owner)
	}
}

// ReplaceCredential swaps a stored password only while it still equals expected.
// Two concurrent upgrades of the same legacy password both compute valid hashes;
// the second finds the column already changed and affects no rows.
func (s *SQLStore) ReplaceCredential(ctx context.Context, owner CredentialOwner, id int64, expected, replacement string) error {
	table, column, err := credentialColumns(owner)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = ? WHERE id = ? AND %s = ?`, table, column, column)

	result, err := s.db.ExecContext(ctx, query, replacement, id, expected)
	if err != nil {
		return fmt.Errorf("updating %s credential: %w", table, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrCredentialChanged
	}

	s.logger.Info("replaced stored credential", "table", table, "id", id)
	return nil
}

// TouchLastLogin stamps the last-login column for admins and client users.
// clients has no such column, so OwnerClient is a no-op.
func (s *SQLStore) TouchLastLogin(ctx context.Context, owner CredentialOwner, id int64, at time.Time) error {
	var query string
	switch owner {
	case OwnerAdminUser:
		query = `UPDATE admin_users SET lastLogin = ? WHERE id = ?`
	case OwnerClientUser:
		query = `UPDATE client_users SET last_login = ? WHERE id = ?`
	case OwnerClient:
		return nil
	default:
		return fmt.Errorf("unknown credential owner %q", owner)
	}

	if _, err := s.db.ExecContext(ctx, query, s.timeArg(at), id); err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// timeArg formats a timestamp for the dialect: SQLite stores RFC3339 text,
// MySQL binds DATETIME natively.
func (s *SQLStore) timeArg(t time.Time) any {
	if s.dialect == DialectMySQL {
		return t.UTC()
	}
	return t.UTC().Format(time.RFC3339)
}

// CreateAdminUser inserts a platform admin and sets its ID.
func (s *SQLStore) CreateAdminUser(ctx context.Context, user *AdminUser) error {
	query := `
		INSERT INTO admin_users (name, email, password, roleName)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query, user.Name, user.Email, user.Password, user.RoleName)
	if err != nil {
		return fmt.Errorf("inserting admin user: %w", err)
	}

	user.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading admin user id: %w", err)
	}

	s.logger.Info("created admin user", "id", user.ID, "email", user.Email)
	return nil
}

// CreateClient inserts a client company and sets its ID.
func (s *SQLStore) CreateClient(ctx context.Context, client *Client) error {
	query := `
		INSERT INTO clients (companyName, companyEmail, adminPassword)
		VALUES (?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query, client.CompanyName, client.CompanyEmail, nullIfEmpty(client.AdminPassword))
	if err != nil {
		return fmt.Errorf("inserting client: %w", err)
	}

	client.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading client id: %w", err)
	}

	s.logger.Info("created client", "id", client.ID, "email", client.CompanyEmail)
	return nil
}

// CreateUserRole inserts a role bundle for client sub-users and sets its ID.
func (s *SQLStore) CreateUserRole(ctx context.Context, role *UserRole) error {
	query := `
		INSERT INTO user_roles (client_id, role_name, permissions_summary)
		VALUES (?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query, role.ClientID, role.RoleName, nullIfEmpty(role.PermissionsSummary))
	if err != nil {
		return fmt.Errorf("inserting user role: %w", err)
	}

	role.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user role id: %w", err)
	}
	return nil
}

// CreateClientUser inserts a client sub-user and sets its ID.
// An empty Status defaults to Active; an empty Password is stored as NULL.
func (s *SQLStore) CreateClientUser(ctx context.Context, user *ClientUser) error {
	if user.Status == "" {
		user.Status = ClientUserStatusActive
	}

	query := `
		INSERT INTO client_users (client_id, role_id, full_name, email, password, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		user.ClientID,
		user.RoleID,
		user.FullName,
		user.Email,
		nullIfEmpty(user.Password),
		user.Status,
	)
	if err != nil {
		return fmt.Errorf("inserting client user: %w", err)
	}

	user.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading client user id: %w", err)
	}

	s.logger.Info("created client user", "id", user.ID, "client_id", user.ClientID)
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
