// ABOUTME: Audit log entity and store methods for tracking login activity
// ABOUTME: Records who logged in, who failed, and which credentials were upgraded

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditLoginSucceeded     AuditAction = "login_succeeded"
	AuditLoginFailed        AuditAction = "login_failed"
	AuditCredentialUpgraded AuditAction = "credential_upgraded"
)

// ValidAuditActions lists all valid audit actions.
var ValidAuditActions = []AuditAction{
	AuditLoginSucceeded,
	AuditLoginFailed,
	AuditCredentialUpgraded,
}

// auditTimeFormat is fixed-width so ts sorts lexically in both dialects.
const auditTimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID            string         // UUID v4
	Action        AuditAction    // what happened
	PrincipalType string         // "admin" | "client" | "client_user", empty when unknown
	PrincipalID   int64          // 0 when the identifier matched nothing
	Email         string         // identifier as submitted
	RemoteAddr    string         // client address as seen by the server
	Timestamp     time.Time      // when it happened
	Detail        map[string]any // additional context, e.g. failure reason
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Action        *AuditAction
	PrincipalType *string
	Email         *string
	Limit         int // default 100, max 1000
}

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	var principalID *int64
	if e.PrincipalID != 0 {
		principalID = &e.PrincipalID
	}

	query := `
		INSERT INTO audit_log (audit_id, action, principal_type, principal_id, email, remote_addr, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Action,
		nullIfEmpty(e.PrincipalType),
		principalID,
		nullIfEmpty(e.Email),
		nullIfEmpty(e.RemoteAddr),
		e.Timestamp.UTC().Format(auditTimeFormat),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"action", e.Action,
		"principal", e.PrincipalType,
	)
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

// ListAuditLog returns audit entries, newest first.
func (s *SQLStore) ListAuditLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	var where []string
	var args []any

	if filter.Action != nil {
		where = append(where, "action = ?")
		args = append(args, *filter.Action)
	}
	if filter.PrincipalType != nil {
		where = append(where, "principal_type = ?")
		args = append(args, *filter.PrincipalType)
	}
	if filter.Email != nil {
		where = append(where, "email = ?")
		args = append(args, *filter.Email)
	}

	query := `SELECT audit_id, action, principal_type, principal_id, email, remote_addr, ts, detail_json FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC LIMIT ?"
	args = append(args, normalizeAuditLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var principalType, email, remoteAddr, detailJSON sql.NullString
		var principalID sql.NullInt64
		var tsStr string

		if err := rows.Scan(&e.ID, &e.Action, &principalType, &principalID, &email, &remoteAddr, &tsStr, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.PrincipalType = principalType.String
		e.PrincipalID = principalID.Int64
		e.Email = email.String
		e.RemoteAddr = remoteAddr.String

		e.Timestamp, err = time.Parse(auditTimeFormat, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing ts: %w", err)
		}

		if detailJSON.Valid {
			if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshaling audit detail: %w", err)
			}
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}

	return entries, nil
}
