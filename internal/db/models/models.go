// Package models defines the database row types for the audit archive.
package models

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ArchivedAuditEntry is one row of the audit_archive table. Unlike the
// in-memory trail, archive rows are never evicted by the entry cap; only the
// retention sweep deletes them.
type ArchivedAuditEntry struct {
	ID            string         `db:"id"`
	EntityType    string         `db:"entity_type"`
	EntityID      string         `db:"entity_id"`
	EntityName    sql.NullString `db:"entity_name"`
	Action        string         `db:"action"`
	UserName      string         `db:"user_name"`
	PreviousValue sql.NullString `db:"previous_value"`
	NewValue      sql.NullString `db:"new_value"`
	ISOClause     sql.NullString `db:"iso_clause"`
	IPAddress     sql.NullString `db:"ip_address"`
	UserAgent     sql.NullString `db:"user_agent"`
	SessionID     sql.NullString `db:"session_id"`
	Metadata      types.JSONText `db:"metadata"`
	PreviousHash  sql.NullString `db:"previous_hash"`
	RecordedAt    time.Time      `db:"recorded_at"`
}
