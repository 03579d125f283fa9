// audit_archive_repository.go implements the long-term audit archive. Every
// trail entry is written here asynchronously at log time, so the archive
// outlives both the in-memory entry cap and the snapshot cap. It satisfies
// the audit.Archiver interface.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/meddev-qms/meddev-qms/internal/audit"
	"github.com/meddev-qms/meddev-qms/internal/db/models"
)

// AuditArchiveRepository handles audit archive database operations.
type AuditArchiveRepository struct {
	db *sqlx.DB
}

// NewAuditArchiveRepository creates a new AuditArchiveRepository.
func NewAuditArchiveRepository(db *sqlx.DB) *AuditArchiveRepository {
	return &AuditArchiveRepository{db: db}
}

// ArchiveFilters contains filters for querying archived entries.
type ArchiveFilters struct {
	EntityType *string
	EntityID   *string
	Action     *string
	User       *string
	StartDate  *time.Time
	EndDate    *time.Time
}

// Archive inserts one trail entry into the archive.
func (r *AuditArchiveRepository) Archive(ctx context.Context, e audit.Entry) error {
	var metadataJSON []byte
	if e.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling entry metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_archive (id, entity_type, entity_id, entity_name, action, user_name,
			previous_value, new_value, iso_clause, ip_address, user_agent, session_id,
			metadata, previous_hash, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		string(e.EntityType),
		e.EntityID,
		nullString(e.EntityName),
		e.Action,
		e.User,
		nullString(e.PreviousValue),
		nullString(e.NewValue),
		nullString(e.ISOClause),
		nullString(e.IPAddress),
		nullString(e.UserAgent),
		nullString(e.SessionID),
		metadataJSON,
		nullString(e.PreviousHash),
		e.Timestamp,
	)
	return err
}

// List retrieves archived entries with optional filters and pagination,
// newest first, along with the total count matching the filters.
func (r *AuditArchiveRepository) List(ctx context.Context, filters ArchiveFilters, limit, offset int) ([]audit.Entry, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_archive WHERE 1=1`
	query := `
		SELECT id, entity_type, entity_id, entity_name, action, user_name,
			previous_value, new_value, iso_clause, ip_address, user_agent, session_id,
			metadata, previous_hash, recorded_at
		FROM audit_archive
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	paramIndex := 1

	addFilter := func(clause string, value interface{}) {
		cond := fmt.Sprintf(clause, paramIndex)
		countQuery += cond
		query += cond
		args = append(args, value)
		paramIndex++
	}

	if filters.EntityType != nil {
		addFilter(` AND entity_type = $%d`, *filters.EntityType)
	}
	if filters.EntityID != nil {
		addFilter(` AND entity_id = $%d`, *filters.EntityID)
	}
	if filters.Action != nil {
		addFilter(` AND action = $%d`, *filters.Action)
	}
	if filters.User != nil {
		addFilter(` AND user_name = $%d`, *filters.User)
	}
	if filters.StartDate != nil {
		addFilter(` AND recorded_at >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		addFilter(` AND recorded_at <= $%d`, *filters.EndDate)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY recorded_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	var rows []models.ArchivedAuditEntry
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}

	entries := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := rowToEntry(row)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

// DeleteOlderThan removes archive rows recorded before the cutoff and returns
// the number deleted. Used by the retention job with a longer horizon than
// the in-memory purge.
func (r *AuditArchiveRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_archive WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the total number of archived entries.
func (r *AuditArchiveRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_archive`).Scan(&total)
	return total, err
}

func rowToEntry(row models.ArchivedAuditEntry) (audit.Entry, error) {
	e := audit.Entry{
		ID:            row.ID,
		EntityType:    audit.EntityType(row.EntityType),
		EntityID:      row.EntityID,
		EntityName:    row.EntityName.String,
		Action:        row.Action,
		User:          row.UserName,
		PreviousValue: row.PreviousValue.String,
		NewValue:      row.NewValue.String,
		ISOClause:     row.ISOClause.String,
		IPAddress:     row.IPAddress.String,
		UserAgent:     row.UserAgent.String,
		SessionID:     row.SessionID.String,
		PreviousHash:  row.PreviousHash.String,
		Timestamp:     row.RecordedAt,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &e.Metadata); err != nil {
			return audit.Entry{}, fmt.Errorf("unmarshalling entry metadata: %w", err)
		}
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
