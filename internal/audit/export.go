package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

// Filters narrows an export to a subset of the trail. Zero-valued fields are
// ignored; set fields combine with AND semantics.
type Filters struct {
	EntityType EntityType `json:"entityType,omitempty"`
	User       string     `json:"user,omitempty"`
	Start      *time.Time `json:"startDate,omitempty"`
	End        *time.Time `json:"endDate,omitempty"`
}

// matches reports whether an entry passes every set filter.
func (f Filters) matches(e Entry) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.User != "" && e.User != f.User {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	return true
}

// Document is a point-in-time export of the audit trail. It records when the
// export was taken and which filters produced it, so a regulator reading the
// file alone can tell what slice of the trail it represents.
type Document struct {
	ExportedAt   time.Time `json:"exportedAt"`
	TotalEntries int       `json:"totalEntries"`
	Filters      Filters   `json:"filters"`
	Entries      []Entry   `json:"entries"`
}

// BuildDocument assembles an export document from the current trail contents.
// Entry order follows the trail: most recent first.
func (s *TrailStore) BuildDocument(f Filters) Document {
	s.mu.RLock()
	entries := make([]Entry, 0)
	for _, e := range s.entries {
		if f.matches(e) {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	return Document{
		ExportedAt:   s.clock(),
		TotalEntries: len(entries),
		Filters:      f,
		Entries:      entries,
	}
}

// ExportJSON serialises a filtered export document as indented JSON.
func (s *TrailStore) ExportJSON(f Filters) ([]byte, error) {
	doc := s.BuildDocument(f)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: encoding export: %w", err)
	}
	return data, nil
}

// csvHeader is the column order for CSV exports.
var csvHeader = []string{
	"id", "timestamp", "entity_type", "entity_id", "entity_name", "action",
	"user", "previous_value", "new_value", "iso_clause", "ip_address",
	"session_id", "previous_hash",
}

// ExportCSV serialises a filtered export as CSV with a header row. Metadata
// and user agent are omitted; CSV exports are for spreadsheet review, the JSON
// form carries the full record.
func (s *TrailStore) ExportCSV(f Filters) ([]byte, error) {
	doc := s.BuildDocument(f)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("audit: writing csv header: %w", err)
	}
	for _, e := range doc.Entries {
		rec := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.EntityType),
			e.EntityID,
			e.EntityName,
			e.Action,
			e.User,
			e.PreviousValue,
			e.NewValue,
			e.ISOClause,
			e.IPAddress,
			e.SessionID,
			e.PreviousHash,
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("audit: writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFilename builds a timestamped attachment name for an export download,
// e.g. audit-trail-20260115-093042.csv.
func ExportFilename(format string, at time.Time) string {
	return "audit-trail-" + at.UTC().Format("20060102-150405") + "." + format
}
