// Package audit implements the process-wide audit trail: an append-only,
// tamper-evident log of every entity action in the QMS (create, update,
// approve, acknowledge, purge, ...). The trail is intentionally separate from
// application logs and from the per-value audit sub-trail embedded in metric
// values — it has regulatory consumers and retention requirements of its own.
// Entries are hash-chained for tamper detection, capped in memory, snapshotted
// to the durable store on every mutation, and optionally shipped to external
// destinations and archived to the database for long-term retention.
package audit

import "time"

// EntityType identifies the kind of QMS record an audit entry refers to.
type EntityType string

const (
	EntityCAPA             EntityType = "capa"
	EntityNCR              EntityType = "ncr"
	EntityRiskAssessment   EntityType = "risk_assessment"
	EntityChangeControl    EntityType = "change_control"
	EntityValidationReport EntityType = "validation_report"
	EntityDesignReview     EntityType = "design_review"
	EntityDocument         EntityType = "document"
	EntityTrainingRecord   EntityType = "training_record"
	EntitySupplier         EntityType = "supplier"
	EntityAuditFinding     EntityType = "audit_finding"
	EntityComplaint        EntityType = "complaint"
	EntityMetricValue      EntityType = "metric_value"
	EntityComplianceAlert  EntityType = "compliance_alert"
	EntityUser             EntityType = "user"
)

// ValidEntityTypes is the closed set of entity kinds the trail accepts.
var ValidEntityTypes = map[EntityType]bool{
	EntityCAPA:             true,
	EntityNCR:              true,
	EntityRiskAssessment:   true,
	EntityChangeControl:    true,
	EntityValidationReport: true,
	EntityDesignReview:     true,
	EntityDocument:         true,
	EntityTrainingRecord:   true,
	EntitySupplier:         true,
	EntityAuditFinding:     true,
	EntityComplaint:        true,
	EntityMetricValue:      true,
	EntityComplianceAlert:  true,
	EntityUser:             true,
}

// Entry is a single audit trail record. Entries are immutable once logged; the
// only operation that removes them is the age-based bulk purge.
type Entry struct {
	ID            string         `json:"id"`
	EntityType    EntityType     `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	EntityName    string         `json:"entity_name,omitempty"`
	Action        string         `json:"action"`
	User          string         `json:"user"`
	PreviousValue string         `json:"previous_value,omitempty"`
	NewValue      string         `json:"new_value,omitempty"`
	ISOClause     string         `json:"iso_clause,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`

	// PreviousHash is the canonical SHA-256 hash of the entry logged
	// immediately before this one, forming a tamper-evident chain. Empty on
	// the first entry ever logged.
	PreviousHash string `json:"previous_hash,omitempty"`
}
