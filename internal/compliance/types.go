// Package compliance implements the compliance-metric core: the status/trend
// evaluator, the append-only metric value ledger, the alert generator, and the
// dashboard aggregator, all owned by a single Engine. The package is
// deliberately free of HTTP and database concerns; persistence happens through
// the snapshot store collaborator and long-term traceability through the audit
// trail store.
package compliance

import "time"

// Status is the compliance status of a metric derived from its latest value
// and thresholds. It is always recomputed on demand, never stored.
type Status string

const (
	StatusGreen  Status = "green"
	StatusYellow Status = "yellow"
	StatusRed    Status = "red"
)

// Trend classifies the movement between the two most recent measurements.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Severity is the alert severity level.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ValueAuditEntry is the audit sub-trail embedded in a MetricValue at the
// moment it is recorded. It is not independently queryable; the process-wide
// audit trail store keeps its own entry for the same action.
type ValueAuditEntry struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	PreviousValue *float64  `json:"previous_value,omitempty"`
	NewValue      float64   `json:"new_value"`
	ISOClause     string    `json:"iso_clause,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	User          string    `json:"user"`
}

// MetricValue is one recorded measurement for a metric. Values are write-once:
// no update or delete operation exists anywhere in the service.
type MetricValue struct {
	ID         string             `json:"id"`
	MetricID   string             `json:"metric_id"`
	Value      float64            `json:"value"`
	Inputs     map[string]float64 `json:"inputs,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Notes      string             `json:"notes,omitempty"`
	RecordedBy string             `json:"recorded_by"`
	AuditTrail []ValueAuditEntry  `json:"audit_trail"`
}

// Alert is a compliance alert raised when a recorded value breaches a
// threshold. Acknowledged only ever transitions false to true.
type Alert struct {
	ID           string    `json:"id"`
	Severity     Severity  `json:"severity"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	ISOReference string    `json:"iso_reference,omitempty"`
	MetricID     string    `json:"metric_id,omitempty"`
	ValueID      string    `json:"value_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}
