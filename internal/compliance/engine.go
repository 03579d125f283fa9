// engine.go ties the core together: one Engine owns the ledger and the alert
// list behind a mutex, evaluates status and trend on demand, writes audit
// trail entries for every mutation, and snapshots its state to the durable
// store after each one. All handler and job access goes through the Engine.
package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meddev-qms/meddev-qms/internal/audit"
	"github.com/meddev-qms/meddev-qms/internal/catalog"
	"github.com/meddev-qms/meddev-qms/internal/safego"
	"github.com/meddev-qms/meddev-qms/internal/snapshot"
	"github.com/meddev-qms/meddev-qms/internal/telemetry"
)

// StateSnapshotKey is the durable-store key for the engine's state document.
const StateSnapshotKey = "compliance-state"

var (
	// ErrUnknownMetric is returned for operations naming a metric ID that is
	// not in the catalog.
	ErrUnknownMetric = errors.New("compliance: unknown metric")
	// ErrUnknownAlert is returned when acknowledging an alert ID that does
	// not exist.
	ErrUnknownAlert = errors.New("compliance: unknown alert")
)

// RecordInput carries everything needed to record one metric value. The
// request-context fields (IP, user agent, session) flow into the audit trail
// entry, not into the value itself.
type RecordInput struct {
	MetricID   string
	Value      float64
	Inputs     map[string]float64
	Notes      string
	RecordedBy string

	IPAddress string
	UserAgent string
	SessionID string
}

// Engine owns all mutable compliance state. Safe for concurrent use; a single
// write lock serialises recordings and acknowledgements, which keeps the
// latest-value lookup and alert generation inside one atomic step.
type Engine struct {
	mu      sync.RWMutex
	catalog *catalog.Catalog
	ledger  *Ledger
	alerts  []Alert // insertion order, oldest first

	trail *audit.TrailStore
	store snapshot.Store // nil disables persistence
	clock func() time.Time
	newID func() string
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the timestamp source, for tests.
func WithEngineClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithEngineIDGenerator overrides value and alert ID generation, for tests.
func WithEngineIDGenerator(newID func() string) EngineOption {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine builds an engine over the given catalog. trail and store may each
// be nil to disable audit logging or persistence respectively.
func NewEngine(c *catalog.Catalog, trail *audit.TrailStore, store snapshot.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog: c,
		ledger:  NewLedger(),
		trail:   trail,
		store:   store,
		clock:   time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stateDocument is the persisted snapshot shape for the engine.
type stateDocument struct {
	Values []MetricValue `json:"values"`
	Alerts []Alert       `json:"alerts"`
}

// Rehydrate loads the persisted state document, replacing in-memory state. A
// missing document is the normal first boot and leaves the engine empty.
func (e *Engine) Rehydrate(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	data, ok, err := e.store.Load(ctx, StateSnapshotKey)
	if err != nil {
		return fmt.Errorf("compliance: loading state snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("compliance: decoding state snapshot: %w", err)
	}

	e.mu.Lock()
	e.ledger.Restore(doc.Values)
	e.alerts = doc.Alerts
	e.mu.Unlock()

	slog.Info("compliance state rehydrated", "values", len(doc.Values), "alerts", len(doc.Alerts))
	return nil
}

// Record appends a new value for a metric, generates any threshold alerts,
// persists the state, and writes audit trail entries. The returned alerts are
// the ones this recording raised (possibly none).
func (e *Engine) Record(in RecordInput) (MetricValue, []Alert, error) {
	m, ok := e.catalog.Get(in.MetricID)
	if !ok {
		return MetricValue{}, nil, fmt.Errorf("%w: %q", ErrUnknownMetric, in.MetricID)
	}

	e.mu.Lock()
	now := e.clock()

	var previous *MetricValue
	if prev, ok := e.ledger.Latest(m.ID); ok {
		previous = &prev
	}

	value := MetricValue{
		ID:         e.newID(),
		MetricID:   m.ID,
		Value:      in.Value,
		Inputs:     in.Inputs,
		Timestamp:  now,
		Notes:      in.Notes,
		RecordedBy: in.RecordedBy,
	}
	subEntry := ValueAuditEntry{
		ID:        e.newID(),
		Action:    "metric.value.recorded",
		NewValue:  in.Value,
		ISOClause: m.PrimaryISO().Reference(),
		Timestamp: now,
		User:      in.RecordedBy,
	}
	if previous != nil {
		prevValue := previous.Value
		subEntry.PreviousValue = &prevValue
	}
	value.AuditTrail = []ValueAuditEntry{subEntry}

	e.ledger.Append(value)

	alerts := GenerateAlerts(m, value, previous, now, e.newID)
	e.alerts = append(e.alerts, alerts...)

	e.persistLocked()
	e.mu.Unlock()

	telemetry.MetricValuesRecordedTotal.WithLabelValues(m.ID).Inc()
	for _, a := range alerts {
		telemetry.AlertsGeneratedTotal.WithLabelValues(string(a.Severity)).Inc()
	}

	e.auditRecord(m, value, previous, in)
	for _, a := range alerts {
		e.auditAlert(m, a)
	}

	return value, alerts, nil
}

// auditRecord writes the trail entry for a recorded value.
func (e *Engine) auditRecord(m catalog.Metric, value MetricValue, previous *MetricValue, in RecordInput) {
	if e.trail == nil {
		return
	}
	entry := audit.Entry{
		EntityType: audit.EntityMetricValue,
		EntityID:   value.ID,
		EntityName: m.Name,
		Action:     "metric.value.recorded",
		User:       in.RecordedBy,
		NewValue:   formatValue(value.Value),
		ISOClause:  m.PrimaryISO().Reference(),
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		SessionID:  in.SessionID,
		Metadata:   map[string]any{"metric_id": m.ID},
	}
	if previous != nil {
		entry.PreviousValue = formatValue(previous.Value)
	}
	if _, err := e.trail.LogAction(entry); err != nil {
		slog.Error("compliance: audit logging failed", "action", entry.Action, "error", err)
	}
}

// auditAlert writes the trail entry for a generated alert.
func (e *Engine) auditAlert(m catalog.Metric, a Alert) {
	if e.trail == nil {
		return
	}
	entry := audit.Entry{
		EntityType: audit.EntityComplianceAlert,
		EntityID:   a.ID,
		EntityName: a.Title,
		Action:     "alert.generated",
		User:       "system",
		NewValue:   string(a.Severity),
		ISOClause:  a.ISOReference,
		Metadata:   map[string]any{"metric_id": m.ID, "value_id": a.ValueID},
	}
	if _, err := e.trail.LogAction(entry); err != nil {
		slog.Error("compliance: audit logging failed", "action", entry.Action, "error", err)
	}
}

// Latest returns the most recent value for a metric, or nil when nothing has
// been recorded yet.
func (e *Engine) Latest(metricID string) (*MetricValue, error) {
	if _, ok := e.catalog.Get(metricID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metricID)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if v, ok := e.ledger.Latest(metricID); ok {
		return &v, nil
	}
	return nil, nil
}

// History returns the metric's recordings most-recent-first, truncated to
// limit (default 30).
func (e *Engine) History(metricID string, limit int) ([]MetricValue, error) {
	if _, ok := e.catalog.Get(metricID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metricID)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.History(metricID, limit), nil
}

// Status evaluates the metric's current compliance status from its latest
// value; a metric with no recordings is green.
func (e *Engine) Status(metricID string) (Status, error) {
	m, ok := e.catalog.Get(metricID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, metricID)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if v, ok := e.ledger.Latest(metricID); ok {
		return EvaluateStatus(m, v.Value), nil
	}
	return StatusGreen, nil
}

// Dashboard derives the dashboard rows for every catalog metric. The result
// is recomputed from the ledger on every call.
func (e *Engine) Dashboard() []DashboardMetric {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return BuildDashboard(e.catalog, e.ledger)
}

// Alerts returns every alert, most recent first.
func (e *Engine) Alerts() []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Alert, len(e.alerts))
	for i, a := range e.alerts {
		out[len(e.alerts)-1-i] = a
	}
	return out
}

// UnacknowledgedAlerts returns open alerts, most recent first.
func (e *Engine) UnacknowledgedAlerts() []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Alert, 0)
	for i := len(e.alerts) - 1; i >= 0; i-- {
		if !e.alerts[i].Acknowledged {
			out = append(out, e.alerts[i])
		}
	}
	return out
}

// Acknowledge marks an alert acknowledged. Acknowledgement is one-way and
// idempotent: acknowledging an already-acknowledged alert succeeds without
// changing anything, and nothing ever clears the flag.
func (e *Engine) Acknowledge(alertID, user string) (Alert, error) {
	e.mu.Lock()
	idx := -1
	for i := range e.alerts {
		if e.alerts[i].ID == alertID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return Alert{}, fmt.Errorf("%w: %q", ErrUnknownAlert, alertID)
	}
	if e.alerts[idx].Acknowledged {
		a := e.alerts[idx]
		e.mu.Unlock()
		return a, nil
	}

	e.alerts[idx].Acknowledged = true
	a := e.alerts[idx]
	e.persistLocked()
	e.mu.Unlock()

	if e.trail != nil {
		entry := audit.Entry{
			EntityType:    audit.EntityComplianceAlert,
			EntityID:      a.ID,
			EntityName:    a.Title,
			Action:        "alert.acknowledged",
			User:          user,
			PreviousValue: "unacknowledged",
			NewValue:      "acknowledged",
			ISOClause:     a.ISOReference,
		}
		if _, err := e.trail.LogAction(entry); err != nil {
			slog.Error("compliance: audit logging failed", "action", entry.Action, "error", err)
		}
	}
	return a, nil
}

// Metrics returns the catalog metrics in catalog order.
func (e *Engine) Metrics() []catalog.Metric {
	return e.catalog.All()
}

// Metric looks up one catalog metric.
func (e *Engine) Metric(id string) (catalog.Metric, bool) {
	return e.catalog.Get(id)
}

// persistLocked snapshots the engine state in the background. Must be called
// with the write lock held; the document is marshalled under the lock so the
// saved bytes match the state at the time of the mutation.
func (e *Engine) persistLocked() {
	if e.store == nil {
		return
	}
	doc := stateDocument{Values: e.ledger.All(), Alerts: e.alerts}
	data, err := json.Marshal(doc)
	if err != nil {
		telemetry.SnapshotSaveFailuresTotal.WithLabelValues(StateSnapshotKey).Inc()
		slog.Error("compliance: encoding state snapshot failed", "error", err)
		return
	}
	store := e.store
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Save(ctx, StateSnapshotKey, data); err != nil {
			telemetry.SnapshotSaveFailuresTotal.WithLabelValues(StateSnapshotKey).Inc()
			slog.Error("compliance: saving state snapshot failed", "error", err)
		}
	})
}

// formatValue renders a float for audit trail before/after fields without
// trailing zero noise.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
