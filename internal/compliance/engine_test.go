package compliance_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meddev-qms/meddev-qms/internal/audit"
	"github.com/meddev-qms/meddev-qms/internal/catalog"
	"github.com/meddev-qms/meddev-qms/internal/compliance"
)

// memStore is an in-memory snapshot.Store for tests.
type memStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (s *memStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[key]
	return data, ok, nil
}

// steppingClock returns a clock that advances one hour per call.
func steppingClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * time.Hour)
		n++
		return t
	}
}

func newTestEngine(t *testing.T, trail *audit.TrailStore) *compliance.Engine {
	t.Helper()
	c, err := catalog.New([]catalog.Metric{
		{
			ID:   "capa-closure-rate",
			Name: "CAPA On-Time Closure Rate",
			Unit: "%",
			Threshold: catalog.Threshold{
				Green: 95, Yellow: 90, Direction: catalog.HigherIsBetter,
			},
			ISOMappings: []catalog.ISOMapping{
				{Standard: "ISO 13485:2016", Clause: "8.5.2"},
			},
		},
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return compliance.NewEngine(c, trail, nil,
		compliance.WithEngineClock(steppingClock(start)),
		compliance.WithEngineIDGenerator(seqID()))
}

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

func TestEngine_RecordUnknownMetric(t *testing.T) {
	e := newTestEngine(t, nil)
	_, _, err := e.Record(compliance.RecordInput{MetricID: "nope", Value: 1})
	if !errors.Is(err, compliance.ErrUnknownMetric) {
		t.Errorf("err = %v, want ErrUnknownMetric", err)
	}
}

func TestEngine_RecordGreenThenRed(t *testing.T) {
	e := newTestEngine(t, nil)

	v1, alerts, err := e.Record(compliance.RecordInput{
		MetricID: "capa-closure-rate", Value: 97, RecordedBy: "qa.lead",
	})
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("green recording raised %d alerts, want 0", len(alerts))
	}
	if status, _ := e.Status("capa-closure-rate"); status != compliance.StatusGreen {
		t.Errorf("status = %s, want green", status)
	}

	v2, alerts, err := e.Record(compliance.RecordInput{
		MetricID: "capa-closure-rate", Value: 88, RecordedBy: "qa.lead",
	})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("red recording raised %d alerts, want 1", len(alerts))
	}
	if alerts[0].Severity != compliance.SeverityCritical {
		t.Errorf("severity = %s, want critical", alerts[0].Severity)
	}
	if alerts[0].ValueID != v2.ID {
		t.Errorf("alert value_id = %q, want %q", alerts[0].ValueID, v2.ID)
	}
	if status, _ := e.Status("capa-closure-rate"); status != compliance.StatusRed {
		t.Errorf("status = %s, want red", status)
	}

	// The dashboard reflects the decline.
	rows := e.Dashboard()
	if rows[0].Trend != compliance.TrendDeclining {
		t.Errorf("dashboard trend = %s, want declining", rows[0].Trend)
	}

	// History is most-recent-first and append-only.
	hist, err := e.History("capa-closure-rate", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].ID != v2.ID || hist[1].ID != v1.ID {
		t.Errorf("history order wrong: %+v", hist)
	}
}

func TestEngine_RecordEmbedsValueAuditTrail(t *testing.T) {
	e := newTestEngine(t, nil)

	v1, _, _ := e.Record(compliance.RecordInput{
		MetricID: "capa-closure-rate", Value: 97, RecordedBy: "qa.lead",
	})
	if len(v1.AuditTrail) != 1 {
		t.Fatalf("len(AuditTrail) = %d, want 1", len(v1.AuditTrail))
	}
	sub := v1.AuditTrail[0]
	if sub.Action != "metric.value.recorded" {
		t.Errorf("action = %q", sub.Action)
	}
	if sub.PreviousValue != nil {
		t.Error("first recording must have nil previous value")
	}
	if sub.ISOClause != "ISO 13485:2016 §8.5.2" {
		t.Errorf("iso_clause = %q", sub.ISOClause)
	}

	v2, _, _ := e.Record(compliance.RecordInput{
		MetricID: "capa-closure-rate", Value: 88, RecordedBy: "qa.lead",
	})
	if v2.AuditTrail[0].PreviousValue == nil || *v2.AuditTrail[0].PreviousValue != 97 {
		t.Errorf("previous value = %v, want 97", v2.AuditTrail[0].PreviousValue)
	}
}

func TestEngine_RecordWritesTrailEntries(t *testing.T) {
	trail := audit.NewTrailStore(nil)
	e := newTestEngine(t, trail)

	_, _, err := e.Record(compliance.RecordInput{
		MetricID:   "capa-closure-rate",
		Value:      88,
		RecordedBy: "qa.lead",
		IPAddress:  "10.0.0.7",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	// One entry for the value, one for the generated alert.
	entries := trail.Entries()
	if len(entries) != 2 {
		t.Fatalf("trail has %d entries, want 2", len(entries))
	}
	// Most-recent-first: the alert entry was logged after the value entry.
	if entries[0].Action != "alert.generated" || entries[0].EntityType != audit.EntityComplianceAlert {
		t.Errorf("entry[0] = %s/%s", entries[0].EntityType, entries[0].Action)
	}
	if entries[1].Action != "metric.value.recorded" || entries[1].EntityType != audit.EntityMetricValue {
		t.Errorf("entry[1] = %s/%s", entries[1].EntityType, entries[1].Action)
	}
	if entries[1].IPAddress != "10.0.0.7" {
		t.Errorf("ip = %q, want 10.0.0.7", entries[1].IPAddress)
	}
	if entries[1].NewValue != "88" {
		t.Errorf("new_value = %q, want 88", entries[1].NewValue)
	}
}

// ---------------------------------------------------------------------------
// Latest
// ---------------------------------------------------------------------------

func TestEngine_LatestNilWhenEmpty(t *testing.T) {
	e := newTestEngine(t, nil)
	v, err := e.Latest("capa-closure-rate")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if v != nil {
		t.Errorf("Latest = %+v, want nil", v)
	}

	if _, err := e.Latest("nope"); !errors.Is(err, compliance.ErrUnknownMetric) {
		t.Errorf("err = %v, want ErrUnknownMetric", err)
	}
}

// ---------------------------------------------------------------------------
// Acknowledge
// ---------------------------------------------------------------------------

func TestEngine_AcknowledgeIsOneWayAndIdempotent(t *testing.T) {
	trail := audit.NewTrailStore(nil)
	e := newTestEngine(t, trail)

	_, alerts, _ := e.Record(compliance.RecordInput{
		MetricID: "capa-closure-rate", Value: 88, RecordedBy: "qa.lead",
	})
	id := alerts[0].ID

	a, err := e.Acknowledge(id, "quality.manager")
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if !a.Acknowledged {
		t.Error("alert not acknowledged")
	}
	trailLen := trail.Len()

	// Second acknowledgement succeeds, changes nothing, logs nothing.
	a2, err := e.Acknowledge(id, "someone.else")
	if err != nil {
		t.Fatalf("repeat Acknowledge: %v", err)
	}
	if !a2.Acknowledged {
		t.Error("repeat acknowledge flipped the flag")
	}
	if trail.Len() != trailLen {
		t.Error("repeat acknowledge wrote a trail entry")
	}

	if len(e.UnacknowledgedAlerts()) != 0 {
		t.Error("acknowledged alert still reported open")
	}

	// The transition itself was audited.
	acked := trail.EntriesByEntity(audit.EntityComplianceAlert, id)
	found := false
	for _, entry := range acked {
		if entry.Action == "alert.acknowledged" {
			found = true
			if entry.PreviousValue != "unacknowledged" || entry.NewValue != "acknowledged" {
				t.Errorf("transition recorded as %q -> %q", entry.PreviousValue, entry.NewValue)
			}
		}
	}
	if !found {
		t.Error("no alert.acknowledged trail entry")
	}
}

func TestEngine_AcknowledgeUnknown(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, err := e.Acknowledge("missing", "user"); !errors.Is(err, compliance.ErrUnknownAlert) {
		t.Errorf("err = %v, want ErrUnknownAlert", err)
	}
}

func TestEngine_AlertsMostRecentFirst(t *testing.T) {
	e := newTestEngine(t, nil)
	_, first, _ := e.Record(compliance.RecordInput{MetricID: "capa-closure-rate", Value: 88})
	_, second, _ := e.Record(compliance.RecordInput{MetricID: "capa-closure-rate", Value: 85})

	alerts := e.Alerts()
	if len(alerts) != 2 {
		t.Fatalf("len(alerts) = %d, want 2", len(alerts))
	}
	if alerts[0].ID != second[0].ID || alerts[1].ID != first[0].ID {
		t.Error("alerts not most-recent-first")
	}
}

// ---------------------------------------------------------------------------
// Rehydrate
// ---------------------------------------------------------------------------

func TestEngine_Rehydrate(t *testing.T) {
	store := newMemStore()
	ts := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	doc := map[string]any{
		"values": []compliance.MetricValue{
			{ID: "v-1", MetricID: "capa-closure-rate", Value: 91, Timestamp: ts},
		},
		"alerts": []compliance.Alert{
			{ID: "a-1", Severity: compliance.SeverityWarning, MetricID: "capa-closure-rate", Timestamp: ts},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := store.Save(context.Background(), compliance.StateSnapshotKey, data); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	c, _ := catalog.New([]catalog.Metric{{
		ID: "capa-closure-rate", Name: "CAPA", Unit: "%",
		Threshold: catalog.Threshold{Green: 95, Yellow: 90, Direction: catalog.HigherIsBetter},
	}})
	e := compliance.NewEngine(c, nil, store)
	if err := e.Rehydrate(context.Background()); err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}

	v, err := e.Latest("capa-closure-rate")
	if err != nil || v == nil || v.Value != 91 {
		t.Errorf("Latest after rehydrate = %+v (err %v), want value 91", v, err)
	}
	if len(e.Alerts()) != 1 {
		t.Errorf("alerts after rehydrate = %d, want 1", len(e.Alerts()))
	}
	if status, _ := e.Status("capa-closure-rate"); status != compliance.StatusYellow {
		t.Errorf("status after rehydrate = %s, want yellow", status)
	}
}

func TestEngine_RehydrateMissingDocument(t *testing.T) {
	c, _ := catalog.New([]catalog.Metric{{
		ID: "m", Name: "M", Threshold: catalog.Threshold{Direction: catalog.HigherIsBetter},
	}})
	e := compliance.NewEngine(c, nil, newMemStore())
	if err := e.Rehydrate(context.Background()); err != nil {
		t.Errorf("Rehydrate on empty store: %v", err)
	}
}
