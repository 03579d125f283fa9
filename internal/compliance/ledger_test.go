package compliance_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/meddev-qms/meddev-qms/internal/compliance"
)

func valueAt(metricID string, value float64, ts time.Time) compliance.MetricValue {
	return compliance.MetricValue{
		ID:        fmt.Sprintf("%s-%v", metricID, ts.UnixNano()),
		MetricID:  metricID,
		Value:     value,
		Timestamp: ts,
	}
}

func TestLedger_LatestEmpty(t *testing.T) {
	l := compliance.NewLedger()
	if _, ok := l.Latest("capa-closure-rate"); ok {
		t.Error("Latest on empty ledger returned ok=true")
	}
}

func TestLedger_LatestPicksMaxTimestamp(t *testing.T) {
	l := compliance.NewLedger()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Out-of-order appends: latest is by timestamp, not insertion.
	l.Append(valueAt("m1", 90, base.Add(2*time.Hour)))
	l.Append(valueAt("m1", 95, base))
	l.Append(valueAt("m2", 50, base.Add(10*time.Hour)))

	latest, ok := l.Latest("m1")
	if !ok {
		t.Fatal("Latest returned ok=false")
	}
	if latest.Value != 90 {
		t.Errorf("latest value = %v, want 90", latest.Value)
	}
}

func TestLedger_HistoryMostRecentFirst(t *testing.T) {
	l := compliance.NewLedger()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		l.Append(valueAt("m1", float64(i), base.Add(time.Duration(i)*time.Hour)))
	}
	l.Append(valueAt("other", 99, base))

	hist := l.History("m1", 0)
	if len(hist) != 5 {
		t.Fatalf("len(history) = %d, want 5", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Timestamp.After(hist[i-1].Timestamp) {
			t.Fatalf("history not descending at index %d", i)
		}
	}
	if hist[0].Value != 4 {
		t.Errorf("first history value = %v, want 4", hist[0].Value)
	}
}

func TestLedger_HistoryLimit(t *testing.T) {
	l := compliance.NewLedger()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		l.Append(valueAt("m1", float64(i), base.Add(time.Duration(i)*time.Minute)))
	}

	if got := len(l.History("m1", 10)); got != 10 {
		t.Errorf("len(History(10)) = %d, want 10", got)
	}
	// limit <= 0 falls back to the default of 30.
	if got := len(l.History("m1", 0)); got != 30 {
		t.Errorf("len(History(0)) = %d, want 30", got)
	}
}

func TestLedger_AppendOnly(t *testing.T) {
	l := compliance.NewLedger()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.Append(valueAt("m1", 1, base))
	l.Append(valueAt("m1", 2, base.Add(time.Hour)))

	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
	if l.CountForMetric("m1") != 2 {
		t.Errorf("CountForMetric = %d, want 2", l.CountForMetric("m1"))
	}

	// Mutating the returned slices must not affect ledger state.
	all := l.All()
	all[0].Value = 999
	hist := l.History("m1", 0)
	hist[0].Value = 999
	if latest, _ := l.Latest("m1"); latest.Value != 2 {
		t.Errorf("ledger state mutated through returned slice: latest = %v", latest.Value)
	}
}

func TestLedger_RestoreReplaces(t *testing.T) {
	l := compliance.NewLedger()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.Append(valueAt("m1", 1, base))

	l.Restore([]compliance.MetricValue{
		valueAt("m2", 7, base),
		valueAt("m2", 8, base.Add(time.Hour)),
	})

	if l.Len() != 2 {
		t.Errorf("Len after restore = %d, want 2", l.Len())
	}
	if l.CountForMetric("m1") != 0 {
		t.Error("restore did not replace prior contents")
	}
	if latest, _ := l.Latest("m2"); latest.Value != 8 {
		t.Errorf("latest after restore = %v, want 8", latest.Value)
	}
}
