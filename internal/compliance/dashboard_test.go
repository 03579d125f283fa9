package compliance_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/meddev-qms/meddev-qms/internal/catalog"
	"github.com/meddev-qms/meddev-qms/internal/compliance"
)

func twoMetricCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Metric{
		higherBetterMetric(95, 90),
		lowerBetterMetric(2, 5),
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

func TestBuildDashboard_EmptyLedger(t *testing.T) {
	c := twoMetricCatalog(t)
	rows := compliance.BuildDashboard(c, compliance.NewLedger())

	if len(rows) != c.Len() {
		t.Fatalf("len(rows) = %d, want %d", len(rows), c.Len())
	}
	for _, row := range rows {
		if row.Status != compliance.StatusGreen {
			t.Errorf("metric %s: status = %s, want green with no data", row.Metric.ID, row.Status)
		}
		if row.Trend != compliance.TrendStable {
			t.Errorf("metric %s: trend = %s, want stable with no data", row.Metric.ID, row.Trend)
		}
		if row.CurrentValue != nil {
			t.Errorf("metric %s: currentValue set with no data", row.Metric.ID)
		}
		if row.ChangePercent != nil {
			t.Errorf("metric %s: changePercent set with no data", row.Metric.ID)
		}
	}
}

func TestBuildDashboard_StatusAndTrend(t *testing.T) {
	c := twoMetricCatalog(t)
	l := compliance.NewLedger()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 97 then 88 on a higher-better metric: red and declining.
	l.Append(valueAt("m-higher", 97, base))
	l.Append(valueAt("m-higher", 88, base.Add(time.Hour)))

	rows := compliance.BuildDashboard(c, l)
	row := rows[0]
	if row.Metric.ID != "m-higher" {
		t.Fatalf("rows not in catalog order: first is %s", row.Metric.ID)
	}
	if row.Status != compliance.StatusRed {
		t.Errorf("status = %s, want red", row.Status)
	}
	if row.Trend != compliance.TrendDeclining {
		t.Errorf("trend = %s, want declining", row.Trend)
	}
	if row.CurrentValue == nil || row.CurrentValue.Value != 88 {
		t.Errorf("currentValue = %+v, want value 88", row.CurrentValue)
	}
	if row.ChangePercent == nil {
		t.Fatal("changePercent not set")
	}
	if want := (88.0 - 97.0) / 97.0 * 100; *row.ChangePercent != want {
		t.Errorf("changePercent = %v, want %v", *row.ChangePercent, want)
	}
}

func TestBuildDashboard_SingleValueNoTrend(t *testing.T) {
	c := twoMetricCatalog(t)
	l := compliance.NewLedger()
	l.Append(valueAt("m-higher", 92, time.Now()))

	row := compliance.BuildDashboard(c, l)[0]
	if row.Status != compliance.StatusYellow {
		t.Errorf("status = %s, want yellow", row.Status)
	}
	if row.Trend != compliance.TrendStable {
		t.Errorf("trend = %s, want stable for a single value", row.Trend)
	}
	if row.ChangePercent != nil {
		t.Error("changePercent set with a single value")
	}
}

func TestBuildDashboard_Idempotent(t *testing.T) {
	c := twoMetricCatalog(t)
	l := compliance.NewLedger()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.Append(valueAt("m-higher", 97, base))
	l.Append(valueAt("m-higher", 88, base.Add(time.Hour)))
	l.Append(valueAt("m-lower", 3, base))

	first := compliance.BuildDashboard(c, l)
	second := compliance.BuildDashboard(c, l)
	if !reflect.DeepEqual(first, second) {
		t.Error("building the dashboard twice produced different rows")
	}
}
