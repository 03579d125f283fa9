package compliance

import "github.com/meddev-qms/meddev-qms/internal/catalog"

// recentWindow is how many recent values the trend looks back over; the trend
// compares the two most recent recordings inside the window.
const recentWindow = 7

// DashboardMetric is one row of the compliance dashboard: a catalog metric
// joined with its latest recording and the derived status and trend.
type DashboardMetric struct {
	Metric        catalog.Metric `json:"metric"`
	CurrentValue  *MetricValue   `json:"currentValue,omitempty"`
	Status        Status         `json:"status"`
	Trend         Trend          `json:"trend"`
	ChangePercent *float64       `json:"changePercent,omitempty"`
}

// BuildDashboard derives a dashboard row for every catalog metric, in catalog
// order. The result is computed entirely from the ledger; building it twice
// without an intervening recording yields identical rows.
func BuildDashboard(c *catalog.Catalog, l *Ledger) []DashboardMetric {
	metrics := c.All()
	rows := make([]DashboardMetric, 0, len(metrics))

	for _, m := range metrics {
		row := DashboardMetric{
			Metric: m,
			Status: StatusGreen,
			Trend:  TrendStable,
		}

		recent := l.History(m.ID, recentWindow)
		if len(recent) > 0 {
			current := recent[0]
			row.CurrentValue = &current
			row.Status = EvaluateStatus(m, current.Value)
		}
		if len(recent) > 1 {
			trend, pct, ok := EvaluateTrend(recent[0].Value, recent[1].Value, m.Threshold.Direction)
			row.Trend = trend
			if ok {
				row.ChangePercent = &pct
			}
		}

		rows = append(rows, row)
	}
	return rows
}
