// alerts.go implements the compliance alert generator. Alerts are derived from
// a newly recorded value compared against the metric's thresholds; a red
// status yields one critical alert, yellow one warning, green none. Alerts are
// intentionally not deduplicated: every non-compliant recording raises its own
// alert, so a metric that stays red keeps producing evidence of it.
package compliance

import (
	"fmt"
	"time"

	"github.com/meddev-qms/meddev-qms/internal/catalog"
)

// GenerateAlerts derives the alerts for a newly recorded value. previous is
// the value recorded immediately before the new one, or nil for a first
// recording; it only affects the message text, never whether an alert fires.
func GenerateAlerts(m catalog.Metric, newValue MetricValue, previous *MetricValue, now time.Time, newID func() string) []Alert {
	status := EvaluateStatus(m, newValue.Value)
	if status == StatusGreen {
		return nil
	}

	severity := SeverityWarning
	breached := m.Threshold.Green
	if status == StatusRed {
		severity = SeverityCritical
		breached = m.Threshold.Yellow
	}

	comparator := "below"
	if m.Threshold.Direction == catalog.LowerIsBetter {
		comparator = "above"
	}

	msg := fmt.Sprintf("%s recorded at %g %s, %s the %g %s threshold",
		m.Name, newValue.Value, m.Unit, comparator, breached, m.Unit)
	if previous != nil {
		msg += fmt.Sprintf(" (previous value %g %s)", previous.Value, m.Unit)
	}

	title := fmt.Sprintf("%s threshold breach: %s", titleSeverity(severity), m.Name)

	return []Alert{{
		ID:           newID(),
		Severity:     severity,
		Title:        title,
		Message:      msg,
		ISOReference: m.PrimaryISO().Reference(),
		MetricID:     m.ID,
		ValueID:      newValue.ID,
		Timestamp:    now,
	}}
}

func titleSeverity(s Severity) string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityWarning:
		return "Warning"
	default:
		return "Info"
	}
}
