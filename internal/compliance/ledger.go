// ledger.go implements the in-memory metric value ledger: an append-only
// collection of measurements across all metrics. Entries are write-once; the
// only operations are append and time-ordered reads. The ledger itself is not
// goroutine safe — the owning Engine serialises access.
package compliance

import "sort"

// defaultHistoryLimit caps history queries that do not specify a limit.
const defaultHistoryLimit = 30

// Ledger holds recorded metric values in insertion order.
type Ledger struct {
	values []MetricValue
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds a value to the ledger. Appending is the only mutation the
// ledger supports.
func (l *Ledger) Append(v MetricValue) {
	l.values = append(l.values, v)
}

// Latest returns the maximum-timestamp value recorded for the metric, or
// ok=false when the metric has no recordings.
func (l *Ledger) Latest(metricID string) (MetricValue, bool) {
	var latest MetricValue
	found := false
	for _, v := range l.values {
		if v.MetricID != metricID {
			continue
		}
		if !found || v.Timestamp.After(latest.Timestamp) {
			latest = v
			found = true
		}
	}
	return latest, found
}

// History returns the metric's recordings most-recent-first, truncated to
// limit (defaulting to 30 when limit <= 0). The query is pure: no iterator
// state is retained between calls.
func (l *Ledger) History(metricID string, limit int) []MetricValue {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	out := make([]MetricValue, 0)
	for _, v := range l.values {
		if v.MetricID == metricID {
			out = append(out, v)
		}
	}
	// Stable so that equal timestamps keep reverse insertion order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CountForMetric returns the number of recordings for the metric.
func (l *Ledger) CountForMetric(metricID string) int {
	n := 0
	for _, v := range l.values {
		if v.MetricID == metricID {
			n++
		}
	}
	return n
}

// Len returns the total number of recordings across all metrics.
func (l *Ledger) Len() int {
	return len(l.values)
}

// All returns every recording in insertion order, for snapshotting.
func (l *Ledger) All() []MetricValue {
	out := make([]MetricValue, len(l.values))
	copy(out, l.values)
	return out
}

// Restore replaces the ledger contents from a snapshot.
func (l *Ledger) Restore(values []MetricValue) {
	l.values = make([]MetricValue, len(values))
	copy(l.values, values)
}
