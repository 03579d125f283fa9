// evaluator.go contains the pure status and trend evaluation functions. Both
// are free of side effects so callers can recompute them on every query; the
// service never caches a status where it could go stale.
package compliance

import "github.com/meddev-qms/meddev-qms/internal/catalog"

// trendBandPercent is the dead band around zero change inside which a trend is
// classified as stable. Fixed for all metrics.
const trendBandPercent = 2.0

// EvaluateStatus maps a recorded value onto the metric's status bands.
//
// For higher-better metrics: value >= green threshold is green, value >=
// yellow threshold is yellow, everything below is red. Lower-better metrics
// mirror the comparisons.
func EvaluateStatus(m catalog.Metric, value float64) Status {
	t := m.Threshold
	if t.Direction == catalog.LowerIsBetter {
		switch {
		case value <= t.Green:
			return StatusGreen
		case value <= t.Yellow:
			return StatusYellow
		default:
			return StatusRed
		}
	}
	switch {
	case value >= t.Green:
		return StatusGreen
	case value >= t.Yellow:
		return StatusYellow
	default:
		return StatusRed
	}
}

// StatusForLatest evaluates the status of a metric given its latest recorded
// value, or green when no value has ever been recorded. Treating "no data" as
// compliant is a deliberate policy carried over from the original system:
// a metric that has never been measured is not reported as non-compliant.
func StatusForLatest(m catalog.Metric, latest *MetricValue) Status {
	if latest == nil {
		return StatusGreen
	}
	return EvaluateStatus(m, latest.Value)
}

// EvaluateTrend classifies the movement from previous to latest as improving,
// stable, or declining relative to the metric's direction, using a fixed ±2%
// band. The returned percent is the relative change; ok is false when the
// percent is undefined (previous == 0), in which case the trend is reported
// stable rather than propagating Inf or NaN.
func EvaluateTrend(latest, previous float64, dir catalog.Direction) (trend Trend, changePercent float64, ok bool) {
	if previous == 0 {
		return TrendStable, 0, false
	}
	changePercent = (latest - previous) / previous * 100

	switch {
	case changePercent > trendBandPercent:
		trend = TrendDeclining
		if dir == catalog.HigherIsBetter {
			trend = TrendImproving
		}
	case changePercent < -trendBandPercent:
		trend = TrendImproving
		if dir == catalog.HigherIsBetter {
			trend = TrendDeclining
		}
	default:
		trend = TrendStable
	}
	return trend, changePercent, true
}
