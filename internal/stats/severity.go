package stats

import "math"

// Severity classifies a rolling positivity ratio.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityLow      Severity = "low"
	SeverityNone     Severity = "none"
	SeverityUnknown  Severity = "unknown"
)

// Severities lists every severity from worst to best, then unknown.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityLow, SeverityNone, SeverityUnknown}

// severityThresholds is evaluated top to bottom; the first row whose lower
// bound admits the ratio wins. The 0.2 edge belongs to low and the 0.5 edge
// to critical.
var severityThresholds = []struct {
	lower     float64
	inclusive bool
	severity  Severity
}{
	{0.5, true, SeverityCritical},
	{0.2, false, SeverityHigh},
	{0, false, SeverityLow},
	{0, true, SeverityNone},
}

// Classify maps a ratio onto a severity. Undefined ratios (and values that
// cannot be ratios) are unknown.
func Classify(r Ratio) Severity {
	if !r.Valid || math.IsNaN(r.Value) {
		return SeverityUnknown
	}
	for _, th := range severityThresholds {
		if r.Value > th.lower || (th.inclusive && r.Value == th.lower) {
			return th.severity
		}
	}
	return SeverityUnknown
}

func roundToEvenTenth(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}
