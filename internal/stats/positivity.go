package stats

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/listeria.report/internal/samples"
)

// DefaultWindowDays is the trailing window used by the facility maps.
const DefaultWindowDays = 28

// ErrInvalidWindow is returned for a window length that is not strictly
// positive.
var ErrInvalidWindow = errors.New("window_days must be a positive integer")

// Ratio is a positivity ratio in [0, 1] or "no data".
type Ratio struct {
	Value float64
	Valid bool
	// Samples is the number of present values the ratio was computed over.
	Samples int
}

// NoData is the undefined ratio.
var NoData = Ratio{}

// Percent formats the ratio the way the map hover text shows it.
func (r Ratio) Percent() string {
	if !r.Valid {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", RoundRatio(r.Value*100))
}

// RoundRatio rounds to one decimal place, halves to even.
func RoundRatio(v float64) float64 {
	return roundToEvenTenth(v)
}

// Window returns the inclusive date range [anchor-(days-1), anchor].
func Window(anchor samples.Date, days int) (samples.Date, samples.Date, error) {
	if days <= 0 {
		return samples.Date{}, samples.Date{}, ErrInvalidWindow
	}
	if !anchor.Valid() {
		return samples.Date{}, samples.Date{}, fmt.Errorf("invalid anchor date")
	}
	return anchor.AddDays(-(days - 1)), anchor, nil
}

func inWindow(d, start, end samples.Date) bool {
	return d.Valid() && !d.Before(start) && !d.After(end)
}

// RollingPositivity is the mean of the present values recorded for point
// within the trailing window ending on anchor.
func RollingPositivity(records []samples.Record, point string, anchor samples.Date, windowDays int) (Ratio, error) {
	start, end, err := Window(anchor, windowDays)
	if err != nil {
		return NoData, err
	}
	var sum float64
	var n int
	for _, r := range records {
		if r.Point != point || !inWindow(r.SampleDate, start, end) {
			continue
		}
		v, ok := r.PresentValue()
		if !ok {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return NoData, nil
	}
	return Ratio{Value: sum / float64(n), Valid: true, Samples: n}, nil
}

// PointsOn returns the distinct sample points recorded on date, in first-seen
// order.
func PointsOn(records []samples.Record, date samples.Date) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if !r.SampleDate.Valid() || !r.SampleDate.Equal(date) {
			continue
		}
		if _, ok := seen[r.Point]; ok {
			continue
		}
		seen[r.Point] = struct{}{}
		out = append(out, r.Point)
	}
	return out
}

// PositivityByPoint computes RollingPositivity once for every distinct point
// recorded on the anchor date.
func PositivityByPoint(records []samples.Record, anchor samples.Date, windowDays int) (map[string]Ratio, error) {
	if _, _, err := Window(anchor, windowDays); err != nil {
		return nil, err
	}
	out := make(map[string]Ratio)
	for _, p := range PointsOn(records, anchor) {
		ratio, err := RollingPositivity(records, p, anchor, windowDays)
		if err != nil {
			return nil, err
		}
		out[p] = ratio
	}
	return out, nil
}

// Outcome labels used in point history.
const (
	OutcomeDetected    = "Detected"
	OutcomeNotDetected = "Not Detected"
	OutcomeUnknown     = "Unknown"
)

// HistoryEntry is one sample of a point's recent history.
type HistoryEntry struct {
	Date    samples.Date `json:"date"`
	Outcome string       `json:"outcome"`
}

func outcomeOf(r samples.Record) string {
	v, ok := r.PresentValue()
	switch {
	case ok && v == 1:
		return OutcomeDetected
	case ok && v == 0:
		return OutcomeNotDetected
	default:
		return OutcomeUnknown
	}
}

// History lists the point's samples within the trailing window, newest first.
// Samples sharing a date keep their input order.
func History(records []samples.Record, point string, anchor samples.Date, windowDays int) ([]HistoryEntry, error) {
	start, end, err := Window(anchor, windowDays)
	if err != nil {
		return nil, err
	}
	var out []HistoryEntry
	for _, r := range records {
		if r.Point != point || !inWindow(r.SampleDate, start, end) {
			continue
		}
		out = append(out, HistoryEntry{Date: r.SampleDate, Outcome: outcomeOf(r)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// HistoryText renders history one "date: outcome" entry per line.
func HistoryText(entries []HistoryEntry) string {
	if len(entries) == 0 {
		return "No history available"
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Date.String() + ": " + e.Outcome
	}
	return strings.Join(lines, "\n")
}
