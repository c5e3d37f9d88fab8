// Package stats aggregates test records into detection-rate summaries,
// rolling positivity classifications and trend fits.
package stats

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/banshee-data/listeria.report/internal/monitoring"
	"github.com/banshee-data/listeria.report/internal/samples"
)

// GroupKey selects the grouping dimension of Summarize.
type GroupKey int

const (
	ByDate GroupKey = iota
	ByWeek
	BySubArea
	ByDateDepartment
)

func (k GroupKey) String() string {
	switch k {
	case ByDate:
		return "date"
	case ByWeek:
		return "week"
	case BySubArea:
		return "sub_area"
	case ByDateDepartment:
		return "date_department"
	default:
		return "unknown"
	}
}

// ParseGroupKey parses the query-string form of a GroupKey.
func ParseGroupKey(s string) (GroupKey, error) {
	switch s {
	case "date", "":
		return ByDate, nil
	case "week":
		return ByWeek, nil
	case "sub_area":
		return BySubArea, nil
	case "date_department":
		return ByDateDepartment, nil
	}
	return 0, fmt.Errorf("unknown group key %q", s)
}

// Summary is one emitted group. Only the fields relevant to the grouping
// key are populated; Label always is.
type Summary struct {
	Label                string       `json:"label"`
	Date                 samples.Date `json:"date,omitzero"`
	Week                 int          `json:"week,omitempty"`
	SubArea              string       `json:"sub_area,omitempty"`
	Department           string       `json:"department,omitempty"`
	Total                int          `json:"total"`
	Detected             int          `json:"detected"`
	DetectionRatePercent float64      `json:"detection_rate_percent"`
}

// ParseError reports a week label that does not match "Week-<N>".
type ParseError struct {
	Label string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid week label %q: expected Week-<N>", e.Label)
}

var weekPattern = regexp.MustCompile(`^Week-(\d+)$`)

// ParseWeek extracts N from a "Week-<N>" label.
func ParseWeek(label string) (int, error) {
	m := weekPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, &ParseError{Label: label}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &ParseError{Label: label}
	}
	return n, nil
}

// RoundRate returns round(100*detected/total, 1). Halves round to even on the
// scaled value, matching the lab's spreadsheet exports. total must be > 0.
func RoundRate(detected, total int) float64 {
	return math.RoundToEven(1000*float64(detected)/float64(total)) / 10
}

type groupID struct {
	date samples.Date
	text string
}

type bucket struct {
	Summary
	rank int
}

// Summarize groups records by key and computes per-group totals and
// detection rates. Groups are never empty. Records with an invalid sample
// date are skipped (and logged) for the date-based keys. An empty input
// yields an empty result.
func Summarize(records []samples.Record, key GroupKey) ([]Summary, error) {
	groups := make(map[groupID]*bucket)
	var order []*bucket
	skipped := 0

	for _, r := range records {
		var id groupID
		var b bucket

		switch key {
		case ByDate:
			if !r.SampleDate.Valid() {
				skipped++
				continue
			}
			id = groupID{date: r.SampleDate}
			b.Label = r.SampleDate.String()
			b.Date = r.SampleDate
		case ByDateDepartment:
			if !r.SampleDate.Valid() {
				skipped++
				continue
			}
			dept := r.Department()
			id = groupID{date: r.SampleDate, text: dept}
			b.Label = r.SampleDate.String() + " " + dept
			b.Date = r.SampleDate
			b.Department = dept
			b.rank = samples.DepartmentRank(dept)
		case ByWeek:
			n, err := ParseWeek(r.Week)
			if err != nil {
				return nil, err
			}
			id = groupID{text: r.Week}
			b.Label = r.Week
			b.Week = n
		case BySubArea:
			area := r.SubArea
			if area == "" {
				area = samples.UnmappedArea
			}
			id = groupID{text: area}
			b.Label = area
			b.SubArea = area
			b.Department = samples.DepartmentFor(area)
		default:
			return nil, fmt.Errorf("unsupported group key %d", key)
		}

		g, ok := groups[id]
		if !ok {
			g = &bucket{Summary: b.Summary, rank: b.rank}
			groups[id] = g
			order = append(order, g)
		}
		g.Total++
		if r.IsDetection() {
			g.Detected++
		}
	}

	if skipped > 0 {
		monitoring.Logf("stats: skipped %d record(s) with invalid sample_date for %s grouping", skipped, key)
	}

	sortBuckets(order, key)

	out := make([]Summary, len(order))
	for i, g := range order {
		g.DetectionRatePercent = RoundRate(g.Detected, g.Total)
		out[i] = g.Summary
	}
	return out, nil
}

func sortBuckets(order []*bucket, key GroupKey) {
	switch key {
	case ByDate:
		sort.Slice(order, func(i, j int) bool { return order[i].Date.Before(order[j].Date) })
	case ByDateDepartment:
		sort.Slice(order, func(i, j int) bool {
			a, b := order[i], order[j]
			if !a.Date.Equal(b.Date) {
				return a.Date.Before(b.Date)
			}
			if a.rank != b.rank {
				return a.rank < b.rank
			}
			return a.Department < b.Department
		})
	case ByWeek:
		sort.Slice(order, func(i, j int) bool {
			if order[i].Week != order[j].Week {
				return order[i].Week < order[j].Week
			}
			return order[i].Label < order[j].Label
		})
	case BySubArea:
		sort.Slice(order, func(i, j int) bool {
			return subAreaLess(order[i].SubArea, order[j].SubArea)
		})
	}
}

// subAreaLess orders named taxonomy areas first, then unknown areas
// alphabetically, then the Unmapped catch-all.
func subAreaLess(a, b string) bool {
	ca, cb := subAreaClass(a), subAreaClass(b)
	if ca != cb {
		return ca < cb
	}
	if ca == 0 {
		ra, _ := samples.SubAreaRank(a)
		rb, _ := samples.SubAreaRank(b)
		return ra < rb
	}
	return a < b
}

func subAreaClass(area string) int {
	if _, ok := samples.SubAreaRank(area); ok {
		return 0
	}
	if area == samples.UnmappedArea {
		return 2
	}
	return 1
}

// Totals is the headline KPI over a record set.
type Totals struct {
	Total                int     `json:"total"`
	Detected             int     `json:"detected"`
	DetectionRatePercent float64 `json:"detection_rate_percent"`
}

// ComputeTotals counts all records regardless of date validity. The rate is
// zero for an empty set.
func ComputeTotals(records []samples.Record) Totals {
	t := Totals{Total: len(records)}
	for _, r := range records {
		if r.IsDetection() {
			t.Detected++
		}
	}
	if t.Total > 0 {
		t.DetectionRatePercent = 100 * float64(t.Detected) / float64(t.Total)
	}
	return t
}

// IsParseError reports whether err is, or wraps, a week label ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
