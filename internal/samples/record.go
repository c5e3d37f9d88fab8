// Package samples defines the laboratory test record shared by the record
// stores, the aggregation engine and the dashboard.
package samples

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Test result labels. Anything other than NotDetected counts as a detection.
const (
	Detected    = "Detected"
	NotDetected = "Not Detected"
)

// Production phase labels.
const (
	BeforeProduction = "BP"
	DuringProduction = "DP"
)

// Record is one laboratory sample result.
type Record struct {
	ID           string   `json:"id"`
	SampleDate   Date     `json:"sample_date"`
	TestResult   string   `json:"test_result"`
	Value        *float64 `json:"value"`
	SubArea      string   `json:"sub_area"`
	BeforeDuring string   `json:"before_during"`
	FreshSmoked  string   `json:"fresh_smoked"`
	Week         string   `json:"week"`
	Point        string   `json:"point"`
	LocationCode string   `json:"location_code"`
	X            *float64 `json:"x,omitempty"`
	Y            *float64 `json:"y,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// IsDetection reports whether the test result is anything but "Not Detected".
func (r Record) IsDetection() bool {
	return r.TestResult != NotDetected
}

// Department returns the department the record's sub-area rolls up into.
func (r Record) Department() string {
	return DepartmentFor(r.SubArea)
}

// HasLocation reports whether the record carries floor-plan coordinates.
func (r Record) HasLocation() bool {
	return r.X != nil && r.Y != nil && !math.IsNaN(*r.X) && !math.IsNaN(*r.Y)
}

// PresentValue returns the numeric detection value and whether it is present.
// NaN is treated as absent.
func (r Record) PresentValue() (float64, bool) {
	if r.Value == nil || math.IsNaN(*r.Value) {
		return 0, false
	}
	return *r.Value, true
}

func (r Record) String() string {
	return fmt.Sprintf("Date: %s, Point: %s, SubArea: %s, Result: %s", r.SampleDate, r.Point, r.SubArea, r.TestResult)
}

// Filter selects records from a Store. Zero-valued fields do not constrain
// the result.
type Filter struct {
	// RequireLocation keeps only records that carry both x and y.
	RequireLocation bool
	FreshSmoked     string
	BeforeDuring    string
}

// Match reports whether r satisfies the filter.
func (f Filter) Match(r Record) bool {
	if f.RequireLocation && !r.HasLocation() {
		return false
	}
	if f.FreshSmoked != "" && r.FreshSmoked != f.FreshSmoked {
		return false
	}
	if f.BeforeDuring != "" && r.BeforeDuring != f.BeforeDuring {
		return false
	}
	return true
}

// Apply returns the records matching the filter, preserving order.
func (f Filter) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Store is a read-only source of test records. Query returns the complete
// matching set; there is no pagination.
type Store interface {
	Query(ctx context.Context, f Filter) ([]Record, error)
}

// Date is a calendar date with no time-of-day component. The zero Date is
// invalid and marks a missing or malformed sample date.
type Date struct {
	t time.Time
}

// NewDate returns the calendar date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// Valid reports whether the date was parsed successfully.
func (d Date) Valid() bool { return !d.t.IsZero() }

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time { return d.t }

// AddDays returns the date n calendar days later (earlier if n < 0).
func (d Date) AddDays(n int) Date {
	if !d.Valid() {
		return d
	}
	return Date{t: d.t.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool { return d.t.After(o.t) }

// Equal reports whether d and o are the same calendar day.
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

func (d Date) String() string {
	if !d.Valid() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// MarshalText encodes the date as YYYY-MM-DD; an invalid date encodes empty.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText is lenient: unparseable input yields an invalid Date rather
// than an error so one bad row never aborts a bulk decode.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseSampleDate(string(b))
	if err != nil {
		*d = Date{}
		return nil
	}
	*d = parsed
	return nil
}

// DateLayout is the canonical on-the-wire date format.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000000",
	"2006/01/02",
	"02-Jan-2006",
}

// ParseSampleDate parses the date formats seen in exported lab sheets.
func ParseSampleDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("empty sample date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("unrecognised sample date %q", s)
}

// DistinctDates returns the valid sample dates present in records, newest
// first.
func DistinctDates(records []Record) []Date {
	seen := make(map[Date]struct{})
	var out []Date
	for _, r := range records {
		if !r.SampleDate.Valid() {
			continue
		}
		if _, ok := seen[r.SampleDate]; ok {
			continue
		}
		seen[r.SampleDate] = struct{}{}
		out = append(out, r.SampleDate)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out
}
