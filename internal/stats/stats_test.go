package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/banshee-data/listeria.report/internal/samples"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func day(d int) samples.Date { return samples.NewDate(2025, time.May, d) }

func val(f float64) *float64 { return &f }

func rec(date samples.Date, result string) samples.Record {
	return samples.Record{SampleDate: date, TestResult: result}
}

func TestSummarizeSingleGroup(t *testing.T) {
	in := []samples.Record{
		rec(day(1), samples.Detected),
		rec(day(1), samples.NotDetected),
		rec(day(1), samples.Detected),
	}
	got, err := Summarize(in, ByDate)
	require.NoError(t, err)
	want := []Summary{{Label: "2025-05-01", Date: day(1), Total: 3, Detected: 2, DetectionRatePercent: 66.7}}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(samples.Date{})); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarizeByDateOrderingAndInvalidDates(t *testing.T) {
	in := []samples.Record{
		rec(day(3), samples.NotDetected),
		rec(day(1), "Presumptive"),
		{TestResult: samples.Detected},
		rec(day(3), samples.Detected),
	}
	got, err := Summarize(in, ByDate)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-05-01", got[0].Label)
	assert.Equal(t, 100.0, got[0].DetectionRatePercent)
	assert.Equal(t, "2025-05-03", got[1].Label)
	assert.Equal(t, 2, got[1].Total)
	assert.Equal(t, 50.0, got[1].DetectionRatePercent)

	total := 0
	for _, s := range got {
		assert.Positive(t, s.Total)
		assert.LessOrEqual(t, s.Detected, s.Total)
		total += s.Total
	}
	assert.Equal(t, 3, total)
}

func TestSummarizeEmpty(t *testing.T) {
	for _, key := range []GroupKey{ByDate, ByWeek, BySubArea, ByDateDepartment} {
		got, err := Summarize(nil, key)
		require.NoError(t, err, key.String())
		assert.Empty(t, got, key.String())
	}
}

func TestSummarizeByWeek(t *testing.T) {
	in := []samples.Record{
		{Week: "Week-10", TestResult: samples.Detected},
		{Week: "Week-2", TestResult: samples.NotDetected},
		{Week: "Week-9", TestResult: samples.NotDetected},
		{Week: "Week-2", TestResult: samples.Detected},
	}
	got, err := Summarize(in, ByWeek)
	require.NoError(t, err)

	var labels []string
	for _, s := range got {
		labels = append(labels, s.Label)
	}
	if diff := cmp.Diff([]string{"Week-2", "Week-9", "Week-10"}, labels); diff != "" {
		t.Errorf("week order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, got[0].Week)
	assert.Equal(t, 50.0, got[0].DetectionRatePercent)
}

func TestSummarizeBadWeekLabel(t *testing.T) {
	in := []samples.Record{{Week: "Week-3"}, {Week: "wk 4"}}
	_, err := Summarize(in, ByWeek)
	require.Error(t, err)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "wk 4", pe.Label)
	assert.True(t, IsParseError(err))
}

func TestSummarizeBySubArea(t *testing.T) {
	in := []samples.Record{
		{SubArea: "ZZZ", TestResult: samples.NotDetected},
		{SubArea: "", TestResult: samples.NotDetected},
		{SubArea: "ENTRANCE", TestResult: samples.Detected},
		{SubArea: "AAA", TestResult: samples.NotDetected},
		{SubArea: "PRODUCTION", TestResult: samples.NotDetected},
		{SubArea: "WASHER", TestResult: samples.Detected},
	}
	got, err := Summarize(in, BySubArea)
	require.NoError(t, err)

	var labels []string
	for _, s := range got {
		labels = append(labels, s.Label)
	}
	want := []string{"PRODUCTION", "WASHER", "ENTRANCE", "AAA", "ZZZ", samples.UnmappedArea}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("sub-area order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, samples.DeptFresh, got[0].Department)
	assert.Equal(t, samples.DeptSmokingPacking, got[2].Department)
	assert.Equal(t, samples.DeptUnmapped, got[3].Department)
}

func TestSummarizeByDateDepartment(t *testing.T) {
	in := []samples.Record{
		{SampleDate: day(2), SubArea: "ZZZ", TestResult: samples.Detected},
		{SampleDate: day(2), SubArea: "ENTRANCE", TestResult: samples.NotDetected},
		{SampleDate: day(2), SubArea: "DEBONING", TestResult: samples.Detected},
		{SampleDate: day(1), SubArea: "CFS", TestResult: samples.Detected},
	}
	got, err := Summarize(in, ByDateDepartment)
	require.NoError(t, err)

	var labels []string
	for _, s := range got {
		labels = append(labels, s.Label)
	}
	want := []string{
		"2025-05-01 Smoking + Packing",
		"2025-05-02 Fresh",
		"2025-05-02 Smoking + Packing",
		"2025-05-02 Unmapped",
	}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("date/department order mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarizeIdempotent(t *testing.T) {
	in := []samples.Record{
		{SampleDate: day(2), SubArea: "WASHER", TestResult: samples.Detected, Week: "Week-1"},
		{SampleDate: day(1), SubArea: "CFS", TestResult: samples.NotDetected, Week: "Week-1"},
	}
	snapshot := append([]samples.Record(nil), in...)
	first, err := Summarize(in, ByDateDepartment)
	require.NoError(t, err)
	second, err := Summarize(in, ByDateDepartment)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second, cmp.AllowUnexported(samples.Date{})); diff != "" {
		t.Errorf("repeat Summarize differs:\n%s", diff)
	}
	assert.Equal(t, snapshot, in)
}

func TestRoundRate(t *testing.T) {
	tests := []struct {
		d, t int
		want float64
	}{
		{2, 3, 66.7},
		{1, 3, 33.3},
		{0, 5, 0},
		{5, 5, 100},
		{1, 8, 12.5},
		{1, 16, 6.2},
		{3, 16, 18.8},
	}
	for _, tc := range tests {
		if got := RoundRate(tc.d, tc.t); got != tc.want {
			t.Errorf("RoundRate(%d, %d) = %v, want %v", tc.d, tc.t, got, tc.want)
		}
	}
}

func TestComputeTotals(t *testing.T) {
	assert.Equal(t, Totals{}, ComputeTotals(nil))
	got := ComputeTotals([]samples.Record{rec(day(1), samples.Detected), {TestResult: samples.NotDetected}})
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Detected)
	assert.InDelta(t, 50.0, got.DetectionRatePercent, 1e-9)
}

func TestParseGroupKey(t *testing.T) {
	for _, k := range []GroupKey{ByDate, ByWeek, BySubArea, ByDateDepartment} {
		got, err := ParseGroupKey(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseGroupKey("month")
	assert.Error(t, err)
}
