// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/listeria.report/internal/samples"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewFormRequest creates a POST request carrying an url-encoded form.
func NewFormRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// Anchor is the newest sample date in SampleRecords.
var Anchor = samples.NewDate(2025, time.May, 28)

func f(v float64) *float64 { return &v }

// SampleRecords returns a small, self-consistent lab data set covering both
// departments, both production phases, an unmapped area, an unlocated record
// and a malformed date.
func SampleRecords() []samples.Record {
	d := func(back int) samples.Date { return Anchor.AddDays(-back) }
	return []samples.Record{
		{ID: "r1", SampleDate: d(0), TestResult: samples.Detected, Value: f(1), SubArea: "PRODUCTION", BeforeDuring: samples.DuringProduction, FreshSmoked: samples.DeptFresh, Week: "Week-22", Point: "12", LocationCode: "F-12", X: f(100), Y: f(200)},
		{ID: "r2", SampleDate: d(1), TestResult: samples.NotDetected, Value: f(0), SubArea: "PRODUCTION", BeforeDuring: samples.BeforeProduction, FreshSmoked: samples.DeptFresh, Week: "Week-22", Point: "12", LocationCode: "F-12", X: f(100), Y: f(200)},
		{ID: "r3", SampleDate: d(5), TestResult: samples.Detected, Value: f(1), SubArea: "PRODUCTION", BeforeDuring: samples.DuringProduction, FreshSmoked: samples.DeptFresh, Week: "Week-21", Point: "12", LocationCode: "F-12", X: f(100), Y: f(200)},
		{ID: "r4", SampleDate: d(0), TestResult: samples.NotDetected, Value: f(0), SubArea: "WASHER", BeforeDuring: samples.BeforeProduction, FreshSmoked: samples.DeptFresh, Week: "Week-22", Point: "3", LocationCode: "F-3", X: f(40), Y: f(60)},
		{ID: "r5", SampleDate: d(0), TestResult: samples.Detected, Value: f(1), SubArea: "ENTRANCE", BeforeDuring: samples.DuringProduction, FreshSmoked: samples.DeptSmokingPacking, Week: "Week-22", Point: "7", LocationCode: "S-7", X: f(300), Y: f(50)},
		{ID: "r6", SampleDate: d(8), TestResult: samples.NotDetected, Value: f(0), SubArea: "CFS", BeforeDuring: samples.BeforeProduction, FreshSmoked: samples.DeptSmokingPacking, Week: "Week-21", Point: "9", LocationCode: "S-9"},
		{ID: "r7", SampleDate: d(9), TestResult: samples.NotDetected, Value: f(0), SubArea: "ZZZ", BeforeDuring: samples.BeforeProduction, FreshSmoked: samples.DeptSmokingPacking, Week: "Week-20", Point: "99", LocationCode: "X-99"},
		{ID: "r8", TestResult: samples.NotDetected, SubArea: "DEBONING", BeforeDuring: samples.DuringProduction, FreshSmoked: samples.DeptFresh, Week: "Week-20", Point: "4", LocationCode: "F-4"},
	}
}
