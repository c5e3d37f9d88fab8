package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/listeria.report/internal/samples"
	"github.com/banshee-data/listeria.report/internal/stats"
	"github.com/banshee-data/listeria.report/internal/testutil"
)

type summaryJSON struct {
	Group  string `json:"group"`
	Totals struct {
		Total    int `json:"total"`
		Detected int `json:"detected"`
	} `json:"totals"`
	Summaries []struct {
		Label                string  `json:"label"`
		Total                int     `json:"total"`
		Detected             int     `json:"detected"`
		DetectionRatePercent float64 `json:"detection_rate_percent"`
	} `json:"summaries"`
}

func decode(t *testing.T, body *bytes.Buffer, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body.Bytes(), v), body.String())
}

func TestTrendPage(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t)

	rec := env.get("/trend", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	for _, want := range []string{
		"Listeria trend",
		"<div>8<span>Total samples</span></div>",
		"<div>3<span>Detected</span></div>",
		"<div>37.50%<span>Detection rate</span></div>",
		"Daily samples",
		"Weekly summary",
		"Daily summary",
		"Summary by sub-area",
		"Before production, Fresh",
		"During production, Fresh",
		"Detection rate by department",
		"Quadratic trend",
		defaultAssetsHost + "echarts.min.js",
	} {
		assert.Contains(t, body, want)
	}
	assert.NotContains(t, body, "trend line omitted")
}

func TestTrendPageBadWeekLabel(t *testing.T) {
	env := setupTestServer(t)
	_, err := env.db.InsertRecords(context.Background(), []samples.Record{
		{ID: "bad-week", SampleDate: testutil.Anchor, TestResult: samples.Detected, Week: "wk 22"},
	})
	require.NoError(t, err)
	cookie := env.login(t)

	rec := env.get("/trend", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "Weekly summary unavailable")
	assert.Contains(t, rec.Body.String(), "Daily summary")

	rec = env.get("/api/trend?group=week", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusUnprocessableEntity)
	assert.Contains(t, rec.Body.String(), "wk 22")

	rec = env.get("/api/summary?group=week", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusUnprocessableEntity)
}

func TestSummaryAPI(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t)

	t.Run("sub_area", func(t *testing.T) {
		rec := env.get("/api/summary?group=sub_area", cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var got summaryJSON
		decode(t, rec.Body, &got)

		assert.Equal(t, "sub_area", got.Group)
		assert.Equal(t, 8, got.Totals.Total)
		assert.Equal(t, 3, got.Totals.Detected)
		var labels []string
		for _, s := range got.Summaries {
			labels = append(labels, s.Label)
		}
		assert.Equal(t, []string{"PRODUCTION", "DEBONING", "WASHER", "ENTRANCE", "CFS", "ZZZ"}, labels)
		assert.Equal(t, 3, got.Summaries[0].Total)
		assert.Equal(t, 66.7, got.Summaries[0].DetectionRatePercent)
	})

	t.Run("date excludes malformed dates", func(t *testing.T) {
		rec := env.get("/api/summary?group=date", cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var got summaryJSON
		decode(t, rec.Body, &got)

		require.Len(t, got.Summaries, 5)
		assert.Equal(t, "2025-05-19", got.Summaries[0].Label)
		assert.Equal(t, "2025-05-28", got.Summaries[4].Label)
		total := 0
		for _, s := range got.Summaries {
			total += s.Total
		}
		assert.Equal(t, 7, total)
	})

	t.Run("filtered", func(t *testing.T) {
		rec := env.get("/api/summary?group=date&fresh_smoked=fresh&before_during=dp", cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var got summaryJSON
		decode(t, rec.Body, &got)

		require.Len(t, got.Summaries, 2)
		assert.Equal(t, "2025-05-23", got.Summaries[0].Label)
		assert.Equal(t, "2025-05-28", got.Summaries[1].Label)
		assert.Equal(t, 100.0, got.Summaries[1].DetectionRatePercent)
		assert.Equal(t, 3, got.Totals.Total)
	})

	t.Run("empty result", func(t *testing.T) {
		rec := env.get("/api/summary?fresh_smoked=nowhere", cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		assert.Contains(t, rec.Body.String(), `"summaries":[]`)
	})

	t.Run("bad group", func(t *testing.T) {
		rec := env.get("/api/summary?group=month", cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	})

	t.Run("method", func(t *testing.T) {
		rec := env.do(testutil.NewTestRequest(http.MethodPost, "/api/summary"), cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
	})
}

func TestTrendAPI(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t)

	rec := env.get("/api/trend", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var got TrendSeries
	decode(t, rec.Body, &got)

	assert.Equal(t, "week", got.Group)
	assert.Equal(t, []string{"Week-20", "Week-21", "Week-22"}, got.Labels)
	assert.Equal(t, []stats.Point{{X: 20, Y: 0}, {X: 21, Y: 50}, {X: 22, Y: 50}}, got.Points)
	require.NotNil(t, got.Fit)
	for i, p := range got.Points {
		assert.InDelta(t, p.Y, got.Fit.Fitted[i], 1e-6)
	}
	assert.Empty(t, got.Note)

	rec = env.get("/api/trend?group=date", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	decode(t, rec.Body, &got)
	assert.Equal(t, "date", got.Group)
	assert.Len(t, got.Points, 5)

	rec = env.get("/api/trend?group=sub_area", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	rec = env.get("/api/trend?group=fortnight", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestBuildTrendInsufficientData(t *testing.T) {
	records := []samples.Record{
		{Week: "Week-1", TestResult: samples.Detected},
		{Week: "Week-2", TestResult: samples.NotDetected},
	}
	ts, err := BuildTrend(records, stats.ByWeek)
	require.NoError(t, err)
	assert.Nil(t, ts.Fit)
	assert.Contains(t, ts.Note, "at least 3 distinct")
	assert.Len(t, ts.Points, 2)

	ts, err = BuildTrend(nil, stats.ByDate)
	require.NoError(t, err)
	assert.Nil(t, ts.Fit)
	assert.Empty(t, ts.Summaries)
}

func TestTrendPNG(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t)

	for _, group := range []string{"week", "date"} {
		rec := env.get("/api/trend.png?group="+group, cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, "inline; filename=listeria-"+group+"-trend_2025-05-28.png", rec.Header().Get("Content-Disposition"))
		_, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
		assert.NoError(t, err, group)
	}
}

func TestOrdinalToDate(t *testing.T) {
	d := samples.NewDate(2025, time.May, 28)
	assert.True(t, d.Equal(ordinalToDate(stats.DateOrdinal(d))))
}

type positivityJSON struct {
	Department string   `json:"department"`
	Date       string   `json:"date"`
	Dates      []string `json:"dates"`
	WindowDays int      `json:"window_days"`
	Points     []struct {
		Point      string   `json:"point"`
		X          float64  `json:"x"`
		Y          float64  `json:"y"`
		Positivity *float64 `json:"positivity"`
		Percent    string   `json:"percent"`
		Severity   string   `json:"severity"`
		Color      string   `json:"color"`
		History    []struct {
			Date    string `json:"date"`
			Outcome string `json:"outcome"`
		} `json:"history"`
	} `json:"points"`
}

func TestPositivityAPI(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t)

	t.Run("defaults to newest date", func(t *testing.T) {
		rec := env.get("/api/positivity?department=fresh", cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var got positivityJSON
		decode(t, rec.Body, &got)

		assert.Equal(t, samples.DeptFresh, got.Department)
		assert.Equal(t, "2025-05-28", got.Date)
		assert.Equal(t, []string{"2025-05-28", "2025-05-27", "2025-05-23"}, got.Dates)
		assert.Equal(t, 28, got.WindowDays)
		require.Len(t, got.Points, 2)

		p := got.Points[0]
		assert.Equal(t, "12", p.Point)
		require.NotNil(t, p.Positivity)
		assert.InDelta(t, 2.0/3.0, *p.Positivity, 1e-9)
		assert.Equal(t, "66.7%", p.Percent)
		assert.Equal(t, "critical", p.Severity)
		assert.Equal(t, "#8B0000", p.Color)
		require.Len(t, p.History, 3)
		assert.Equal(t, "2025-05-28", p.History[0].Date)
		assert.Equal(t, "Detected", p.History[0].Outcome)
		assert.Equal(t, "2025-05-27", p.History[1].Date)
		assert.Equal(t, "Not Detected", p.History[1].Outcome)
		assert.Equal(t, "2025-05-23", p.History[2].Date)

		assert.Equal(t, "3", got.Points[1].Point)
		assert.Equal(t, "none", got.Points[1].Severity)
		assert.Equal(t, "0.0%", got.Points[1].Percent)
	})

	t.Run("selected date", func(t *testing.T) {
		rec := env.get("/api/positivity?department=fresh&date=2025-05-27", cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var got positivityJSON
		decode(t, rec.Body, &got)
		require.Len(t, got.Points, 1)
		assert.InDelta(t, 0.5, *got.Points[0].Positivity, 1e-9)
		assert.Equal(t, "critical", got.Points[0].Severity)
	})

	t.Run("window", func(t *testing.T) {
		rec := env.get("/api/positivity?department=fresh&window_days=1", cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var got positivityJSON
		decode(t, rec.Body, &got)
		require.Len(t, got.Points, 2)
		assert.Equal(t, 1.0, *got.Points[0].Positivity)
		assert.Len(t, got.Points[0].History, 1)
	})

	t.Run("date without samples", func(t *testing.T) {
		rec := env.get("/api/positivity?department=fresh&date=2025-05-26", cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var got positivityJSON
		decode(t, rec.Body, &got)
		assert.Empty(t, got.Points)
		assert.Equal(t, "2025-05-26", got.Date)
	})

	t.Run("smoked skips unlocated records", func(t *testing.T) {
		rec := env.get("/api/positivity?department=smoked", cookie)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var got positivityJSON
		decode(t, rec.Body, &got)
		assert.Equal(t, []string{"2025-05-28"}, got.Dates)
		require.Len(t, got.Points, 1)
		assert.Equal(t, "7", got.Points[0].Point)
	})

	for _, tc := range []struct {
		query string
		code  int
	}{
		{"", http.StatusBadRequest},
		{"?department=frozen", http.StatusNotFound},
		{"?department=fresh&date=yesterday", http.StatusBadRequest},
		{"?department=fresh&window_days=0", http.StatusBadRequest},
		{"?department=fresh&window_days=abc", http.StatusBadRequest},
	} {
		rec := env.get("/api/positivity"+tc.query, cookie)
		testutil.AssertStatusCode(t, rec.Code, tc.code)
	}
}

func TestBuildMapViewNoLocatedRecords(t *testing.T) {
	records := []samples.Record{{Point: "1", SampleDate: testutil.Anchor, FreshSmoked: samples.DeptFresh}}
	view, err := BuildMapView(records, "fresh", samples.Date{}, 28)
	require.NoError(t, err)
	assert.Empty(t, view.Dates)
	assert.Empty(t, view.Points)
	assert.False(t, view.Date.Valid())
}

func TestHoverText(t *testing.T) {
	p := MapPoint{
		Point:        "12",
		LocationCode: "F<12>",
		Percent:      "N/A",
	}
	got := hoverText(p, 28)
	assert.Equal(t, "<b>F&lt;12&gt;</b><br/>28-day positivity: N/A<br/>No history available", got)

	p.LocationCode = ""
	p.Percent = "50.0%"
	p.History = []stats.HistoryEntry{
		{Date: testutil.Anchor, Outcome: stats.OutcomeDetected},
		{Date: testutil.Anchor.AddDays(-1), Outcome: stats.OutcomeNotDetected},
	}
	got = hoverText(p, 7)
	assert.Equal(t, "<b>12</b><br/>7-day positivity: 50.0%<br/>2025-05-28: Detected<br/>2025-05-27: Not Detected", got)
}

func TestFitImageWithoutFloorPlan(t *testing.T) {
	v := &MapView{Points: []MapPoint{{X: 100, Y: 200}, {X: 300, Y: 50}}}
	v.fitImage(nil)
	assert.InDelta(t, 315, v.Width, 1e-9)
	assert.InDelta(t, 210, v.Height, 1e-9)
	assert.Empty(t, v.ImageURL)

	v.fitImage(&floorPlan{url: "/floorplan/fresh", width: 800, height: 600})
	assert.Equal(t, 800.0, v.Width)
	assert.Equal(t, 600.0, v.Height)
	assert.Equal(t, "/floorplan/fresh", v.ImageURL)
}

func writeFloorPlan(t *testing.T, dir, name string, w, h int) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
}

func TestMapPage(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t)

	rec := env.get("/map/fresh", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	body := rec.Body.String()
	assert.Contains(t, body, "Fresh facility map")
	assert.Contains(t, body, `<option value="2025-05-28" selected>`)
	assert.Contains(t, body, `<option value="2025-05-27">`)
	assert.Contains(t, body, "#8B0000")
	assert.NotContains(t, body, "/floorplan/fresh", "no image configured")
	assert.Contains(t, body, "return p.name;")
	assert.NotContains(t, body, `"formatter":"{b}"`)

	rec = env.get("/map/fresh?date=2025-05-27", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), `<option value="2025-05-27" selected>`)

	rec = env.get("/map/fresh?date=2025-05-26", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "No located samples on 2025-05-26.")

	testutil.AssertStatusCode(t, env.get("/map/frozen", cookie).Code, http.StatusNotFound)
	testutil.AssertStatusCode(t, env.get("/map/fresh?date=bad", cookie).Code, http.StatusBadRequest)
}

func TestMapPageWithFloorPlan(t *testing.T) {
	env := setupTestServer(t)
	writeFloorPlan(t, env.cfg.FloorPlanDir, "fresh_floor_plan.png", 400, 300)
	cookie := env.login(t)

	rec := env.get("/map/fresh", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	body := rec.Body.String()
	assert.Contains(t, body, `"/floorplan/fresh"`)
	assert.Contains(t, body, "convertToPixel")

	rec = env.get("/floorplan/fresh", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	testutil.AssertStatusCode(t, env.get("/floorplan/smoked", cookie).Code, http.StatusNotFound)
	testutil.AssertStatusCode(t, env.get("/floorplan/other", cookie).Code, http.StatusNotFound)
}

func TestFloorPlanOutsideDirectory(t *testing.T) {
	env := setupTestServer(t)
	outside := t.TempDir()
	writeFloorPlan(t, outside, "plan.png", 10, 10)
	env.cfg.FloorPlans.Fresh = filepath.Join("..", filepath.Base(outside), "plan.png")
	cookie := env.login(t)

	testutil.AssertStatusCode(t, env.get("/floorplan/fresh", cookie).Code, http.StatusNotFound)
}

func TestMapPageEmptyDepartment(t *testing.T) {
	env := setupTestServer(t)
	_, err := env.db.DeleteAllRecords(context.Background())
	require.NoError(t, err)
	cookie := env.login(t)

	rec := env.get("/map/smoked", cookie)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "No located samples available")
}
