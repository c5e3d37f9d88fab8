package api

import (
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/listeria.report/internal/httputil"
	"github.com/banshee-data/listeria.report/internal/monitoring"
	"github.com/banshee-data/listeria.report/internal/samples"
	"github.com/banshee-data/listeria.report/internal/stats"
)

const (
	colorTotal    = "#5470c6"
	colorDetected = "#ee6666"
	colorRate     = "#fac858"
	colorTrend    = "#3ba272"
)

var filteredViews = []struct {
	title        string
	beforeDuring string
	freshSmoked  string
}{
	{"Before production, Fresh", samples.BeforeProduction, samples.DeptFresh},
	{"During production, Fresh", samples.DuringProduction, samples.DeptFresh},
	{"Before production, Smoking + Packing", samples.BeforeProduction, samples.DeptSmokingPacking},
	{"During production, Smoking + Packing", samples.DuringProduction, samples.DeptSmokingPacking},
}

func (s *Server) chartInit(height string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: height, AssetsHost: s.assetsHost()})
}

// dailyTotalsChart draws total and detected samples side by side per date.
func (s *Server) dailyTotalsChart(byDate []stats.Summary) *charts.Bar {
	labels := make([]string, len(byDate))
	totals := make([]opts.BarData, len(byDate))
	detected := make([]opts.BarData, len(byDate))
	for i, sum := range byDate {
		labels[i] = sum.Label
		totals[i] = opts.BarData{Value: sum.Total}
		detected[i] = opts.BarData{Value: sum.Detected}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		s.chartInit("420px"),
		charts.WithTitleOpts(opts.Title{Title: "Daily samples", Subtitle: "Total vs detected"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Date", AxisLabel: &opts.AxisLabel{Rotate: 45}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Samples"}),
	)
	bar.SetXAxis(labels).
		AddSeries("Total", totals, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorTotal})).
		AddSeries("Detected", detected, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorDetected}))
	return bar
}

// rateChart draws sample totals as bars with the detection rate on a second
// axis. fit adds the quadratic overlay; pass nil to omit it.
func (s *Server) rateChart(title, xName string, summaries []stats.Summary, fit *stats.QuadraticFit) *charts.Bar {
	labels := make([]string, len(summaries))
	totals := make([]opts.BarData, len(summaries))
	rates := make([]opts.LineData, len(summaries))
	for i, sum := range summaries {
		labels[i] = sum.Label
		totals[i] = opts.BarData{Value: sum.Total}
		rates[i] = opts.LineData{Value: sum.DetectionRatePercent}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		s.chartInit("420px"),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName, AxisLabel: &opts.AxisLabel{Rotate: 45}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Samples"}),
	)
	bar.ExtendYAxis(opts.YAxis{Name: "Detection rate (%)", Min: 0})
	bar.SetXAxis(labels).
		AddSeries("Total", totals, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorTotal}))

	line := charts.NewLine()
	line.SetXAxis(labels).
		AddSeries("Detection rate (%)", rates,
			charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colorRate}),
		)
	if fit != nil {
		fitted := make([]opts.LineData, len(fit.Fitted))
		for i, v := range fit.Fitted {
			fitted[i] = opts.LineData{Value: math.Round(v*100) / 100}
		}
		line.AddSeries("Quadratic trend", fitted,
			charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1, Smooth: opts.Bool(true), ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Width: 2}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colorTrend}),
		)
	}
	bar.Overlap(line)
	return bar
}

// departmentChart draws one rate line per department over the pivot dates.
func (s *Server) departmentChart(pivot stats.DepartmentPivot) *charts.Line {
	labels := make([]string, len(pivot.Dates))
	for i, d := range pivot.Dates {
		labels[i] = d.String()
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		s.chartInit("420px"),
		charts.WithTitleOpts(opts.Title{Title: "Detection rate by department"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Date", AxisLabel: &opts.AxisLabel{Rotate: 45}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Detection rate (%)", Min: 0}),
	)
	line.SetXAxis(labels)
	for _, series := range pivot.Series {
		data := make([]opts.LineData, len(series.Rates))
		for i, v := range series.Rates {
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(series.Department, data)
	}
	return line
}

// trendPage assembles every chart of the trend page from one record set.
// Charts whose data cannot be aggregated are skipped with a note.
func (s *Server) trendPage(records []samples.Record) (dashboardPage, error) {
	page := dashboardPage{
		Title: "Listeria trend",
		KPI:   newKPI(stats.ComputeTotals(records)),
	}
	var cs []snippetRenderer

	byDate, err := stats.Summarize(records, stats.ByDate)
	if err != nil {
		return page, err
	}
	cs = append(cs, s.dailyTotalsChart(byDate))

	weekly, err := BuildTrend(records, stats.ByWeek)
	switch {
	case stats.IsParseError(err):
		monitoring.Logf("weekly trend skipped: %v", err)
		page.Notes = append(page.Notes, fmt.Sprintf("Weekly summary unavailable: %v", err))
	case err != nil:
		return page, err
	default:
		if weekly.Note != "" {
			page.Notes = append(page.Notes, "Weekly trend line omitted: "+weekly.Note)
		}
		cs = append(cs, s.rateChart("Weekly summary", "Week", weekly.Summaries, weekly.Fit))
	}

	daily, err := BuildTrend(records, stats.ByDate)
	if err != nil {
		return page, err
	}
	if daily.Note != "" {
		page.Notes = append(page.Notes, "Daily trend line omitted: "+daily.Note)
	}
	cs = append(cs, s.rateChart("Daily summary", "Date", daily.Summaries, daily.Fit))

	bySubArea, err := stats.Summarize(records, stats.BySubArea)
	if err != nil {
		return page, err
	}
	cs = append(cs, s.rateChart("Summary by sub-area", "Sub-area", bySubArea, nil))

	for _, v := range filteredViews {
		subset := samples.Filter{BeforeDuring: v.beforeDuring, FreshSmoked: v.freshSmoked}.Apply(records)
		sums, err := stats.Summarize(subset, stats.ByDate)
		if err != nil {
			return page, err
		}
		cs = append(cs, s.rateChart(v.title, "Date", sums, nil))
	}

	byDept, err := stats.Summarize(records, stats.ByDateDepartment)
	if err != nil {
		return page, err
	}
	cs = append(cs, s.departmentChart(stats.PivotDepartments(byDept)))

	page.Charts = snippets(cs...)
	return page, nil
}

func (s *Server) handleTrendPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	records, err := s.loadRecords(r.Context(), "trend", samples.Filter{})
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := s.trendPage(records)
	if err != nil {
		writeError(w, err)
		return
	}
	s.renderDashboard(w, r, page)
}
