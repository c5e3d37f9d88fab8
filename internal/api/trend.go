package api

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/listeria.report/internal/httputil"
	"github.com/banshee-data/listeria.report/internal/monitoring"
	"github.com/banshee-data/listeria.report/internal/samples"
	"github.com/banshee-data/listeria.report/internal/security"
	"github.com/banshee-data/listeria.report/internal/stats"
)

// TrendSeries is a detection-rate series ready for charting, with its
// quadratic overlay when one could be fitted.
type TrendSeries struct {
	Group     string              `json:"group"`
	Labels    []string            `json:"labels"`
	Summaries []stats.Summary     `json:"summaries"`
	Points    []stats.Point       `json:"points"`
	Fit       *stats.QuadraticFit `json:"fit"`
	// Note explains a missing Fit.
	Note string `json:"note,omitempty"`
}

// BuildTrend summarises records by week or by date and fits the trend. Too
// few distinct x values is not an error: the series comes back without Fit.
func BuildTrend(records []samples.Record, key stats.GroupKey) (*TrendSeries, error) {
	if key != stats.ByWeek && key != stats.ByDate {
		return nil, badRequest("trend group must be %q or %q", stats.ByWeek, stats.ByDate)
	}
	summaries, err := stats.Summarize(records, key)
	if err != nil {
		return nil, err
	}

	ts := &TrendSeries{
		Group:     key.String(),
		Labels:    make([]string, 0, len(summaries)),
		Summaries: summaries,
	}
	if ts.Summaries == nil {
		ts.Summaries = []stats.Summary{}
	}
	for _, s := range summaries {
		ts.Labels = append(ts.Labels, s.Label)
	}
	if key == stats.ByWeek {
		ts.Points = stats.WeekTrendPoints(summaries)
	} else {
		ts.Points = stats.DateTrendPoints(summaries)
	}

	fit, err := stats.FitQuadratic(ts.Points)
	var ide *stats.InsufficientDataError
	switch {
	case errors.As(err, &ide):
		ts.Note = err.Error()
	case err != nil:
		return nil, err
	default:
		ts.Fit = &fit
	}
	return ts, nil
}

// TrendPlot draws the series and its overlay as a static plot.
func TrendPlot(ts *TrendSeries, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Detection rate (%)"
	if ts.Group == stats.ByWeek.String() {
		p.X.Label.Text = "Week"
	} else {
		p.X.Label.Text = "Date"
		p.X.Tick.Marker = ordinalDateTicks{}
	}

	raw := make(plotter.XYs, len(ts.Points))
	for i, pt := range ts.Points {
		raw[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	if len(raw) == 0 {
		return p, nil
	}

	rawLine, rawPoints, err := plotter.NewLinePoints(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate line: %w", err)
	}
	rawLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	rawLine.Width = vg.Points(1)
	rawPoints.Shape = draw.CircleGlyph{}
	rawPoints.Color = rawLine.Color
	p.Add(rawLine, rawPoints)
	p.Legend.Add("Detection rate", rawLine, rawPoints)

	if ts.Fit != nil {
		fitted := make(plotter.XYs, len(ts.Points))
		for i, pt := range ts.Points {
			fitted[i] = plotter.XY{X: pt.X, Y: ts.Fit.Fitted[i]}
		}
		fitLine, err := plotter.NewLine(fitted)
		if err != nil {
			return nil, fmt.Errorf("failed to create trend line: %w", err)
		}
		fitLine.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		fitLine.Width = vg.Points(1.5)
		fitLine.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(fitLine)
		p.Legend.Add("Quadratic trend", fitLine)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// ordinalDateTicks labels date-ordinal axes with calendar dates.
type ordinalDateTicks struct{}

func (ordinalDateTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i := range ticks {
		if ticks[i].Label == "" || ticks[i].Value != math.Trunc(ticks[i].Value) {
			ticks[i].Label = ""
			continue
		}
		ticks[i].Label = ordinalToDate(int(ticks[i].Value)).String()
	}
	return ticks
}

func ordinalToDate(ordinal int) samples.Date {
	epoch := samples.NewDate(1970, 1, 1)
	return epoch.AddDays(ordinal - stats.DateOrdinal(epoch))
}

func trendKey(r *http.Request) (stats.GroupKey, error) {
	group := r.URL.Query().Get("group")
	if group == "" {
		return stats.ByWeek, nil
	}
	key, err := stats.ParseGroupKey(group)
	if err != nil {
		return 0, badRequest("%v", err)
	}
	return key, nil
}

func (s *Server) trendSeries(r *http.Request) (*TrendSeries, error) {
	key, err := trendKey(r)
	if err != nil {
		return nil, err
	}
	records, err := s.loadRecords(r.Context(), "api_trend", filterFromQuery(r))
	if err != nil {
		return nil, err
	}
	return BuildTrend(records, key)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ts, err := s.trendSeries(r)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, ts)
}

func (s *Server) handleTrendPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ts, err := s.trendSeries(r)
	if err != nil {
		writeError(w, err)
		return
	}
	title := "Weekly detection rate"
	if ts.Group == stats.ByDate.String() {
		title = "Daily detection rate"
	}
	p, err := TrendPlot(ts, title)
	if err != nil {
		writeError(w, err)
		return
	}
	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		writeError(w, fmt.Errorf("failed to encode trend plot: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s",
		security.SanitizeFilename(fmt.Sprintf("listeria-%s-trend %s.png", ts.Group, s.clock.Now().UTC().Format("2006-01-02")))))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := wt.WriteTo(w); err != nil {
		monitoring.Logf("failed to write trend plot: %v", err)
	}
}
