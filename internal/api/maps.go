package api

import (
	"fmt"
	"html"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/listeria.report/internal/httputil"
	"github.com/banshee-data/listeria.report/internal/monitoring"
	"github.com/banshee-data/listeria.report/internal/samples"
	"github.com/banshee-data/listeria.report/internal/security"
	"github.com/banshee-data/listeria.report/internal/stats"
)

// severityColors is the display colour of each severity on the map.
var severityColors = map[stats.Severity]string{
	stats.SeverityCritical: "#8B0000",
	stats.SeverityHigh:     "#FF0000",
	stats.SeverityLow:      "#FFBF00",
	stats.SeverityNone:     "#008000",
	stats.SeverityUnknown:  "#A9A9A9",
}

// MapPoint is one sampling location plotted on the floor plan.
type MapPoint struct {
	Point        string               `json:"point"`
	LocationCode string               `json:"location_code"`
	X            float64              `json:"x"`
	Y            float64              `json:"y"`
	Positivity   *float64             `json:"positivity"`
	Percent      string               `json:"percent"`
	Samples      int                  `json:"samples"`
	Severity     stats.Severity       `json:"severity"`
	Color        string               `json:"color"`
	History      []stats.HistoryEntry `json:"history"`
	Hover        string               `json:"hover"`
}

// MapView is the facility map of one department on one sample date.
type MapView struct {
	Slug       string         `json:"slug"`
	Department string         `json:"department"`
	Dates      []samples.Date `json:"dates"`
	Date       samples.Date   `json:"date,omitzero"`
	WindowDays int            `json:"window_days"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	ImageURL   string         `json:"image_url,omitempty"`
	Points     []MapPoint     `json:"points"`
}

type floorPlan struct {
	url           string
	width, height int
}

// loadFloorPlan reads the image dimensions of a department's floor plan.
// A missing or unreadable image is reported and the map is drawn without it.
func (s *Server) loadFloorPlan(slug string) (*floorPlan, error) {
	path, err := s.floorPlanPath(slug)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open floor plan: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode floor plan %s: %w", path, err)
	}
	return &floorPlan{url: "/floorplan/" + slug, width: cfg.Width, height: cfg.Height}, nil
}

func (s *Server) floorPlanPath(slug string) (string, error) {
	path, err := s.cfg.FloorPlanPath(slug)
	if err != nil {
		return "", notFound("%v", err)
	}
	if err := security.ValidatePathWithinDirectory(path, s.cfg.GetFloorPlanDir()); err != nil {
		return "", notFound("floor plan unavailable")
	}
	return path, nil
}

func (s *Server) windowDays(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("window_days")
	if raw == "" {
		return s.cfg.GetWindowDays(), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest("%v", stats.ErrInvalidWindow)
	}
	return n, nil
}

// BuildMapView computes every located point's rolling positivity for the
// anchor date. An invalid anchor selects the newest available date.
func BuildMapView(records []samples.Record, slug string, anchor samples.Date, windowDays int) (*MapView, error) {
	dept, ok := samples.FreshSmokedForSlug(slug)
	if !ok {
		return nil, notFound("unknown map %q", slug)
	}
	located := samples.Filter{RequireLocation: true, FreshSmoked: dept}.Apply(records)

	view := &MapView{
		Slug:       slug,
		Department: dept,
		Dates:      samples.DistinctDates(located),
		WindowDays: windowDays,
		Points:     []MapPoint{},
	}
	if view.Dates == nil {
		view.Dates = []samples.Date{}
	}
	if !anchor.Valid() {
		if len(view.Dates) == 0 {
			return view, nil
		}
		anchor = view.Dates[0]
	}
	view.Date = anchor

	ratios, err := stats.PositivityByPoint(located, anchor, windowDays)
	if err != nil {
		return nil, badRequest("%v", err)
	}

	seen := make(map[string]bool, len(ratios))
	for _, r := range located {
		if !r.SampleDate.Equal(anchor) || seen[r.Point] {
			continue
		}
		seen[r.Point] = true

		history, err := stats.History(located, r.Point, anchor, windowDays)
		if err != nil {
			return nil, err
		}
		ratio := ratios[r.Point]
		sev := stats.Classify(ratio)
		p := MapPoint{
			Point:        r.Point,
			LocationCode: r.LocationCode,
			X:            *r.X,
			Y:            *r.Y,
			Percent:      ratio.Percent(),
			Samples:      ratio.Samples,
			Severity:     sev,
			Color:        severityColors[sev],
			History:      history,
		}
		if ratio.Valid {
			v := ratio.Value
			p.Positivity = &v
		}
		p.Hover = hoverText(p, windowDays)
		view.Points = append(view.Points, p)
	}
	return view, nil
}

func hoverText(p MapPoint, windowDays int) string {
	label := p.LocationCode
	if label == "" {
		label = p.Point
	}
	hist := strings.ReplaceAll(html.EscapeString(stats.HistoryText(p.History)), "\n", "<br/>")
	return fmt.Sprintf("<b>%s</b><br/>%d-day positivity: %s<br/>%s",
		html.EscapeString(label), windowDays, p.Percent, hist)
}

// fitImage sizes the view to the floor plan, or to the plotted points when
// no image is available.
func (v *MapView) fitImage(fp *floorPlan) {
	if fp != nil {
		v.Width, v.Height = float64(fp.width), float64(fp.height)
		v.ImageURL = fp.url
		return
	}
	v.Width, v.Height = 1, 1
	for _, p := range v.Points {
		v.Width = math.Max(v.Width, p.X*1.05)
		v.Height = math.Max(v.Height, p.Y*1.05)
	}
}

func (s *Server) mapView(r *http.Request, slug string) (*MapView, error) {
	if _, ok := samples.FreshSmokedForSlug(slug); !ok {
		return nil, notFound("unknown map %q", slug)
	}
	var anchor samples.Date
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := samples.ParseSampleDate(raw)
		if err != nil {
			return nil, badRequest("invalid date: %v", err)
		}
		anchor = d
	}
	windowDays, err := s.windowDays(r)
	if err != nil {
		return nil, err
	}
	dept, _ := samples.FreshSmokedForSlug(slug)
	records, err := s.loadRecords(r.Context(), "map_"+slug, samples.Filter{RequireLocation: true, FreshSmoked: dept})
	if err != nil {
		return nil, err
	}
	view, err := BuildMapView(records, slug, anchor, windowDays)
	if err != nil {
		return nil, err
	}
	fp, err := s.loadFloorPlan(slug)
	if err != nil {
		monitoring.Logf("map %s drawn without floor plan: %v", slug, err)
	}
	view.fitImage(fp)
	return view, nil
}

// mapChart plots one scatter series per severity. Image y grows downwards,
// so points are flipped onto the chart's upward y axis.
func (s *Server) mapChart(v *MapView) *charts.Scatter {
	width := 1000.0
	height := width * v.Height / v.Width

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:      fmt.Sprintf("%.0fpx", width),
			Height:     fmt.Sprintf("%.0fpx", height),
			AssetsHost: s.assetsHost(),
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    v.Department + " facility map",
			Subtitle: fmt.Sprintf("%s, %d-day positivity", v.Date, v.WindowDays),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: opts.FuncOpts(hoverFormatter)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: 0, Max: v.Width, Show: opts.Bool(false)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: 0, Max: v.Height, Show: opts.Bool(false)}),
	)

	bySeverity := make(map[stats.Severity][]opts.ScatterData)
	for _, p := range v.Points {
		bySeverity[p.Severity] = append(bySeverity[p.Severity], opts.ScatterData{
			Name:  p.Hover,
			Value: []interface{}{p.X, v.Height - p.Y},
		})
	}
	for _, sev := range stats.Severities {
		data, ok := bySeverity[sev]
		if !ok {
			continue
		}
		scatter.AddSeries(string(sev), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: severityColors[sev]}),
		)
	}

	if v.ImageURL != "" {
		scatter.AddJSFuncs(fmt.Sprintf(floorPlanJS, v.Height, v.Width, v.ImageURL))
	}
	return scatter
}

// hoverFormatter shows the point name as markup; string templates like
// "{b}" would escape it. The name is escaped when it is built.
const hoverFormatter = "function (p) { return p.name; }"

// floorPlanJS lays the floor-plan image under the grid once the chart exists.
const floorPlanJS = `(function () {
  var chart = %%MY_ECHARTS%%;
  var topLeft = chart.convertToPixel({gridIndex: 0}, [0, %[1]f]);
  var bottomRight = chart.convertToPixel({gridIndex: 0}, [%[2]f, 0]);
  chart.setOption({graphic: [{
    type: 'image', z: -10, left: topLeft[0], top: topLeft[1],
    style: {image: %[3]q, width: bottomRight[0] - topLeft[0], height: bottomRight[1] - topLeft[1]}
  }]});
})();`

func (s *Server) handleMapPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	slug := strings.TrimPrefix(r.URL.Path, "/map/")
	view, err := s.mapView(r, slug)
	if err != nil {
		writeError(w, err)
		return
	}

	page := dashboardPage{Title: view.Department + " facility map"}
	if len(view.Dates) == 0 {
		page.Notes = append(page.Notes, "No located samples available for this department.")
		s.renderDashboard(w, r, page)
		return
	}
	sel := &dateSelector{Action: r.URL.Path, Selected: view.Date.String()}
	for _, d := range view.Dates {
		sel.Dates = append(sel.Dates, d.String())
	}
	page.Selector = sel
	if len(view.Points) == 0 {
		page.Notes = append(page.Notes, fmt.Sprintf("No located samples on %s.", view.Date))
	}
	page.Charts = snippets(s.mapChart(view))
	s.renderDashboard(w, r, page)
}

func (s *Server) handleFloorPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httputil.MethodNotAllowed(w)
		return
	}
	path, err := s.floorPlanPath(strings.TrimPrefix(r.URL.Path, "/floorplan/"))
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		httputil.NotFound(w, "floor plan unavailable")
		return
	}
	http.ServeFile(w, r, path)
}
