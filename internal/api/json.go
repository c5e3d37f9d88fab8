package api

import (
	"net/http"
	"strings"

	"github.com/banshee-data/listeria.report/internal/httputil"
	"github.com/banshee-data/listeria.report/internal/samples"
	"github.com/banshee-data/listeria.report/internal/stats"
)

type summaryResponse struct {
	Group     string          `json:"group"`
	Totals    stats.Totals    `json:"totals"`
	Summaries []stats.Summary `json:"summaries"`
}

// filterFromQuery reads the optional before_during and fresh_smoked
// equality filters. fresh_smoked also accepts the map slugs.
func filterFromQuery(r *http.Request) samples.Filter {
	q := r.URL.Query()
	f := samples.Filter{
		BeforeDuring: strings.ToUpper(q.Get("before_during")),
		FreshSmoked:  q.Get("fresh_smoked"),
	}
	if dept, ok := samples.FreshSmokedForSlug(f.FreshSmoked); ok {
		f.FreshSmoked = dept
	}
	return f
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	key, err := stats.ParseGroupKey(r.URL.Query().Get("group"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	records, err := s.loadRecords(r.Context(), "api_summary", filterFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	summaries, err := stats.Summarize(records, key)
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []stats.Summary{}
	}
	httputil.WriteJSONOK(w, summaryResponse{
		Group:     key.String(),
		Totals:    stats.ComputeTotals(records),
		Summaries: summaries,
	})
}

// handlePositivity serves the data behind a facility map:
// /api/positivity?department=fresh|smoked[&date=YYYY-MM-DD][&window_days=N].
func (s *Server) handlePositivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	slug := r.URL.Query().Get("department")
	if slug == "" {
		httputil.BadRequest(w, "department is required (fresh or smoked)")
		return
	}
	view, err := s.mapView(r, slug)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, view)
}
