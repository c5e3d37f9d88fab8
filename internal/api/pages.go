package api

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/render"

	"github.com/banshee-data/listeria.report/internal/auth"
	"github.com/banshee-data/listeria.report/internal/httputil"
	"github.com/banshee-data/listeria.report/internal/monitoring"
	"github.com/banshee-data/listeria.report/internal/stats"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// defaultAssetsHost serves echarts.min.js when no assets_host is configured.
const defaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// invalidCredentials is shown for every rejected login; it never says which
// half of the credentials was wrong.
const invalidCredentials = "Invalid username or password"

type loginPage struct {
	Error    string
	Username string
}

type kpi struct {
	Total    int
	Detected int
	Rate     string
}

func newKPI(t stats.Totals) *kpi {
	return &kpi{Total: t.Total, Detected: t.Detected, Rate: fmt.Sprintf("%.2f%%", t.DetectionRatePercent)}
}

type dateSelector struct {
	Action   string
	Dates    []string
	Selected string
}

type chartSnippet struct {
	Element template.HTML
	Script  template.HTML
}

type dashboardPage struct {
	Title      string
	AssetsHost string
	User       string
	KPI        *kpi
	Selector   *dateSelector
	Notes      []string
	Charts     []chartSnippet
	ReadAt     string
}

type snippetRenderer interface {
	RenderSnippet() render.ChartSnippet
}

func snippets(cs ...snippetRenderer) []chartSnippet {
	out := make([]chartSnippet, 0, len(cs))
	for _, c := range cs {
		sn := c.RenderSnippet()
		out = append(out, chartSnippet{
			Element: template.HTML(sn.Element),
			Script:  template.HTML(sn.Script),
		})
	}
	return out
}

func (s *Server) assetsHost() string {
	if s.cfg.AssetsHost != "" {
		return s.cfg.AssetsHost
	}
	return defaultAssetsHost
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		monitoring.Logf("failed to render %s: %v", name, err)
		httputil.InternalServerError(w, "failed to render page")
		return
	}
	httputil.WriteHTML(w, status, &buf)
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, page dashboardPage) {
	page.AssetsHost = s.assetsHost()
	page.ReadAt = s.clock.Now().UTC().Format("2006-01-02 15:04 MST")
	if sess, ok := auth.FromContext(r.Context()); ok {
		page.User = sess.Username
	}
	s.renderPage(w, http.StatusOK, "dashboard.html", page)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := s.sessions.Get(r); ok {
			http.Redirect(w, r, defaultPage, http.StatusSeeOther)
			return
		}
		s.renderPage(w, http.StatusOK, "login.html", loginPage{})
	case http.MethodPost:
		s.login(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "invalid form data")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	user, err := s.authn.Authenticate(r.Context(), username, password)
	if err != nil {
		s.metrics.Login("error")
		monitoring.Logf("login for %q failed: %v", username, err)
		s.renderPage(w, http.StatusInternalServerError, "login.html", loginPage{
			Error:    "Sign-in is unavailable, try again later",
			Username: username,
		})
		return
	}
	if user == nil {
		s.metrics.Login("failure")
		s.renderPage(w, http.StatusUnauthorized, "login.html", loginPage{Error: invalidCredentials, Username: username})
		return
	}

	if _, err := s.sessions.Create(w, r, user); err != nil {
		s.metrics.Login("error")
		monitoring.Logf("failed to create session for %q: %v", username, err)
		httputil.InternalServerError(w, "failed to create session")
		return
	}
	s.metrics.Login("success")
	http.Redirect(w, r, defaultPage, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.sessions.Destroy(w, r); err != nil {
		monitoring.Logf("logout: %v", err)
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// requestError carries the status a handler should answer with.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return &requestError{status: http.StatusNotFound, msg: fmt.Sprintf(format, args...)}
}

// writeError answers with the status of a requestError, 422 for data that
// cannot be aggregated and 500 for anything else.
func writeError(w http.ResponseWriter, err error) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		httputil.WriteJSONError(w, re.status, re.msg)
	case stats.IsParseError(err):
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		monitoring.Logf("request failed: %v", err)
		httputil.InternalServerError(w, "internal server error")
	}
}
