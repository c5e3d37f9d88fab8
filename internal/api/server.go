package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/listeria.report/internal/auth"
	"github.com/banshee-data/listeria.report/internal/config"
	"github.com/banshee-data/listeria.report/internal/httputil"
	"github.com/banshee-data/listeria.report/internal/monitoring"
	"github.com/banshee-data/listeria.report/internal/samples"
	"github.com/banshee-data/listeria.report/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	loginPath   = "/login"
	defaultPage = "/trend"
)

// Server serves the dashboard pages and JSON API. Every request reads the
// record store afresh; nothing is cached between requests.
type Server struct {
	store    samples.Store
	authn    auth.Authenticator
	sessions *auth.SessionManager
	metrics  *monitoring.Metrics
	cfg      *config.Config
	clock    timeutil.Clock
}

// NewServer wires the dashboard. metrics may be nil; a nil cfg uses the
// defaults and a nil clock uses wall time.
func NewServer(store samples.Store, authn auth.Authenticator, sessions *auth.SessionManager, metrics *monitoring.Metrics, cfg *config.Config, clock timeutil.Clock) *Server {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		store:    store,
		authn:    authn,
		sessions: sessions,
		metrics:  metrics,
		cfg:      cfg,
		clock:    clock,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// instrument records request count and latency under a fixed route label so
// query strings and map slugs do not blow up label cardinality.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		s.metrics.ObserveRequest(route, lrw.statusCode, time.Since(start))
	})
}

func (s *Server) protected(route string, h http.HandlerFunc) http.Handler {
	return s.instrument(route, s.sessions.RequireSession(loginPath, h))
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", s.instrument("root", http.HandlerFunc(s.handleRoot)))
	mux.Handle(loginPath, s.instrument("login", http.HandlerFunc(s.handleLogin)))
	mux.Handle("/logout", s.instrument("logout", http.HandlerFunc(s.handleLogout)))

	mux.Handle(defaultPage, s.protected("trend", s.handleTrendPage))
	mux.Handle("/map/", s.protected("map", s.handleMapPage))
	mux.Handle("/floorplan/", s.protected("floorplan", s.handleFloorPlan))

	mux.Handle("/api/summary", s.protected("api_summary", s.handleSummary))
	mux.Handle("/api/positivity", s.protected("api_positivity", s.handlePositivity))
	mux.Handle("/api/trend", s.protected("api_trend", s.handleTrend))
	mux.Handle("/api/trend.png", s.protected("api_trend_png", s.handleTrendPNG))

	if s.metrics != nil {
		s.metrics.RegisterHandlers(mux)
	}
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "page not found")
		return
	}
	if _, ok := s.sessions.Get(r); ok {
		http.Redirect(w, r, defaultPage, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// loadRecords performs the request's single bulk read of the record store.
func (s *Server) loadRecords(ctx context.Context, view string, f samples.Filter) ([]samples.Record, error) {
	records, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", view, err)
	}
	s.metrics.RecordsLoaded(view, len(records))
	return records, nil
}
