package monitoring

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dashboard's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	recordsLoaded   *prometheus.CounterVec
	loginsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listeria_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listeria_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"route"},
	)
	m.recordsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listeria_records_loaded_total",
			Help: "Total number of test records read from the record store",
		},
		[]string{"view"},
	)
	m.loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listeria_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // outcome: success, failure, error
	)

	for _, c := range []prometheus.Collector{m.requestsTotal, m.requestDuration, m.recordsLoaded, m.loginsTotal} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordsLoaded counts records read for a view.
func (m *Metrics) RecordsLoaded(view string, n int) {
	if m == nil {
		return
	}
	m.recordsLoaded.WithLabelValues(view).Add(float64(n))
}

// Login counts a login attempt.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(outcome).Inc()
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}
