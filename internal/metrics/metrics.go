package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	refreshes     *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	candidates    *prometheus.GaugeVec
	records       *prometheus.GaugeVec
	skipped       *prometheus.CounterVec
	lastFetch     *prometheus.GaugeVec
	announced     *prometheus.CounterVec
	notifyErrors  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedwatch",
		Name:      "refreshes_total",
		Help:      "Feed refreshes by outcome (ok, fallback, error)",
	}, []string{"feed", "outcome"})
	m.fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "feedwatch",
		Name:      "fetch_duration_seconds",
		Help:      "Time spent fetching one document",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 240},
	}, []string{"feed", "mode"})
	m.fetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedwatch",
		Name:      "fetch_errors_total",
		Help:      "Failed fetches by mode",
	}, []string{"feed", "mode"})
	m.candidates = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "feedwatch",
		Name:      "candidates",
		Help:      "Candidate elements located in the last document",
	}, []string{"feed", "mode"})
	m.records = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "feedwatch",
		Name:      "snapshot_records",
		Help:      "Records in the current snapshot, zero when it is a fallback",
	}, []string{"feed"})
	m.skipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedwatch",
		Name:      "candidates_skipped_total",
		Help:      "Candidates that produced no record, by reason (rejected, malformed)",
	}, []string{"feed", "reason"})
	m.lastFetch = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "feedwatch",
		Name:      "last_fetch_timestamp_seconds",
		Help:      "Unix timestamp of the last completed refresh",
	}, []string{"feed"})
	m.announced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedwatch",
		Name:      "announced_total",
		Help:      "Records announced to chats",
	}, []string{"feed"})
	m.notifyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feedwatch",
		Name:      "notify_errors_total",
		Help:      "Failed chat deliveries",
	})

	m.registry.MustRegister(
		m.refreshes, m.fetchDuration, m.fetchErrors, m.candidates, m.records,
		m.skipped, m.lastFetch, m.announced, m.notifyErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveFetch(feed, mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(feed, mode).Observe(d.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(feed, mode).Inc()
	}
}

func (m *Metrics) ObserveExtract(feed, mode string, candidates, rejected, malformed int) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(feed, mode).Set(float64(candidates))
	m.skipped.WithLabelValues(feed, "rejected").Add(float64(rejected))
	m.skipped.WithLabelValues(feed, "malformed").Add(float64(malformed))
}

func (m *Metrics) ObserveRefresh(feed, outcome string, records int, at time.Time) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(feed, outcome).Inc()
	m.records.WithLabelValues(feed).Set(float64(records))
	m.lastFetch.WithLabelValues(feed).Set(float64(at.Unix()))
}

func (m *Metrics) Announced(feed string, n int) {
	if m == nil {
		return
	}
	m.announced.WithLabelValues(feed).Add(float64(n))
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyErrors.Inc()
}

// Server exposes /metrics, /healthz and a JSON /status document.
type Server struct {
	server *http.Server
}

// NewServer serves m on addr. status may be nil.
func NewServer(addr string, m *Metrics, status func() any) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if status != nil {
		mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(status())
		})
	}
	return &Server{server: &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}}
}

func (s *Server) Handler() http.Handler              { return s.server.Handler }
func (s *Server) Serve() error                       { return s.server.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }
