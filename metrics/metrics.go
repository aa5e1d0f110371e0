// Package metrics exposes gateway and archive cache metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/archive-gateway/cache"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

const namespace = "archive_gateway"

// Metrics holds every collector of the gateway on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	tracked    prometheus.Gauge
	admissions *prometheus.CounterVec
	population *prometheus.CounterVec
	evictions  *prometheus.CounterVec

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var _ cache.Recorder = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_archives",
			Help:      "Number of archives currently tracked by the manager.",
		}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Archive accesses by admission result.",
		}, []string{"result"}),
		population: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "population_total",
			Help:      "Admitted accesses by population outcome.",
		}, []string{"outcome"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Released archives by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		m.tracked, m.admissions, m.population, m.evictions, m.requests, m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Admission(result string) {
	m.admissions.WithLabelValues(result).Inc()
}

func (m *Metrics) Population(outcome cache.Outcome) {
	m.population.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) Eviction(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.evictions.WithLabelValues(result).Inc()
}

func (m *Metrics) Tracked(n int) {
	m.tracked.Set(float64(n))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Server serves /metrics on its own listener.
type Server struct {
	srv  *http.Server
	addr string
}

func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
}

func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", s.addr))
	return nil
}

// Addr is the address the server listens on once started.
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
