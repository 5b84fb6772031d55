package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the HTTP surface
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inflight        prometheus.Gauge
	loginsTotal     *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry. stats may be nil;
// otherwise connection pool gauges are exported from it.
func NewMetrics(stats func() *pgxpool.Stat) (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests currently being served",
		}),
		loginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
	}

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.inflight,
		m.loginsTotal,
		prometheus.NewGoCollector(),
	}
	if stats != nil {
		collectors = append(collectors, newPoolCollector(stats))
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry for GET /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveLogin counts a login outcome
func (m *Metrics) ObserveLogin(outcome string) {
	m.loginsTotal.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latency labelled by the matched
// chi route pattern, so path parameters do not create new series
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inflight.Inc()
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			m.inflight.Dec()

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(wrapped, r)
	})
}

// poolCollector exports pgxpool connection gauges
type poolCollector struct {
	stats func() *pgxpool.Stat

	acquiredDesc *prometheus.Desc
	idleDesc     *prometheus.Desc
	totalDesc    *prometheus.Desc
}

func newPoolCollector(stats func() *pgxpool.Stat) *poolCollector {
	return &poolCollector{
		stats:        stats,
		acquiredDesc: prometheus.NewDesc("pgxpool_acquired_conns", "Connections currently acquired", nil, nil),
		idleDesc:     prometheus.NewDesc("pgxpool_idle_conns", "Idle connections", nil, nil),
		totalDesc:    prometheus.NewDesc("pgxpool_total_conns", "Total connections in the pool", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.idleDesc
	ch <- c.totalDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.stats()
	if stat == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
}
