package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	rateLimited    *prometheus.CounterVec
	approvals      *prometheus.CounterVec
	securityEvents *prometheus.CounterVec
	wsClients      prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by a rate limiter",
		}, []string{"limiter"}),
		approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "time_entry_approvals_total",
			Help: "Approval attempts by outcome",
		}, []string{"outcome"}),
		securityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "security_events_total",
			Help: "Security events by type",
		}, []string{"type"}),
		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Connected websocket clients",
		}),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRateLimited(limiter string) {
	m.rateLimited.WithLabelValues(limiter).Inc()
}

// ObserveApproval counts approval outcomes: "approved" or an error kind.
func (m *Metrics) ObserveApproval(outcome string) {
	m.approvals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSecurityEvent(eventType string) {
	m.securityEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SetWebsocketClients(n int) {
	m.wsClients.Set(float64(n))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
