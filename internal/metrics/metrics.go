package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics owns the gateway's Prometheus registry and collectors.
type Metrics struct {
	registry *prometheus.Registry

	gatewayHealth       prometheus.Gauge
	healthCheckDuration prometheus.Gauge
	serviceHealth       *prometheus.GaugeVec
	breakerState        *prometheus.GaugeVec

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateLimitedTotal prometheus.Counter
}

// New creates a registry with all gateway collectors registered, plus the
// standard Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gatewayHealth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_health_status",
			Help: "Gateway aggregate health (1 = ok, 0 = degraded)",
		}),
		healthCheckDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_health_check_duration_ms",
			Help: "Duration of the last health check in milliseconds",
		}),
		serviceHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_service_health_status",
			Help: "Per-service health (1 = up, 0 = down)",
		}, []string{"service"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Circuit breaker state per service (0 = closed, 1 = open, 2 = half-open)",
		}, []string{"service"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Dispatched requests by service and status code",
		}, []string{"service", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Dispatch latency by service",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}

	m.registry.MustRegister(
		m.gatewayHealth,
		m.healthCheckDuration,
		m.serviceHealth,
		m.breakerState,
		m.requestsTotal,
		m.requestDuration,
		m.rateLimitedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the scrape endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetGatewayHealth records the aggregate gateway health.
func (m *Metrics) SetGatewayHealth(ok bool) {
	m.gatewayHealth.Set(boolTo01(ok))
}

// SetHealthCheckDuration records how long the last health check took.
func (m *Metrics) SetHealthCheckDuration(ms float64) {
	m.healthCheckDuration.Set(ms)
}

// SetServiceHealth records one service's probe outcome.
func (m *Metrics) SetServiceHealth(service string, up bool) {
	m.serviceHealth.WithLabelValues(service).Set(boolTo01(up))
}

// RemoveService drops all per-service series, typically on route deletion.
func (m *Metrics) RemoveService(service string) {
	m.serviceHealth.DeleteLabelValues(service)
	m.breakerState.DeleteLabelValues(service)
}

// SetBreakerState records a circuit breaker's current state.
func (m *Metrics) SetBreakerState(service string, state float64) {
	m.breakerState.WithLabelValues(service).Set(state)
}

// ObserveRequest records one dispatched request.
func (m *Metrics) ObserveRequest(service, code string, seconds float64) {
	m.requestsTotal.WithLabelValues(service, code).Inc()
	m.requestDuration.WithLabelValues(service).Observe(seconds)
}

// IncRateLimited counts a rate-limited rejection.
func (m *Metrics) IncRateLimited() {
	m.rateLimitedTotal.Inc()
}

// GatewayHealthValue reads the aggregate health gauge.
func (m *Metrics) GatewayHealthValue() float64 {
	return GaugeValue(m.gatewayHealth)
}

// ServiceHealthValue reads one service's health gauge.
func (m *Metrics) ServiceHealthValue(service string) float64 {
	return GaugeValue(m.serviceHealth.WithLabelValues(service))
}

// BreakerStateValue reads one service's breaker state gauge.
func (m *Metrics) BreakerStateValue(service string) float64 {
	return GaugeValue(m.breakerState.WithLabelValues(service))
}

// RateLimitedValue reads the rate-limited rejection counter.
func (m *Metrics) RateLimitedValue() float64 {
	return CounterValue(m.rateLimitedTotal)
}

func boolTo01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// GaugeValue reads a gauge's current value.
func GaugeValue(g prometheus.Gauge) float64 {
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		return 0
	}
	return metric.GetGauge().GetValue()
}

// CounterValue reads a counter's current value.
func CounterValue(c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
