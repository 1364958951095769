package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/dialogd/internal/orchestrator"
)

// Metrics holds the server's Prometheus metrics, exposed on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	turnsTotal        *prometheus.CounterVec
	budgetDeniedTotal prometheus.Counter
	turnCostUSD       prometheus.Histogram
}

// NewMetrics registers the dialogd metrics on registry. A nil registry
// gets a fresh private one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dialogd_http_requests_total",
			Help: "Total HTTP requests by method, endpoint and status code.",
		}, []string{"method", "endpoint", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dialogd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and endpoint.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "endpoint"}),
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dialogd_turns_total",
			Help: "Completed conversation turns by outcome (ok, degraded, budget_denied).",
		}, []string{"outcome"}),
		budgetDeniedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dialogd_budget_denied_total",
			Help: "Turns denied by the per-call budget gate.",
		}),
		turnCostUSD: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dialogd_turn_cost_usd",
			Help:    "Estimated provider cost per turn in USD.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTurn records the outcome of one conversation turn.
func (m *Metrics) ObserveTurn(result *orchestrator.TurnResult) {
	if result == nil {
		return
	}
	outcome := "ok"
	switch {
	case result.LimitedByBudget:
		outcome = "budget_denied"
		m.budgetDeniedTotal.Inc()
	case !result.Usage.Success:
		outcome = "degraded"
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnCostUSD.Observe(result.Usage.EstimatedCostUSD)
}

// Middleware returns an Echo middleware recording request counts and
// latency. The route template is used as the endpoint label to keep
// cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "/"
			}
			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)

			m.requestsTotal.WithLabelValues(method, endpoint, status).Inc()
			m.requestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
