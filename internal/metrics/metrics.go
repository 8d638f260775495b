// Package metrics holds the Prometheus collectors for the trade service.
package metrics

import (
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements trade.Observer and instruments HTTP handlers.
type Metrics struct {
	reg prometheus.Gatherer

	Transitions      *prometheus.CounterVec
	LevelUps         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// New registers every collector on reg. pool may be nil.
func New(reg *prometheus.Registry, pool *pgxpool.Pool) *Metrics {
	m := &Metrics{
		reg: reg,
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillswap_trade_transitions_total",
				Help: "Trade lifecycle operations, by operation and outcome code.",
			},
			[]string{"op", "outcome"},
		),
		LevelUps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillswap_level_ups_total",
				Help: "Level-ups caused by completion awards, by the level reached.",
			},
			[]string{"level"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skillswap_api_request_duration_seconds",
				Help:    "HTTP request duration in seconds, by route, method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "skillswap_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		),
	}
	reg.MustRegister(m.Transitions, m.LevelUps, m.RequestDuration, m.RequestsInFlight)

	if pool != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "skillswap_db_connection_pool_active",
					Help: "Number of active database connections.",
				},
				func() float64 { return float64(pool.Stat().AcquiredConns()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "skillswap_db_connection_pool_idle",
					Help: "Number of idle database connections.",
				},
				func() float64 { return float64(pool.Stat().IdleConns()) },
			),
		)
	}
	return m
}

func (m *Metrics) ObserveTransition(op, outcome string) {
	m.Transitions.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveLevelUp(level int) {
	m.LevelUps.WithLabelValues(strconv.Itoa(level)).Inc()
}

// Middleware records request duration and in-flight count. The route
// template is used as label so ids do not explode cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			m.RequestDuration.WithLabelValues(c.Path(), c.Request().Method, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
}
