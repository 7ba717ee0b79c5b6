// Package metrics holds prometheus collectors of the service
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Settlement
	UnlockedTotal        prometheus.Counter
	UnlockFailedTotal    prometheus.Counter
	OrdersCancelledTotal prometheus.Counter
	SettlementRun        prometheus.Histogram
}

// Collectors are registered in own registry, so several instances may live in one process
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_requests_latency_seconds",
				Help:    "Latency of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		UnlockedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_earnings_unlocked_total",
			Help: "Order items whose instructor earnings were unlocked",
		}),
		UnlockFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_earnings_unlock_failed_total",
			Help: "Order items failed to unlock",
		}),
		OrdersCancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_orders_cancelled_total",
			Help: "Abandoned pending orders cancelled by settlement",
		}),
		SettlementRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_run_duration_seconds",
			Help:    "Duration of settlement runs",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.UnlockedTotal,
		m.UnlockFailedTotal,
		m.OrdersCancelledTotal,
		m.SettlementRun,
	)

	return m
}

// Handler for /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
