package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry      *prometheus.Registry
	escrowOps     *prometheus.CounterVec
	paymentsTotal *prometheus.CounterVec
	activePollers prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "splitrails_escrow_operations_total",
		Help: "Escrow ledger operations by operation and outcome",
	}, []string{"op", "status"})

	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "splitrails_payments_total",
		Help: "Share payment submissions by outcome",
	}, []string{"status"})

	pollers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "splitrails_active_pollers",
		Help: "Status pollers currently watching open escrow bills",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(ops, payments, pollers)

	return &metricsRegistry{
		registry:      r,
		escrowOps:     ops,
		paymentsTotal: payments,
		activePollers: pollers,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incOp(op, status string) {
	m.escrowOps.WithLabelValues(op, status).Inc()
}

func (m *metricsRegistry) incPayment(status string) {
	m.paymentsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) pollerStarted() {
	m.activePollers.Inc()
}

func (m *metricsRegistry) pollerStopped() {
	m.activePollers.Dec()
}
