// Package metrics exposes Prometheus collectors for card commands, HTTP
// traffic and store health.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the service. It implements
// engine.Recorder.
type Metrics struct {
	gatherer prometheus.Gatherer

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	loginsTotal     *prometheus.CounterVec
	storeUp         prometheus.Gauge
	auditPruned     prometheus.Counter
}

// New registers the collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		commandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostel_card_commands_total",
				Help: "Card commands by action and result class.",
			},
			[]string{"action", "result"},
		),
		commandDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostel_card_command_duration_seconds",
				Help:    "Card command latency including the store round trip.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostel_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostel_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		loginsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostel_logins_total",
				Help: "Login attempts by outcome.",
			},
			[]string{"outcome"},
		),
		storeUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "hostel_store_up",
			Help: "1 when the last store probe succeeded.",
		}),
		auditPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "hostel_audit_pruned_total",
			Help: "Audit events removed by retention.",
		}),
	}
}

func (m *Metrics) ObserveCommand(action, result string, elapsed time.Duration) {
	m.commandsTotal.WithLabelValues(action, result).Inc()
	m.commandDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveLogin counts a login attempt; outcome is "ok", "rejected", "limited"
// or "error".
func (m *Metrics) ObserveLogin(outcome string) {
	m.loginsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetStoreUp(up bool) {
	if up {
		m.storeUp.Set(1)
		return
	}
	m.storeUp.Set(0)
}

func (m *Metrics) AddAuditPruned(n int64) {
	if n > 0 {
		m.auditPruned.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
