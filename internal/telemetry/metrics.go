// Package telemetry exposes Prometheus metrics for the relay.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_relay"

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec
	sanitized     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Relayed chat requests by outcome.",
		}, []string{"outcome"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_request_duration_seconds",
			Help:      "Latency of calls to the remote agent.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"status"}),
		sanitized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sanitized_total",
			Help:      "Texts altered by sanitization, by direction.",
		}, []string{"direction"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.agentDuration,
		m.sanitized,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest counts one finished request. outcome is "ok" or an error code.
func (m *Metrics) ObserveRequest(outcome string) {
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAgentCall(d time.Duration, ok bool) {
	status := "error"
	if ok {
		status = "ok"
	}
	m.agentDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveSanitized counts a text that sanitization changed. direction is
// "input" or "response".
func (m *Metrics) ObserveSanitized(direction string) {
	m.sanitized.WithLabelValues(direction).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
