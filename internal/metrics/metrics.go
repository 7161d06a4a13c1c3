// Package metrics exposes Prometheus collectors for tail sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the viewer's collectors on a private registry so tests and
// multiple instances never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions prometheus.Gauge
	Events         *prometheus.CounterVec
	BytesStreamed  prometheus.Counter
	Sessions       *prometheus.CounterVec
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logviewer_active_sessions",
			Help: "Number of tail sessions currently streaming.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logviewer_events_total",
			Help: "Events delivered to viewers, by event name.",
		}, []string{"event"}),
		BytesStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logviewer_bytes_streamed_total",
			Help: "File bytes delivered to viewers in init, update and reload events.",
		}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logviewer_sessions_total",
			Help: "Finished tail sessions, by termination reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		m.ActiveSessions,
		m.Events,
		m.BytesStreamed,
		m.Sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SessionStarted increments the active gauge.
func (m *Metrics) SessionStarted() { m.ActiveSessions.Inc() }

// SessionEnded decrements the active gauge and counts the reason.
func (m *Metrics) SessionEnded(reason string) {
	m.ActiveSessions.Dec()
	m.Sessions.WithLabelValues(reason).Inc()
}

// EventDelivered counts one accepted event and its payload size.
func (m *Metrics) EventDelivered(name string, bytes int) {
	m.Events.WithLabelValues(name).Inc()
	if bytes > 0 {
		m.BytesStreamed.Add(float64(bytes))
	}
}
