// Package metrics exposes the Prometheus collectors of the server on a
// private registry.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "folioguard"

type Metrics struct {
	registry *prometheus.Registry

	securityEvents *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	activeSessions     prometheus.Gauge
	activeUsers        prometheus.Gauge
	rememberMeSessions prometheus.Gauge
	expiringSessions   prometheus.Gauge
	avgSessionDuration prometheus.Gauge
	healthy            prometheus.Gauge

	maintenanceRuns *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security events recorded, by type.",
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		activeSessions:     gauge("sessions", "active", "Active sessions."),
		activeUsers:        gauge("sessions", "active_users", "Users with at least one active session."),
		rememberMeSessions: gauge("sessions", "remember_me", "Active remember-me sessions."),
		expiringSessions:   gauge("sessions", "expiring_24h", "Active sessions expiring within 24 hours."),
		avgSessionDuration: gauge("sessions", "average_duration_seconds", "Average lifetime of active sessions."),
		healthy:            gauge("sessions", "healthy", "1 when the last session health check passed."),
		maintenanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "runs_total",
			Help:      "Maintenance runs, by outcome.",
		}, []string{"outcome"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "sessions_deleted_total",
			Help:      "Expired sessions deleted by maintenance.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.securityEvents, m.httpRequests, m.httpDuration,
		m.activeSessions, m.activeUsers, m.rememberMeSessions, m.expiringSessions,
		m.avgSessionDuration, m.healthy,
		m.maintenanceRuns, m.sessionsCleaned,
	)
	return m
}

func gauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// Publish counts a stored security event.
func (m *Metrics) Publish(_ context.Context, e *models.SecurityEvent) error {
	m.securityEvents.WithLabelValues(e.EventType).Inc()
	return nil
}

// ObserveHealth records the outcome of a session health check.
func (m *Metrics) ObserveHealth(st models.SessionStats, healthy bool) {
	m.activeSessions.Set(float64(st.TotalActiveSessions))
	m.activeUsers.Set(float64(st.ActiveUsers))
	m.rememberMeSessions.Set(float64(st.RememberMeSessions))
	m.expiringSessions.Set(float64(st.ExpiringWithin24h))
	m.avgSessionDuration.Set(st.AverageDurationSeconds)
	if healthy {
		m.healthy.Set(1)
	} else {
		m.healthy.Set(0)
	}
}

// ObserveMaintenance records one maintenance run.
func (m *Metrics) ObserveMaintenance(deleted int64, err error) {
	m.sessionsCleaned.Add(float64(deleted))
	outcome := "success"
	if err != nil {
		outcome = "partial_failure"
	}
	m.maintenanceRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
