// Package metrics exposes Prometheus counters for the fleet. A nil *Metrics
// is valid and records nothing.
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

const namespace = "botfleet"

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	authAttempts       *prometheus.CounterVec
	instances          *prometheus.GaugeVec
	inventoryRefreshes *prometheus.CounterVec
	offers             *prometheus.CounterVec
	droppedEvents      *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		authAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by outcome",
		}, []string{"outcome"}),
		instances: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "instances",
			Help:      "Account instances by lifecycle state",
		}, []string{"state"}),
		inventoryRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "refreshes_total",
			Help:      "Inventory refreshes by source",
		}, []string{"source"}),
		offers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "offers_total",
			Help:      "Exchange offers by resulting status",
		}, []string{"status"}),
		droppedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber buffer was full",
		}, []string{"subscriber"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AuthAttempt counts one authentication outcome (online, credential, rate_limited, ...).
func (m *Metrics) AuthAttempt(outcome string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(outcome).Inc()
}

// StateChanged moves one instance from one state gauge to another. Empty
// states are skipped.
func (m *Metrics) StateChanged(from, to string) {
	if m == nil || from == to {
		return
	}
	if from != "" {
		m.instances.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.instances.WithLabelValues(to).Inc()
	}
}

// InventoryRefresh counts one refresh served from cache, platform or ending in error.
func (m *Metrics) InventoryRefresh(source string) {
	if m == nil {
		return
	}
	m.inventoryRefreshes.WithLabelValues(source).Inc()
}

// Offer counts one exchange proposal by status.
func (m *Metrics) Offer(status string) {
	if m == nil {
		return
	}
	m.offers.WithLabelValues(status).Inc()
}

// EventDropped counts one event lost by a subscriber.
func (m *Metrics) EventDropped(subscriber string) {
	if m == nil {
		return
	}
	m.droppedEvents.WithLabelValues(subscriber).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
