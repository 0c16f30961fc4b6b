// Package observability exports session traffic as Prometheus metrics and
// OpenTelemetry traces. Nothing here touches global state: collectors are
// registered with the registerer in MetricsConfig and spans come from the
// provider built by NewTracing.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ajitpratap0/session-sdk-go/pkg/client"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/server"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport"
)

// MetricsConfig configures Metrics.
type MetricsConfig struct {
	// Namespace prefixes every metric name. Defaults to "session".
	Namespace string
	Subsystem string

	// Buckets for the latency histograms, in seconds.
	Buckets []float64

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Registry receives the collectors. Defaults to a fresh registry,
	// available from Metrics.Gatherer.
	Registry *prometheus.Registry
}

// Metrics holds the Prometheus collectors for requests, events, transport
// operations, server connections and session status.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	events          *prometheus.CounterVec
	transportOps    *prometheus.CounterVec
	transportTime   *prometheus.HistogramVec
	connected       prometheus.Gauge
	disconnects     *prometheus.CounterVec
	sessionStatus   *prometheus.GaugeVec
	sessionErrors   *prometheus.CounterVec
}

var (
	_ transport.Recorder        = (*Metrics)(nil)
	_ server.ConnectionObserver = (*Metrics)(nil)
)

var sessionStatuses = []client.Status{
	client.StatusDisconnected,
	client.StatusConnecting,
	client.StatusConnected,
	client.StatusReconnecting,
	client.StatusError,
}

// NewMetrics creates the collectors and registers them.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "session"
	}
	if cfg.Buckets == nil {
		cfg.Buckets = prometheus.ExponentialBuckets(0.0005, 4, 10)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	m := &Metrics{registry: cfg.Registry}
	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "requests_total",
		Help:        "Requests processed by the pipeline, by type and outcome.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"type", "outcome"})
	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "request_duration_seconds",
		Help:        "Time spent processing requests, by type.",
		Buckets:     cfg.Buckets,
		ConstLabels: cfg.ConstLabels,
	}, []string{"type"})
	m.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "events_total",
		Help:        "Events processed by the pipeline, by type and outcome.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"type", "outcome"})
	m.transportOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "transport_operations_total",
		Help:        "Outbound transport operations, by operation and outcome.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"operation", "outcome"})
	m.transportTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "transport_operation_duration_seconds",
		Help:        "Duration of outbound transport operations.",
		Buckets:     cfg.Buckets,
		ConstLabels: cfg.ConstLabels,
	}, []string{"operation"})
	m.connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "connected_clients",
		Help:        "Clients currently registered with the server.",
		ConstLabels: cfg.ConstLabels,
	})
	m.disconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "client_disconnects_total",
		Help:        "Clients removed from the server registry, by reason.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"reason"})
	m.sessionStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "session_status",
		Help:        "1 for the current status of each watched session.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"session", "status"})
	m.sessionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "session_errors_total",
		Help:        "Faults reported to session error listeners, by code.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"code"})

	for _, c := range []prometheus.Collector{
		m.requests, m.requestDuration, m.events, m.transportOps, m.transportTime,
		m.connected, m.disconnects, m.sessionStatus, m.sessionErrors,
	} {
		if err := cfg.Registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Gatherer returns the registry the collectors live in.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTransport implements transport.Recorder.
func (m *Metrics) ObserveTransport(operation, _ string, outcome string, d time.Duration) {
	m.transportOps.WithLabelValues(operation, outcome).Inc()
	m.transportTime.WithLabelValues(operation).Observe(d.Seconds())
}

// ClientConnected implements server.ConnectionObserver.
func (m *Metrics) ClientConnected(_ string, total int) {
	m.connected.Set(float64(total))
}

// ClientDisconnected implements server.ConnectionObserver.
func (m *Metrics) ClientDisconnected(_ string, reason string, total int) {
	m.connected.Set(float64(total))
	m.disconnects.WithLabelValues(reason).Inc()
}

// WatchSession tracks the status and faults of s. The returned function
// stops watching and removes the session's status series.
func (m *Metrics) WatchSession(s *client.Session) func() {
	id := s.ClientID()
	m.setStatus(id, s.Status())
	offStatus := s.OnStatusChange(func(status, _ client.Status) {
		m.setStatus(id, status)
	})
	offError := s.OnError(func(err error) {
		m.sessionErrors.WithLabelValues(sdkerrors.Wrap(err).Code()).Inc()
	})
	return func() {
		offStatus()
		offError()
		for _, status := range sessionStatuses {
			m.sessionStatus.DeleteLabelValues(id, string(status))
		}
	}
}

func (m *Metrics) setStatus(session string, current client.Status) {
	for _, status := range sessionStatuses {
		v := 0.0
		if status == current {
			v = 1
		}
		m.sessionStatus.WithLabelValues(session, string(status)).Set(v)
	}
}
