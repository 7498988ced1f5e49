package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus instruments for the pipeline and connection
// layers. Each instance owns its registry, so two servers in one process do
// not collide.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	messagesTotal     *prometheus.CounterVec
	queueSize         prometheus.Gauge
	queueRejected     *prometheus.CounterVec
	activeProcessors  prometheus.Gauge
	processingLatency prometheus.Histogram

	// Connection metrics
	clientsActive    prometheus.Gauge
	clientsTotal     prometheus.Counter
	stateTransitions *prometheus.CounterVec
	offlineQueueSize prometheus.Gauge
	heartbeatsSent   prometheus.Counter
}

// New creates a metrics set backed by a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: registry,

		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "statuspulse_messages_total",
			Help: "Messages reaching a terminal status, by type and status",
		}, []string{"type", "status"}),
		queueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "statuspulse_queue_size",
			Help: "Messages currently waiting in the priority queue",
		}),
		queueRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "statuspulse_queue_rejected_total",
			Help: "Submissions refused by the queue, by reason",
		}, []string{"reason"}),
		activeProcessors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "statuspulse_active_processors",
			Help: "Handlers currently executing",
		}),
		processingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "statuspulse_processing_latency_seconds",
			Help:    "Handler execution latency",
			Buckets: prometheus.DefBuckets,
		}),

		clientsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "statuspulse_clients_active",
			Help: "Currently connected websocket clients",
		}),
		clientsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "statuspulse_clients_total",
			Help: "Total websocket clients accepted",
		}),
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "statuspulse_connection_transitions_total",
			Help: "Connection state transitions, by target state",
		}, []string{"state"}),
		offlineQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "statuspulse_offline_queue_size",
			Help: "Messages buffered for offline clients",
		}),
		heartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "statuspulse_heartbeats_sent_total",
			Help: "Heartbeat pings sent to clients",
		}),
	}
}

// ObserveMessage records one message reaching a terminal status.
func (m *Metrics) ObserveMessage(msgType, status string, latency time.Duration) {
	m.messagesTotal.WithLabelValues(msgType, status).Inc()
	m.processingLatency.Observe(latency.Seconds())
}

// ObserveRejection records a refused submission.
func (m *Metrics) ObserveRejection(reason string) {
	m.queueRejected.WithLabelValues(reason).Inc()
}

// SetQueueSize updates the waiting-message gauge.
func (m *Metrics) SetQueueSize(n int) {
	m.queueSize.Set(float64(n))
}

// SetActiveProcessors updates the executing-handler gauge.
func (m *Metrics) SetActiveProcessors(n int) {
	m.activeProcessors.Set(float64(n))
}

// ClientConnected records an accepted websocket client.
func (m *Metrics) ClientConnected() {
	m.clientsTotal.Inc()
	m.clientsActive.Inc()
}

// ClientDisconnected records a departed websocket client.
func (m *Metrics) ClientDisconnected() {
	m.clientsActive.Dec()
}

// ObserveTransition records a connection state transition.
func (m *Metrics) ObserveTransition(state string) {
	m.stateTransitions.WithLabelValues(state).Inc()
}

// SetOfflineQueueSize updates the offline buffer gauge.
func (m *Metrics) SetOfflineQueueSize(n int) {
	m.offlineQueueSize.Set(float64(n))
}

// HeartbeatSent records an outgoing heartbeat ping.
func (m *Metrics) HeartbeatSent() {
	m.heartbeatsSent.Inc()
}

// Handler returns the exposition endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
