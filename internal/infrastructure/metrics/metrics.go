package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mqttiface"

// Command outcomes recorded by ObserveCommand.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Message route targets recorded by MessageRouted.
const (
	TargetCallback = "callback"
	TargetQueue    = "queue"
)

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration prometheus.Histogram
	queueDepth      prometheus.Gauge
	rejected        *prometheus.CounterVec
	routed          *prometheus.CounterVec
	dropped         prometheus.Counter
	subscriptions   prometheus.Gauge
	connected       prometheus.Gauge
	reconnects      prometheus.Counter
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed by the command serializer, by outcome.",
		}, []string{"outcome"}),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent executing a command against the broker client.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "command_queue_depth",
			Help:      "Commands waiting to be executed.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_rejected_total",
			Help:      "Operations the broker client reported as unsuccessful.",
		}, []string{"operation"}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Inbound messages delivered, by target kind.",
		}, []string{"target"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound messages that matched no registered topic.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Topics currently registered with the message router.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "1 while the broker connection is established.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Connection handshakes after the initial one.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands,
		m.commandDuration,
		m.queueDepth,
		m.rejected,
		m.routed,
		m.dropped,
		m.subscriptions,
		m.connected,
		m.reconnects,
	)

	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCommand records one executed command.
func (m *Metrics) ObserveCommand(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(outcome).Inc()
	m.commandDuration.Observe(d.Seconds())
}

// SetQueueDepth records the number of pending commands.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// OperationRejected counts a non-success result for operation.
func (m *Metrics) OperationRejected(operation string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(operation).Inc()
}

// MessageRouted counts one delivery to target.
func (m *Metrics) MessageRouted(target string) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(target).Inc()
}

// MessageDropped counts an inbound message with no route.
func (m *Metrics) MessageDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// SetSubscriptions records the number of registered topics.
func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}

// SetConnected records the broker connection state.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// Reconnected counts a handshake after the initial connection.
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
