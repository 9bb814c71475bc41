// Package metrics exposes Prometheus metrics for the audio registry.
//
// Metrics implements both audio.Observer (snapshots, events, command
// outcomes) and audio.NotificationRecorder (worker decode results). A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/reset-core/internal/audio"
)

const namespace = "resetpanel"

// Notification results.
const (
	resultDecoded   = "decoded"
	resultMalformed = "malformed"
)

// Metrics holds the registered collectors.
type Metrics struct {
	notificationsTotal *prometheus.CounterVec
	eventsTotal        *prometheus.CounterVec
	commandsTotal      *prometheus.CounterVec
	commandDuration    *prometheus.HistogramVec
	entities           *prometheus.GaugeVec
	pending            prometheus.Gauge
	stale              prometheus.Gauge
	snapshotVersion    prometheus.Gauge
}

// New creates and registers the audio metrics with reg.
// A nil registerer returns nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "notifications_total",
			Help:      "Daemon notifications received, by signal kind and decode result",
		}, []string{"kind", "result"}),

		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "events_applied_total",
			Help:      "Events applied to the registry",
		}, []string{"category", "type"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "commands_total",
			Help:      "Resolved commands, by kind and outcome",
		}, []string{"kind", "outcome"}),

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "command_duration_seconds",
			Help:      "Time from dispatch to resolution",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),

		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "entities",
			Help:      "Records currently held, by category",
		}, []string{"category"}),

		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "pending",
			Help:      "Records with an unconfirmed optimistic change",
		}),

		stale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "stale",
			Help:      "1 while the registry needs a full resync",
		}),

		snapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "snapshot_version",
			Help:      "Version of the latest published snapshot",
		}),
	}

	reg.MustRegister(
		m.notificationsTotal,
		m.eventsTotal,
		m.commandsTotal,
		m.commandDuration,
		m.entities,
		m.pending,
		m.stale,
		m.snapshotVersion,
	)
	return m
}

// RegisterQueueDepth exposes the processor inbox depth as a gauge.
func RegisterQueueDepth(reg prometheus.Registerer, depth func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "processor",
		Name:      "queue_depth",
		Help:      "Messages waiting in the processor inbox",
	}, func() float64 { return float64(depth()) }))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordNotification implements audio.NotificationRecorder.
func (m *Metrics) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	result := resultDecoded
	if err != nil {
		result = resultMalformed
	}
	m.notificationsTotal.WithLabelValues(kind, result).Inc()
}

// OnSnapshot implements audio.Observer.
func (m *Metrics) OnSnapshot(s *audio.Snapshot) {
	if m == nil || s == nil {
		return
	}
	m.entities.WithLabelValues(string(audio.CategorySink)).Set(float64(len(s.Sinks)))
	m.entities.WithLabelValues(string(audio.CategorySource)).Set(float64(len(s.Sources)))
	m.entities.WithLabelValues(string(audio.CategoryInputStream)).Set(float64(len(s.InputStreams)))
	m.entities.WithLabelValues(string(audio.CategoryOutputStream)).Set(float64(len(s.OutputStreams)))
	m.entities.WithLabelValues(string(audio.CategoryCard)).Set(float64(len(s.Cards)))
	m.pending.Set(float64(len(s.Pending)))
	m.snapshotVersion.Set(float64(s.Version))
	if s.Stale {
		m.stale.Set(1)
	} else {
		m.stale.Set(0)
	}
}

// OnEvent implements audio.Observer.
func (m *Metrics) OnEvent(ev audio.Event) {
	if m == nil {
		return
	}
	category, _ := ev.Target()
	var typ string
	switch ev.(type) {
	case audio.Added:
		typ = "added"
	case audio.Changed:
		typ = "changed"
	case audio.Removed:
		typ = "removed"
	}
	m.eventsTotal.WithLabelValues(string(category), typ).Inc()
}

// OnCommand implements audio.Observer.
func (m *Metrics) OnCommand(rec audio.CommandRecord) {
	if m == nil {
		return
	}
	kind := rec.Command.Kind()
	m.commandsTotal.WithLabelValues(kind, string(rec.Outcome)).Inc()
	m.commandDuration.WithLabelValues(kind).Observe(rec.Duration.Seconds())
}
