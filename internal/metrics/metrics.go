package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pebblestore "github.com/rzbill/syncq/internal/storage/pebble"
)

const namespace = "syncq"

// Run outcomes recorded by ObserveRun.
const (
	OutcomeDrained = "drained"
	OutcomeStopped = "stopped"
)

// Metrics holds every syncq collector on its own registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	enqueued         *prometheus.CounterVec
	processed        *prometheus.CounterVec
	failed           *prometheus.CounterVec
	runs             *prometheus.CounterVec
	running          prometheus.Gauge
	eventsDropped    *prometheus.CounterVec
	processorLatency *prometheus.HistogramVec
	storageLatency   *prometheus.HistogramVec
	storageBytes     *prometheus.CounterVec
}

// New registers the collectors, plus Go and process collectors when
// withRuntime is set.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m := &Metrics{
		registry: reg,
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "entries_enqueued_total",
			Help: "Enqueue calls accepted, by queue.",
		}, []string{"queue"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "entries_processed_total",
			Help: "Entries delivered and removed, by queue.",
		}, []string{"queue"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "entries_failed_total",
			Help: "Entries marked error, by queue and reason.",
		}, []string{"queue", "reason"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Processing runs finished, by terminal outcome.",
		}, []string{"outcome"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_active",
			Help: "1 while a processing run is in progress.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_total",
			Help: "Events dropped for subscribers whose buffer was full.",
		}, []string{"event"}),
		processorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "processor_duration_seconds",
			Help:    "Time spent in a processor call.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"queue"}),
		storageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "storage", Name: "op_duration_seconds",
			Help:    "Pebble read, write and commit latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"op"}),
		storageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "bytes_total",
			Help: "Bytes moved through Pebble, by op.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.enqueued, m.processed, m.failed, m.runs, m.running,
		m.eventsDropped, m.processorLatency, m.storageLatency, m.storageBytes)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Enqueued(queue string) {
	if m != nil {
		m.enqueued.WithLabelValues(queue).Inc()
	}
}

// ObserveProcessed records one processor call. reason is empty on success.
func (m *Metrics) ObserveProcessed(queue string, elapsed time.Duration, ok bool, reason string) {
	if m == nil {
		return
	}
	m.processorLatency.WithLabelValues(queue).Observe(elapsed.Seconds())
	if ok {
		m.processed.WithLabelValues(queue).Inc()
		return
	}
	m.failed.WithLabelValues(queue, reason).Inc()
}

func (m *Metrics) RunStarted() {
	if m != nil {
		m.running.Set(1)
	}
}

func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.running.Set(0)
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EventDropped(event string) {
	if m != nil {
		m.eventsDropped.WithLabelValues(event).Inc()
	}
}

// StorageHook adapts m to pebblestore.MetricsHook.
func (m *Metrics) StorageHook() pebblestore.MetricsHook {
	if m == nil {
		return pebblestore.NoopMetrics{}
	}
	return storageHook{m}
}

type storageHook struct{ m *Metrics }

func (h storageHook) ObserveWrite(elapsed time.Duration, bytes int) {
	h.observe("write", elapsed, bytes)
}

func (h storageHook) ObserveRead(elapsed time.Duration, bytes int) {
	h.observe("read", elapsed, bytes)
}

func (h storageHook) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	h.observe("commit", elapsed, bytes)
}

func (h storageHook) observe(op string, elapsed time.Duration, bytes int) {
	h.m.storageLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	h.m.storageBytes.WithLabelValues(op).Add(float64(bytes))
}
