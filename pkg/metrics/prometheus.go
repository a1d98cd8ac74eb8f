// Package metrics provides Prometheus metrics for the somnus inference pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Inference metrics
	windowsProcessed prometheus.Counter
	batchesInferred  prometheus.Counter
	transformLatency prometheus.Histogram
	inferenceLatency prometheus.Histogram

	// Aggregation metrics
	seriesOpen   prometheus.Gauge
	seriesSealed prometheus.Gauge
	overlapSteps prometheus.Counter

	// Decode metrics
	eventsDecoded *prometheus.CounterVec
	decodeLatency prometheus.Histogram

	// Submission metrics
	rowsWritten prometheus.Counter

	// Pipeline health
	queueDepth    prometheus.Gauge
	workerCount   prometheus.Gauge
	errorsByStage *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "somnus",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.windowsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "windows_processed_total",
		Help:      "Total number of windows pushed through the feature transform and model",
	})

	m.batchesInferred = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_inferred_total",
		Help:      "Total number of batches handed to the predictor",
	})

	m.transformLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "transform_latency_milliseconds",
		Help:      "Histogram of per-window feature transform latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.inferenceLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "inference_latency_milliseconds",
		Help:      "Histogram of per-batch model forward latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.seriesOpen = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "series_open",
		Help:      "Number of series currently accepting window writes",
	})

	m.seriesSealed = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "series_sealed",
		Help:      "Number of series sealed and ready for decoding",
	})

	m.overlapSteps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "overlap_steps_total",
		Help:      "Total number of steps written by more than one window (max-combined)",
	})

	m.eventsDecoded = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_decoded_total",
			Help:      "Total number of events decoded, by event label",
		},
		[]string{"event"},
	)

	m.decodeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "decode_latency_milliseconds",
		Help:      "Histogram of decode pass latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.rowsWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_written_total",
		Help:      "Total number of submission rows written",
	})

	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_depth",
		Help:      "Current number of prepared windows awaiting inference",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of feature-preparation workers",
	})

	m.errorsByStage = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_stage_total",
			Help:      "Total number of errors by pipeline stage and kind",
		},
		[]string{"stage", "kind"},
	)
}

// RecordWindowProcessed increments the processed-windows counter.
func RecordWindowProcessed() {
	globalManager.windowsProcessed.Inc()
}

// RecordBatchInferred increments the inferred-batches counter.
func RecordBatchInferred() {
	globalManager.batchesInferred.Inc()
}

// RecordTransformLatency records per-window transform latency in milliseconds.
func RecordTransformLatency(latencyMs float64) {
	globalManager.transformLatency.Observe(latencyMs)
}

// RecordInferenceLatency records per-batch forward latency in milliseconds.
func RecordInferenceLatency(latencyMs float64) {
	globalManager.inferenceLatency.Observe(latencyMs)
}

// UpdateSeriesOpen sets the number of series currently accepting writes.
func UpdateSeriesOpen(count int) {
	globalManager.seriesOpen.Set(float64(count))
}

// UpdateSeriesSealed sets the number of sealed series.
func UpdateSeriesSealed(count int) {
	globalManager.seriesSealed.Set(float64(count))
}

// RecordOverlapSteps adds to the overlap-combined step counter.
func RecordOverlapSteps(n int) {
	globalManager.overlapSteps.Add(float64(n))
}

// RecordEventDecoded increments the decoded-events counter for a label.
func RecordEventDecoded(label string) {
	globalManager.eventsDecoded.WithLabelValues(label).Inc()
}

// RecordDecodeLatency records decode pass latency in milliseconds.
func RecordDecodeLatency(latencyMs float64) {
	globalManager.decodeLatency.Observe(latencyMs)
}

// RecordRowsWritten adds to the written-rows counter.
func RecordRowsWritten(n int) {
	globalManager.rowsWritten.Add(float64(n))
}

// UpdateQueueDepth sets the number of prepared windows awaiting inference.
func UpdateQueueDepth(depth int) {
	globalManager.queueDepth.Set(float64(depth))
}

// UpdateWorkerCount sets the feature-worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordStageError records an error with stage and kind labels.
func RecordStageError(stage, kind string) {
	globalManager.errorsByStage.WithLabelValues(stage, kind).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
