package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TaskMetrics exposes Prometheus counters/histograms for pipeline task
// activity: source polls/flushes, transform apply latency, output writes.
// Renamed from the teacher's packet-capture-stage counters
// (Received/Decoded/Parsed/...) to pipeline-stage counters for this domain.
type TaskMetrics struct {
	sourcePolls       *prometheus.CounterVec
	sourceFlushes     *prometheus.CounterVec
	sourceFlushPoints *prometheus.HistogramVec
	transformApplies  prometheus.Counter
	transformLatency  prometheus.Histogram
	transformPoints   prometheus.Histogram
	outputWrites      *prometheus.CounterVec
	outputErrors      *prometheus.CounterVec
}

// NewTaskMetrics registers the pipeline's self-observability metrics
// against reg (typically prometheus.DefaultRegisterer, or a test-local
// registry so package tests don't collide on repeated registration).
func NewTaskMetrics(reg prometheus.Registerer) *TaskMetrics {
	factory := promauto.With(reg)
	return &TaskMetrics{
		sourcePolls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alumet_source_polls_total",
			Help: "Total number of source poll invocations.",
		}, []string{"source"}),
		sourceFlushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alumet_source_flushes_total",
			Help: "Total number of buffers flushed downstream by a source.",
		}, []string{"source"}),
		sourceFlushPoints: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alumet_source_flush_points",
			Help:    "Number of points flushed per source flush cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"source"}),
		transformApplies: factory.NewCounter(prometheus.CounterOpts{
			Name: "alumet_transform_buffers_total",
			Help: "Total number of buffers processed by the transform chain.",
		}),
		transformLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "alumet_transform_apply_seconds",
			Help:    "Time to run the full transform chain over one buffer.",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20),
		}),
		transformPoints: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "alumet_transform_apply_points",
			Help:    "Number of points processed by the transform chain per buffer.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		outputWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alumet_output_writes_total",
			Help: "Total number of output write attempts.",
		}, []string{"output"}),
		outputErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alumet_output_write_errors_total",
			Help: "Total number of output write failures.",
		}, []string{"output"}),
	}
}

func (m *TaskMetrics) RecordPoll(source string) {
	if m == nil {
		return
	}
	m.sourcePolls.WithLabelValues(source).Inc()
}

func (m *TaskMetrics) RecordFlush(source string, points int) {
	if m == nil {
		return
	}
	m.sourceFlushes.WithLabelValues(source).Inc()
	m.sourceFlushPoints.WithLabelValues(source).Observe(float64(points))
}

func (m *TaskMetrics) RecordTransformApply(points int, d time.Duration) {
	if m == nil {
		return
	}
	m.transformApplies.Inc()
	m.transformPoints.Observe(float64(points))
	m.transformLatency.Observe(d.Seconds())
}

func (m *TaskMetrics) RecordWrite(output string, err error) {
	if m == nil {
		return
	}
	m.outputWrites.WithLabelValues(output).Inc()
	if err != nil {
		m.outputErrors.WithLabelValues(output).Inc()
	}
}
