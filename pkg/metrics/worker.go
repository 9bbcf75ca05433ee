package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records queue-processing outcomes per event type.
type WorkerMetrics struct {
	received  *prometheus.CounterVec
	acked     *prometheus.CounterVec
	retried   *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewWorkerMetrics registers the worker metrics on the provided registerer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return &WorkerMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_messages_received",
		Help: "Messages received from the queue.",
	}, []string{"event"})
	acked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_messages_acked",
		Help: "Messages acknowledged (deleted from the queue).",
	}, []string{"event"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_messages_retried",
		Help: "Retry copies re-enqueued with an incremented attempt.",
	}, []string{"event"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_messages_exhausted",
		Help: "Messages dropped after reaching the attempt limit.",
	}, []string{"event"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queue_batch_duration_seconds",
		Help:    "Duration of one received-batch handling pass.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event"})
	reg.MustRegister(received, acked, retried, exhausted, duration)
	return &WorkerMetrics{
		received:  received,
		acked:     acked,
		retried:   retried,
		exhausted: exhausted,
		duration:  duration,
	}
}

// IncReceived adds to the received counter for the event type.
func (w *WorkerMetrics) IncReceived(event string, n int) {
	if w == nil || w.received == nil || n <= 0 {
		return
	}
	w.received.WithLabelValues(normalizeLabel(event)).Add(float64(n))
}

// IncAcked adds to the acknowledged counter for the event type.
func (w *WorkerMetrics) IncAcked(event string, n int) {
	if w == nil || w.acked == nil || n <= 0 {
		return
	}
	w.acked.WithLabelValues(normalizeLabel(event)).Add(float64(n))
}

// IncRetried adds to the retried counter for the event type.
func (w *WorkerMetrics) IncRetried(event string, n int) {
	if w == nil || w.retried == nil || n <= 0 {
		return
	}
	w.retried.WithLabelValues(normalizeLabel(event)).Add(float64(n))
}

// IncExhausted adds to the exhausted counter for the event type.
func (w *WorkerMetrics) IncExhausted(event string, n int) {
	if w == nil || w.exhausted == nil || n <= 0 {
		return
	}
	w.exhausted.WithLabelValues(normalizeLabel(event)).Add(float64(n))
}

// ObserveBatch records the duration of one handler pass for the event type.
func (w *WorkerMetrics) ObserveBatch(event string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(event)).Observe(duration.Seconds())
}

func normalizeLabel(event string) string {
	if event == "" {
		return "unknown"
	}
	return event
}
