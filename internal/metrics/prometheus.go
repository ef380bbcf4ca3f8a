// Package metrics exposes Prometheus instrumentation for the segmentation
// pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors, registered in the default
// registry on creation.
type Metrics struct {
	// VAD activity
	TicksSampled prometheus.Counter
	VoiceTicks   prometheus.Counter
	InputLevel   prometheus.Gauge

	// Segmentation
	UtterancesSealed  prometheus.Counter
	UtterancesEmpty   prometheus.Counter
	UtteranceDuration prometheus.Histogram
	UtteranceBytes    prometheus.Histogram
	ChunksAccepted    prometheus.Counter
	ChunksDropped     prometheus.Counter

	// Transport
	TransportSends        prometheus.Counter
	TransportSendFailures prometheus.Counter
	TransportSendDuration prometheus.Histogram

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors. Call it once per
// process.
func NewMetrics() *Metrics {
	return &Metrics{
		TicksSampled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_vad_ticks_total",
			Help: "Total number of loudness samples evaluated",
		}),
		VoiceTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_vad_voice_ticks_total",
			Help: "Number of samples classified as voice",
		}),
		InputLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "segmenter_input_level",
			Help: "Most recent input loudness on a 0-255 scale",
		}),
		UtterancesSealed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_utterances_sealed_total",
			Help: "Number of utterances sealed and delivered",
		}),
		UtterancesEmpty: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_utterances_empty_total",
			Help: "Number of utterances dropped because no chunk was accepted",
		}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmenter_utterance_duration_seconds",
			Help:    "Duration of sealed utterances",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		UtteranceBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmenter_utterance_size_bytes",
			Help:    "Audio payload size of sealed utterances",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		ChunksAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_chunks_accepted_total",
			Help: "Number of audio chunks buffered into utterances",
		}),
		ChunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_chunks_dropped_total",
			Help: "Number of audio chunks rejected by the acceptance policy",
		}),
		TransportSends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_transport_sends_total",
			Help: "Number of utterances handed to the transport",
		}),
		TransportSendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_transport_send_failures_total",
			Help: "Number of transport sends that failed",
		}),
		TransportSendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmenter_transport_send_duration_seconds",
			Help:    "Time spent delivering an utterance",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "segmenter_http_requests_total",
			Help: "HTTP API requests by method, path and status",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "segmenter_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// RecordTick counts one VAD evaluation.
func (m *Metrics) RecordTick(isVoice bool, level float64) {
	m.TicksSampled.Inc()
	if isVoice {
		m.VoiceTicks.Inc()
	}
	m.InputLevel.Set(level)
}

// RecordUtterance observes one sealed utterance.
func (m *Metrics) RecordUtterance(duration time.Duration, sizeBytes int) {
	m.UtterancesSealed.Inc()
	m.UtteranceDuration.Observe(duration.Seconds())
	m.UtteranceBytes.Observe(float64(sizeBytes))
}

// RecordEmptyUtterance counts a silence-only utterance that was dropped.
func (m *Metrics) RecordEmptyUtterance() {
	m.UtterancesEmpty.Inc()
}

// RecordChunk counts one chunk acceptance decision.
func (m *Metrics) RecordChunk(accepted bool) {
	if accepted {
		m.ChunksAccepted.Inc()
	} else {
		m.ChunksDropped.Inc()
	}
}

// RecordSend observes one transport delivery.
func (m *Metrics) RecordSend(duration time.Duration, err error) {
	m.TransportSends.Inc()
	m.TransportSendDuration.Observe(duration.Seconds())
	if err != nil {
		m.TransportSendFailures.Inc()
	}
}

// RecordHTTPRequest observes one API request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
