package monitoring

import (
	"twintalk/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsRecorder.
type PrometheusCollector struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	meetingsActive    prometheus.Gauge
	meetingsCreated   prometheus.Counter
	meetingsRemoved   *prometheus.CounterVec

	messagesTotal    *prometheus.CounterVec
	relayUnreachable prometheus.Counter

	recordingsActive    prometheus.Gauge
	recordingsFinalized prometheus.Counter
	recordingBytes      prometheus.Histogram
	recordingDuration   prometheus.Histogram
	chunkBytes          prometheus.Counter
}

// NewPrometheusCollector registers the collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "twintalk_connections_active",
			Help: "Number of live signaling connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "twintalk_connections_total",
			Help: "Total number of signaling connections accepted",
		}),

		meetingsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "twintalk_meetings_active",
			Help: "Number of meetings currently held in the registry",
		}),

		meetingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "twintalk_meetings_created_total",
			Help: "Total number of meetings created",
		}),

		meetingsRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "twintalk_meetings_removed_total",
			Help: "Total number of meetings removed, by reason",
		}, []string{"reason"}),

		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "twintalk_messages_total",
			Help: "Inbound signaling messages by event and outcome",
		}, []string{"event", "outcome"}),

		relayUnreachable: factory.NewCounter(prometheus.CounterOpts{
			Name: "twintalk_relay_unreachable_total",
			Help: "Directed relays whose target was not reachable",
		}),

		recordingsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "twintalk_recordings_active",
			Help: "Number of recording sessions in progress",
		}),

		recordingsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "twintalk_recordings_finalized_total",
			Help: "Total number of recording sessions finalized",
		}),

		recordingBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "twintalk_recording_size_bytes",
			Help:    "Size of finalized recording artifacts",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 10),
		}),

		recordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "twintalk_recording_duration_seconds",
			Help:    "Wall clock duration of recording sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),

		chunkBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "twintalk_recording_chunk_bytes_total",
			Help: "Total recording chunk bytes received",
		}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) MeetingCreated() {
	p.meetingsActive.Inc()
	p.meetingsCreated.Inc()
}

func (p *PrometheusCollector) MeetingRemoved(reason string) {
	p.meetingsActive.Dec()
	p.meetingsRemoved.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) MessageHandled(event domain.EventName, outcome string) {
	p.messagesTotal.WithLabelValues(string(event), outcome).Inc()
}

func (p *PrometheusCollector) RelayUnreachable() {
	p.relayUnreachable.Inc()
}

func (p *PrometheusCollector) RecordingStarted() {
	p.recordingsActive.Inc()
}

func (p *PrometheusCollector) RecordingFinalized(sizeBytes int64, durationSeconds float64) {
	p.recordingsActive.Dec()
	p.recordingsFinalized.Inc()
	p.recordingBytes.Observe(float64(sizeBytes))
	p.recordingDuration.Observe(durationSeconds)
}

func (p *PrometheusCollector) ChunkReceived(sizeBytes int) {
	p.chunkBytes.Add(float64(sizeBytes))
}

func (p *PrometheusCollector) IdleMeetingsSwept(n int) {
	for i := 0; i < n; i++ {
		p.MeetingRemoved("idle")
	}
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ConnectionOpened() {}
func (NopMetrics) ConnectionClosed() {}
func (NopMetrics) MeetingCreated() {}
func (NopMetrics) MeetingRemoved(string) {}
func (NopMetrics) MessageHandled(domain.EventName, string) {}
func (NopMetrics) RelayUnreachable() {}
func (NopMetrics) RecordingStarted() {}
func (NopMetrics) RecordingFinalized(int64, float64) {}
func (NopMetrics) ChunkReceived(int) {}
func (NopMetrics) IdleMeetingsSwept(int) {}
