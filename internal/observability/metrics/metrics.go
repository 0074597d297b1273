// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_screening_call"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionOutcome  *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Turn metrics
	TurnBoundaries      *prometheus.CounterVec
	SpeculativeResults  *prometheus.CounterVec
	DialogueTransitions *prometheus.CounterVec
	BargeIns            prometheus.Counter

	// Classification metrics
	ClassificationLatency *prometheus.HistogramVec
	ClassificationErrors  *prometheus.CounterVec

	// Speech output metrics
	SpeechJobs    *prometheus.CounterVec
	SpeechLatency prometheus.Histogram

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Archive metrics
	ArchiveWrites *prometheus.CounterVec

	// STT metrics
	STTErrors          *prometheus.CounterVec
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter

	// Backpressure metrics
	LimitExceeded *prometheus.CounterVec

	// gRPC metrics
	GRPCStreamsActive  prometheus.Gauge
	GRPCStreamDuration *prometheus.HistogramVec
	MediaStreamsActive prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of call sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of call sessions currently in progress",
		}),
		SessionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_outcome_total",
			Help:      "Terminated call sessions by outcome",
		}, []string{"outcome"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of call sessions in seconds",
			Buckets:   []float64{10, 30, 60, 120, 180, 300, 600, 900},
		}),

		// Turn metrics
		TurnBoundaries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_boundaries_total",
			Help:      "Turn boundaries detected by kind",
		}, []string{"kind"}),
		SpeculativeResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speculative_classifications_total",
			Help:      "Short-pause classifications by whether they were applied",
		}, []string{"result"}),
		DialogueTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_transitions_total",
			Help:      "State machine transitions by action",
		}, []string{"action"}),
		BargeIns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Total number of prompts interrupted by the candidate",
		}),

		// Classification metrics
		ClassificationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_latency_seconds",
			Help:      "Classification latency including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"provider"}),
		ClassificationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_errors_total",
			Help:      "Classifications that ended unavailable",
		}, []string{"provider"}),

		// Speech output metrics
		SpeechJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_jobs_total",
			Help:      "Speech output jobs by final state",
		}, []string{"state"}),
		SpeechLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speech_first_audio_seconds",
			Help:      "Time from speak request to first audio chunk",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 1, 2},
		}),

		// Audio metrics
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// Archive metrics
		ArchiveWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_writes_total",
			Help:      "Call summary archive writes by result",
		}, []string{"result"}),

		// STT metrics
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),
		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts received",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts received",
		}),

		// Backpressure metrics
		LimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_limit_exceeded_total",
			Help:      "Total number of times call limits were exceeded",
		}, []string{"limit_type"}),

		// gRPC metrics
		GRPCStreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grpc_streams_active",
			Help:      "Number of currently open gRPC streams",
		}),
		GRPCStreamDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_stream_duration_seconds",
			Help:      "Duration of gRPC streams",
			Buckets:   []float64{0.1, 1, 10, 60, 300, 1800},
		}, []string{"status"}),
		MediaStreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "media_streams_active",
			Help:      "Number of currently open Twilio media streams",
		}),
	}
}

// RecordSessionStart records a new call session.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a call session ending.
func (m *Metrics) RecordSessionEnd(outcome string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionOutcome.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordBoundary records a detected turn boundary.
func (m *Metrics) RecordBoundary(kind string) {
	m.TurnBoundaries.WithLabelValues(kind).Inc()
}

// RecordSpeculative records whether a short-pause classification was applied.
func (m *Metrics) RecordSpeculative(applied bool) {
	if applied {
		m.SpeculativeResults.WithLabelValues("applied").Inc()
	} else {
		m.SpeculativeResults.WithLabelValues("discarded").Inc()
	}
}

// RecordTransition records a state machine transition.
func (m *Metrics) RecordTransition(action string) {
	m.DialogueTransitions.WithLabelValues(action).Inc()
}

// RecordBargeIn records an interrupted prompt.
func (m *Metrics) RecordBargeIn() {
	m.BargeIns.Inc()
}

// RecordClassification records a classification call.
func (m *Metrics) RecordClassification(provider string, err error, latencySeconds float64) {
	m.ClassificationLatency.WithLabelValues(provider).Observe(latencySeconds)
	if err != nil {
		m.ClassificationErrors.WithLabelValues(provider).Inc()
	}
}

// RecordSpeechJob records a speech job reaching a final state.
func (m *Metrics) RecordSpeechJob(state string) {
	m.SpeechJobs.WithLabelValues(state).Inc()
}

// RecordFirstAudio records time to first synthesized audio.
func (m *Metrics) RecordFirstAudio(seconds float64) {
	m.SpeechLatency.Observe(seconds)
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordArchiveWrite records a summary archive write.
func (m *Metrics) RecordArchiveWrite(err error) {
	if err != nil {
		m.ArchiveWrites.WithLabelValues("error").Inc()
		return
	}
	m.ArchiveWrites.WithLabelValues("ok").Inc()
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordPartialTranscript records a partial transcript received.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordFinalTranscript records a final transcript received.
func (m *Metrics) RecordFinalTranscript() {
	m.TranscriptsFinal.Inc()
}

// RecordLimitExceeded records when a call limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.LimitExceeded.WithLabelValues(limitType).Inc()
}

// RecordStreamStart records a gRPC stream opening.
func (m *Metrics) RecordStreamStart() {
	m.GRPCStreamsActive.Inc()
}

// RecordStreamEnd records a gRPC stream closing.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.GRPCStreamsActive.Dec()
	status := "success"
	if !success {
		status = "error"
	}
	m.GRPCStreamDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordMediaStream tracks open media streams; delta is +1 on start, -1 on end.
func (m *Metrics) RecordMediaStream(delta int) {
	m.MediaStreamsActive.Add(float64(delta))
}
