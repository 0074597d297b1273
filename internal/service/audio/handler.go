// Package audio provides the call audio handler that feeds caller audio to
// the STT adapter and forwards recognized text as transcript fragments.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-screening-call-service/internal/models"
	"ai-screening-call-service/internal/observability/logging"
	"ai-screening-call-service/internal/observability/metrics"
	"ai-screening-call-service/internal/service/stt"
)

// ErrLimitExceeded is returned by SendAudio once a call limit is hit.
var ErrLimitExceeded = errors.New("call limit exceeded")

// Limits defines safety guardrails for a single call.
// These prevent unbounded resource usage from a stuck or abusive stream.
type Limits struct {
	MaxAudioBytes int64         // Max inbound audio per call
	MaxDuration   time.Duration // Max call duration
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes: 16 * 1024 * 1024, // 16MB (~35 minutes of 8kHz mu-law)
		MaxDuration:   30 * time.Minute,
	}
}

// FragmentSink receives transcript fragments in arrival order.
type FragmentSink interface {
	Fragment(f models.TranscriptFragment) error
}

// Handler manages the STT side of one call.
// It implements stt.Callback to receive transcripts and pass them on.
type Handler struct {
	adapter  stt.Adapter
	sink     FragmentSink
	provider string
	limits   Limits
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	startTime time.Time
	stats     Stats
	exceeded  bool
}

// Stats holds call usage counters.
type Stats struct {
	AudioBytes int64
	Partials   int
	Finals     int
	Errors     int
}

// NewHandler creates a handler with the given limits.
func NewHandler(adapter stt.Adapter, sink FragmentSink, provider, sessionId string, limits Limits) *Handler {
	return &Handler{
		adapter:   adapter,
		sink:      sink,
		provider:  provider,
		limits:    limits,
		logger:    logging.WithSession(sessionId).With().Str("component", "audio").Str("sttProvider", provider).Logger(),
		metrics:   metrics.DefaultMetrics,
		startTime: time.Now(),
	}
}

// Start begins the STT session with this handler as the callback receiver.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	h.startTime = time.Now()
	h.mu.Unlock()
	return h.adapter.Start(ctx, h)
}

// SendAudio forwards audio bytes to the STT adapter.
// Returns an error wrapping ErrLimitExceeded once a limit is exceeded; the
// caller is expected to end the call.
func (h *Handler) SendAudio(ctx context.Context, audio []byte) error {
	h.mu.Lock()
	if h.exceeded {
		h.mu.Unlock()
		return ErrLimitExceeded
	}
	h.stats.AudioBytes += int64(len(audio))
	current := h.stats.AudioBytes
	elapsed := time.Since(h.startTime)
	h.mu.Unlock()

	h.metrics.RecordAudioReceived(len(audio))

	if h.limits.MaxAudioBytes > 0 && current > h.limits.MaxAudioBytes {
		return h.exceed("audio_bytes", fmt.Sprintf("max audio bytes exceeded: %d > %d", current, h.limits.MaxAudioBytes))
	}
	if h.limits.MaxDuration > 0 && elapsed > h.limits.MaxDuration {
		return h.exceed("duration", fmt.Sprintf("max duration exceeded: %v > %v", elapsed.Round(time.Millisecond), h.limits.MaxDuration))
	}

	return h.adapter.SendAudio(ctx, audio)
}

func (h *Handler) exceed(limitType, reason string) error {
	h.mu.Lock()
	first := !h.exceeded
	h.exceeded = true
	h.mu.Unlock()

	if first {
		h.metrics.RecordLimitExceeded(limitType)
		h.logger.Warn().Str("limit", limitType).Msg(reason)
	}
	return fmt.Errorf("%w: %s", ErrLimitExceeded, reason)
}

// Close ends the STT session.
func (h *Handler) Close() error {
	return h.adapter.Close()
}

// Stats returns current call usage counters.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// --- stt.Callback implementation ---

// OnPartial is called when an interim transcript is received.
func (h *Handler) OnPartial(text string) {
	h.mu.Lock()
	h.stats.Partials++
	h.mu.Unlock()
	h.metrics.RecordPartialTranscript()

	h.forward(models.TranscriptFragment{
		Text:        text,
		IsFinal:     false,
		ArrivalTime: time.Now(),
	})
}

// OnFinal is called when a final transcript is received.
func (h *Handler) OnFinal(text string, confidence float64) {
	h.mu.Lock()
	h.stats.Finals++
	h.mu.Unlock()
	h.metrics.RecordFinalTranscript()

	h.forward(models.TranscriptFragment{
		Text:        text,
		IsFinal:     true,
		Confidence:  confidence,
		ArrivalTime: time.Now(),
	})
}

// OnError is called when an STT error occurs. The call continues; turns
// still end on silence.
func (h *Handler) OnError(err error) {
	h.mu.Lock()
	h.stats.Errors++
	h.mu.Unlock()

	h.metrics.RecordSTTError(h.provider, "stream")
	h.logger.Error().Err(err).Msg("STT error")
}

func (h *Handler) forward(f models.TranscriptFragment) {
	if err := h.sink.Fragment(f); err != nil {
		h.logger.Debug().Err(err).Bool("final", f.IsFinal).Msg("Fragment not delivered")
	}
}
