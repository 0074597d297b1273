package segment

import (
	"strings"
	"time"

	"ai-screening-call-service/internal/models"
)

// Config holds silence thresholds for turn detection.
type Config struct {
	ShortSilence time.Duration // soft boundary, starts speculative classification
	LongSilence  time.Duration // hard boundary, finalizes the turn
	MergeOverlap bool          // trim words repeated by cumulative interim results
}

// DefaultConfig returns the default turn thresholds.
func DefaultConfig() Config {
	return Config{
		ShortSilence: 200 * time.Millisecond,
		LongSilence:  8 * time.Second,
		MergeOverlap: true,
	}
}

type contribution struct {
	seq  uint64
	text string
}

// Segmenter accumulates fragments for one session and decides when a turn
// boundary has been reached.
//
// Not safe for concurrent use; the owning orchestrator serializes all calls.
// Silence is measured between time.Time values carrying monotonic readings,
// so wall clock adjustments do not move the thresholds.
//
// Boundary rules:
//   - SHORT_PAUSE: buffer non-empty and no fragment for ShortSilence; once per gap
//   - LONG_PAUSE: no fragment for LongSilence, even with an empty buffer; once per gap
//   - BARGE_IN: a non-empty fragment arrives while output is active
//
// Silence timers are suspended while output is active and restart on Resume.
type Segmenter struct {
	cfg       Config
	sessionId string
	gen       *Generator

	turnId string
	turn   int
	seq    uint64
	buffer []contribution

	lastActivity time.Time
	shortFired   bool
	longFired    bool
	outputActive bool
}

// NewSegmenter creates a segmenter whose silence clock starts at now.
func NewSegmenter(sessionId string, cfg Config, gen *Generator, now time.Time) *Segmenter {
	if gen == nil {
		gen = New()
	}
	return &Segmenter{
		cfg:          cfg,
		sessionId:    sessionId,
		gen:          gen,
		turnId:       gen.Next(sessionId),
		lastActivity: now,
	}
}

// Feed records a fragment and resets the silence timer. Fragments with no
// text are not speech and are ignored. The returned boundary is non-nil only
// for BARGE_IN; the triggering fragment is the first of the resulting turn.
func (s *Segmenter) Feed(f models.TranscriptFragment) *models.TurnBoundary {
	text := collapseSpaces(f.Text)
	if text == "" {
		return nil
	}

	s.seq++
	if s.cfg.MergeOverlap {
		text = mergeAddition(s.Text(), text)
	}
	s.buffer = append(s.buffer, contribution{seq: s.seq, text: text})

	s.lastActivity = f.ArrivalTime
	s.shortFired = false
	s.longFired = false

	if s.outputActive {
		s.outputActive = false
		return s.boundary(models.BargeIn, f.ArrivalTime)
	}
	return nil
}

// Tick evaluates the silence timers at now. When both thresholds have
// elapsed only LONG_PAUSE is returned.
func (s *Segmenter) Tick(now time.Time) *models.TurnBoundary {
	if s.outputActive {
		return nil
	}
	silence := now.Sub(s.lastActivity)

	if !s.longFired && silence >= s.cfg.LongSilence {
		s.longFired = true
		s.shortFired = true
		return s.boundary(models.LongPause, now)
	}
	if !s.shortFired && silence >= s.cfg.ShortSilence && s.hasText() {
		s.shortFired = true
		return s.boundary(models.ShortPause, now)
	}
	return nil
}

// Commit ends the turn a boundary belongs to. Fragments consumed by the
// boundary leave the buffer; later fragments carry over into the next turn.
// Committing a boundary from an earlier turn is a no-op.
func (s *Segmenter) Commit(b *models.TurnBoundary) {
	if b == nil || b.Turn != s.turn {
		return
	}
	kept := s.buffer[:0]
	for _, c := range s.buffer {
		if c.seq > b.Seq {
			kept = append(kept, c)
		}
	}
	s.buffer = kept
	s.turn++
	s.turnId = s.gen.Next(s.sessionId)
	s.shortFired = false
	s.longFired = false
}

// SetOutputActive marks that a prompt is playing. Timers are suspended and
// the next non-empty fragment is reported as BARGE_IN.
func (s *Segmenter) SetOutputActive() {
	s.outputActive = true
}

// Resume marks output as finished and restarts the silence clock at now.
func (s *Segmenter) Resume(now time.Time) {
	s.outputActive = false
	s.lastActivity = now
	s.shortFired = false
	s.longFired = false
}

// OutputActive reports whether a prompt is marked as playing.
func (s *Segmenter) OutputActive() bool {
	return s.outputActive
}

// Turn returns the current turn number, starting at zero.
func (s *Segmenter) Turn() int {
	return s.turn
}

// TurnId returns the generated ID of the current turn.
func (s *Segmenter) TurnId() string {
	return s.turnId
}

// Seq returns the number of fragments fed so far.
func (s *Segmenter) Seq() uint64 {
	return s.seq
}

// Text returns the current turn's accumulated text in arrival order.
func (s *Segmenter) Text() string {
	parts := make([]string, 0, len(s.buffer))
	for _, c := range s.buffer {
		if c.text != "" {
			parts = append(parts, c.text)
		}
	}
	return strings.Join(parts, " ")
}

func (s *Segmenter) hasText() bool {
	for _, c := range s.buffer {
		if c.text != "" {
			return true
		}
	}
	return false
}

func (s *Segmenter) boundary(kind models.BoundaryKind, at time.Time) *models.TurnBoundary {
	return &models.TurnBoundary{
		Kind:            kind,
		AccumulatedText: s.Text(),
		SessionID:       s.sessionId,
		TurnID:          s.turnId,
		Turn:            s.turn,
		Seq:             s.seq,
		DetectedAt:      at,
	}
}
