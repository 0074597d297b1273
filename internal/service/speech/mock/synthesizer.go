// Package mock provides a synthesizer that emits mu-law silence, for running
// calls without a TTS account.
package mock

import (
	"context"
	"sync"
	"time"
)

// ulawSilence is the mu-law byte for zero amplitude.
const ulawSilence = 0xFF

// Synthesizer emits one 20ms silent frame per word of text.
type Synthesizer struct {
	// FrameDelay is slept between frames. Zero streams as fast as possible.
	FrameDelay time.Duration

	mu    sync.Mutex
	texts []string
}

func New() *Synthesizer {
	return &Synthesizer{}
}

// Stream emits silence frames until done or ctx is cancelled.
func (s *Synthesizer) Stream(ctx context.Context, text string, chunk func([]byte) error) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	frames := 1
	for _, r := range text {
		if r == ' ' {
			frames++
		}
	}

	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := make([]byte, 160)
		for j := range frame {
			frame[j] = ulawSilence
		}
		if err := chunk(frame); err != nil {
			return err
		}
		if s.FrameDelay > 0 {
			select {
			case <-time.After(s.FrameDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Texts returns every text synthesized so far, in order.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}
