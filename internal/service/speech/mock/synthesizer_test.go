package mock

import (
	"context"
	"testing"
	"time"
)

func TestSynthesizer_FramePerWord(t *testing.T) {
	s := New()
	frames := 0
	err := s.Stream(context.Background(), "what is your notice period", func(b []byte) error {
		if len(b) != 160 {
			t.Errorf("expected 160 byte frame, got %d", len(b))
		}
		if b[0] != ulawSilence {
			t.Errorf("expected silence, got %x", b[0])
		}
		frames++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frames != 5 {
		t.Errorf("expected 5 frames, got %d", frames)
	}
	if got := s.Texts(); len(got) != 1 || got[0] != "what is your notice period" {
		t.Errorf("unexpected texts %v", got)
	}
}

func TestSynthesizer_Cancelled(t *testing.T) {
	s := &Synthesizer{FrameDelay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := s.Stream(ctx, "a b c d", func([]byte) error { return nil })
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("expected Stream to stop promptly on cancel")
	}
}
