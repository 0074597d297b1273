// Package mock provides a mock STT adapter for running calls without cloud
// credentials. It replays scripted screening answers as progressive partial
// transcripts followed by exactly one final per utterance.
package mock

import (
	"context"
	"sync"
	"time"

	"ai-screening-call-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances answers the bundled screening script in order.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"I have", "I have five", "I have five years"},
		Final:      "I have five years of experience",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"My current", "My current CTC", "My current CTC is"},
		Final:      "My current CTC is twelve lakhs",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"I am", "I am expecting"},
		Final:      "I am expecting a thirty percent hike",
		Confidence: 0.89,
	},
	{
		Partials:   []string{"No"},
		Final:      "No other offers right now",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"My notice", "My notice period is"},
		Final:      "My notice period is two months",
		Confidence: 0.93,
	},
	{
		Partials:   []string{"No"},
		Final:      "No that's all thank you",
		Confidence: 0.98,
	},
}

// Adapter implements stt.Adapter with mock responses.
// Every audio frame advances the current utterance by one partial; the
// frame after the last partial produces the final and moves on to the next
// utterance.
type Adapter struct {
	cb         stt.Callback
	mu         sync.Mutex
	utterances []SimulatedUtterance
	current    int // Index of the utterance being simulated
	partialIdx int // Next partial to send
	frames     int // Count of audio frames received
	delay      time.Duration
	closed     bool
}

// New creates a mock adapter replaying DefaultUtterances.
func New() *Adapter {
	return NewWithUtterances(DefaultUtterances, 50*time.Millisecond)
}

// NewWithUtterances creates a mock adapter replaying utterances, delivering
// each callback after delay.
func NewWithUtterances(utterances []SimulatedUtterance, delay time.Duration) *Adapter {
	return &Adapter{utterances: utterances, delay: delay}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio simulates receiving audio and triggers progressive transcripts.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil || a.current >= len(a.utterances) {
		return nil
	}
	a.frames++

	utt := a.utterances[a.current]
	if a.partialIdx < len(utt.Partials) {
		text := utt.Partials[a.partialIdx]
		a.partialIdx++
		a.deliver(func(cb stt.Callback) { cb.OnPartial(text) })
		return nil
	}

	// All partials sent - simulate utterance completion
	a.current++
	a.partialIdx = 0
	a.deliver(func(cb stt.Callback) { cb.OnFinal(utt.Final, utt.Confidence) })
	return nil
}

// deliver invokes fn on the callback after the simulated processing delay.
// Must be called with a.mu held.
func (a *Adapter) deliver(fn func(stt.Callback)) {
	cb := a.cb
	go func() {
		if a.delay > 0 {
			time.Sleep(a.delay)
		}
		a.mu.Lock()
		closed := a.closed
		a.mu.Unlock()
		if !closed {
			fn(cb)
		}
	}()
}

// Frames returns the number of audio frames received.
func (a *Adapter) Frames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

// Close ends the mock session. Idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
