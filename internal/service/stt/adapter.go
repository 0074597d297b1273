// Package stt defines the speech-to-text boundary of a call. Adapters turn
// the caller's audio into interim and final transcripts.
package stt

import "context"

// Callback receives recognition results for one call. Methods may be called
// from any goroutine.
type Callback interface {
	// OnPartial delivers an interim hypothesis for the current utterance.
	OnPartial(text string)

	// OnFinal delivers the settled transcript of an utterance.
	OnFinal(text string, confidence float64)

	// OnError reports a recognition failure. The call keeps going.
	OnError(err error)
}

// Adapter streams one call's audio to a recognizer.
type Adapter interface {
	Start(ctx context.Context, cb Callback) error

	// SendAudio forwards caller audio in the call's media encoding.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends recognition. No callbacks are delivered afterwards.
	Close() error
}
