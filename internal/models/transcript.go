// Package models defines the data structures shared by the call pipeline.
package models

import (
	"fmt"
	"time"
)

// TranscriptFragment is one incremental recognition result for a session.
// ArrivalTime carries a monotonic reading when produced by time.Now.
type TranscriptFragment struct {
	Text        string
	IsFinal     bool
	Confidence  float64
	ArrivalTime time.Time
}

// BoundaryKind classifies a detected turn boundary.
type BoundaryKind int

const (
	// ShortPause - candidate has likely finished a sentence.
	ShortPause BoundaryKind = iota
	// LongPause - candidate has gone silent; the turn must be finalized.
	LongPause
	// BargeIn - candidate spoke while a prompt was playing.
	BargeIn
)

// String returns the string representation of the boundary kind.
func (k BoundaryKind) String() string {
	switch k {
	case ShortPause:
		return "SHORT_PAUSE"
	case LongPause:
		return "LONG_PAUSE"
	case BargeIn:
		return "BARGE_IN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// TurnBoundary is emitted by the segmenter when a turn may be acted on.
//
// Turn identifies the turn the boundary belongs to and Seq is the number of
// fragments consumed into AccumulatedText. A boundary is stale once the
// segmenter has moved to a later turn or received more fragments.
type TurnBoundary struct {
	Kind            BoundaryKind
	AccumulatedText string
	SessionID       string
	TurnID          string
	Turn            int
	Seq             uint64
	DetectedAt      time.Time
}
