// Package session holds the per-call aggregate: progression, attempts and history.
package session

import (
	"errors"
	"time"

	"ai-screening-call-service/internal/models"
	"ai-screening-call-service/internal/script"
)

// Lifecycle is the state of a call session.
type Lifecycle int

const (
	// Active - questions are still being asked.
	Active Lifecycle = iota
	// Terminated - script exhausted, transport lost or failed. Terminal.
	Terminated
)

func (l Lifecycle) String() string {
	if l == Terminated {
		return "TERMINATED"
	}
	return "ACTIVE"
}

// ErrTerminated is returned when a terminated session is mutated.
var ErrTerminated = errors.New("session is terminated")

// CallSession is the state of one screening call.
//
// Owned by a single orchestrator goroutine; not safe for concurrent use.
// Readers outside that goroutine only ever see a Summary copy.
type CallSession struct {
	SessionID string
	CallSID   string
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   models.Outcome

	// Position indexes the active question; equals the script length once exhausted.
	Position int
	// Attempts counts follow-ups issued for the active question.
	Attempts int
	// LastCategory is the most recently resolved category for the active question.
	LastCategory script.Label
	// Carried is the first value extracted for the active question.
	Carried string
	// LastPrompt is the most recent text requested to be spoken for the active question.
	LastPrompt string

	scriptLen int
	history   []models.TurnRecord
	lifecycle Lifecycle
	flushed   bool
}

// New creates an active session positioned at the first question.
func New(sessionID, callSID string, scriptLen int, now time.Time) *CallSession {
	return &CallSession{
		SessionID: sessionID,
		CallSID:   callSID,
		StartedAt: now,
		scriptLen: scriptLen,
	}
}

// Lifecycle returns the current lifecycle state.
func (s *CallSession) Lifecycle() Lifecycle {
	return s.lifecycle
}

// Terminated reports whether the session has ended.
func (s *CallSession) Terminated() bool {
	return s.lifecycle == Terminated
}

// Exhausted reports whether every question has been passed.
func (s *CallSession) Exhausted() bool {
	return s.Position >= s.scriptLen
}

// Append adds a record to the history. Records are never modified afterwards.
func (s *CallSession) Append(rec models.TurnRecord) error {
	if s.Terminated() {
		return ErrTerminated
	}
	s.history = append(s.history, rec)
	return nil
}

// Note records the category and extracted value of the current turn. The
// first non-empty value of a question is kept as the carried value.
func (s *CallSession) Note(label script.Label, value string) {
	s.LastCategory = label
	if s.Carried == "" && value != "" {
		s.Carried = value
	}
}

// Advance moves to the next question and resets per-question state.
func (s *CallSession) Advance() {
	if s.Position < s.scriptLen {
		s.Position++
	}
	s.Attempts = 0
	s.LastCategory = ""
	s.Carried = ""
	s.LastPrompt = ""
}

// HistoryLen returns the number of recorded turns.
func (s *CallSession) HistoryLen() int {
	return len(s.history)
}

// History returns a copy of the recorded turns.
func (s *CallSession) History() []models.TurnRecord {
	out := make([]models.TurnRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Terminate ends the session with the given outcome.
// Returns false if the session had already terminated.
func (s *CallSession) Terminate(outcome models.Outcome, now time.Time) bool {
	if s.Terminated() {
		return false
	}
	s.lifecycle = Terminated
	s.Outcome = outcome
	s.EndedAt = now
	return true
}

// TakeFlush returns true exactly once for a terminated session. The caller
// that receives true owns delivering the summary.
func (s *CallSession) TakeFlush() bool {
	if !s.Terminated() || s.flushed {
		return false
	}
	s.flushed = true
	return true
}

// Summary returns a snapshot of the session suitable for publishing.
func (s *CallSession) Summary() models.CallSummary {
	sum := models.CallSummary{
		EventType:         models.EventTypeSummary,
		SessionID:         s.SessionID,
		CallSID:           s.CallSID,
		Outcome:           s.Outcome,
		QuestionsAnswered: s.Position,
		ScriptLength:      s.scriptLen,
		History:           s.History(),
		StartedAt:         s.StartedAt.UnixMilli(),
	}
	if !s.EndedAt.IsZero() {
		sum.EndedAt = s.EndedAt.UnixMilli()
	}
	return sum
}
