// Package dialogue implements the question/answer state machine.
//
// Machine applies one resolved answer to a session and decides whether to
// ask a follow-up, advance to the next question, or end the script. It owns
// no state of its own; all progression lives on the session.
package dialogue

import (
	"strings"
	"time"

	"ai-screening-call-service/internal/models"
	"ai-screening-call-service/internal/script"
	"ai-screening-call-service/internal/session"
)

// Verbatim is the category recorded for skip_classification answers.
const Verbatim = "verbatim"

// Action is the transition chosen for a turn.
type Action int

const (
	// FollowUp - re-ask under the same question.
	FollowUp Action = iota
	// Advance - move to the next question.
	Advance
	// Complete - the script is exhausted.
	Complete
)

func (a Action) String() string {
	switch a {
	case FollowUp:
		return "FOLLOW_UP"
	case Advance:
		return "ADVANCE"
	case Complete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Answer is one classified candidate turn.
type Answer struct {
	Text           string
	Category       script.Label
	ExtractedValue string
	// Unavailable marks a turn whose classification could not be obtained.
	Unavailable bool
	Boundary    models.BoundaryKind
}

// Decision is the result of applying an Answer.
type Decision struct {
	Action Action
	// Prompt is the next text to speak; empty on Complete.
	Prompt string
	Record models.TurnRecord
}

// Machine drives sessions through a script.
type Machine struct {
	script *script.Script
}

// New creates a machine over an immutable script.
func New(s *script.Script) *Machine {
	return &Machine{script: s}
}

// Script returns the script the machine was built with.
func (m *Machine) Script() *script.Script {
	return m.script
}

// Opening returns the prompt of the session's current question and marks it
// as asked. Returns "" for an exhausted session.
func (m *Machine) Opening(s *session.CallSession) string {
	q := m.script.Question(s.Position)
	if q == nil {
		return ""
	}
	if s.LastPrompt == "" {
		s.LastPrompt = q.Prompt
	}
	return s.LastPrompt
}

// Current returns the session's active question, or nil once exhausted.
func (m *Machine) Current(s *session.CallSession) *script.Question {
	return m.script.Question(s.Position)
}

// Apply records the answer in the session history and performs the transition.
//
//   - skip_classification questions accept the text verbatim and advance.
//   - otherwise the category's follow-up template (or default) is chosen;
//     an empty template or an exhausted attempt budget advances the question.
//   - an unavailable classification counts as irrelevant and consumes an attempt.
func (m *Machine) Apply(s *session.CallSession, a Answer, now time.Time) Decision {
	q := m.script.Question(s.Position)
	if q == nil {
		return Decision{Action: Complete}
	}

	rec := models.TurnRecord{
		StateID:    q.StateID,
		Question:   m.Opening(s),
		Transcript: a.Text,
		Attempt:    s.Attempts,
		Boundary:   a.Boundary.String(),
		Timestamp:  now.UnixMilli(),
	}

	if q.SkipClassification {
		rec.Category = Verbatim
		if err := s.Append(rec); err != nil {
			return Decision{Action: Complete}
		}
		return m.advance(s, rec)
	}

	label := q.Resolve(string(a.Category))
	if a.Unavailable {
		label = script.Irrelevant
		rec.Unavailable = true
	}
	rec.Category = string(label)
	rec.ExtractedValue = a.ExtractedValue
	// A terminated session records nothing more
	if err := s.Append(rec); err != nil {
		return Decision{Action: Complete}
	}
	s.Note(label, a.ExtractedValue)

	tmpl := q.FollowUp(label)
	if tmpl == "" || s.Attempts >= q.MaxFollowUps {
		return m.advance(s, rec)
	}

	s.Attempts++
	prompt := render(tmpl, q.DefaultFollowUp(), s.Carried)
	s.LastPrompt = prompt
	return Decision{Action: FollowUp, Prompt: prompt, Record: rec}
}

func (m *Machine) advance(s *session.CallSession, rec models.TurnRecord) Decision {
	s.Advance()
	next := m.script.Question(s.Position)
	if next == nil {
		return Decision{Action: Complete, Record: rec}
	}
	s.LastPrompt = next.Prompt
	return Decision{Action: Advance, Prompt: next.Prompt, Record: rec}
}

// render substitutes the extracted value. When no value is available the
// default template is tried, and as a last resort the placeholder is dropped.
func render(tmpl, fallback, value string) string {
	if !strings.Contains(tmpl, script.Placeholder) {
		return tmpl
	}
	if value != "" {
		return strings.ReplaceAll(tmpl, script.Placeholder, value)
	}
	if fallback != "" && !strings.Contains(fallback, script.Placeholder) {
		return fallback
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(tmpl, script.Placeholder, "")), " ")
}
