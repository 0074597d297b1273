package models

// Outcome is the final disposition of a screening call.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeDisconnected   Outcome = "disconnected"
	OutcomeBusyDisconnect Outcome = "busy_disconnect"
	OutcomeFailed         Outcome = "failed"
)

// Event types carried in the eventType field of published payloads.
const (
	EventTypeTurn    = "screening.call.turn"
	EventTypeSummary = "screening.call.summary"
)

// TurnRecord is one immutable entry of a session's history.
type TurnRecord struct {
	StateID        int    `json:"stateId"`
	Question       string `json:"question"`
	Transcript     string `json:"transcript"`
	Category       string `json:"category"`
	ExtractedValue string `json:"extractedValue,omitempty"`
	Attempt        int    `json:"attempt"`
	Boundary       string `json:"boundary"`
	Unavailable    bool   `json:"classificationUnavailable,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// TurnEvent is published once per recorded turn.
type TurnEvent struct {
	EventType  string     `json:"eventType"`
	SessionID  string     `json:"sessionId"`
	CallSID    string     `json:"callSid,omitempty"`
	Sequence   int        `json:"sequence"`
	NextPrompt string     `json:"nextPrompt,omitempty"`
	Record     TurnRecord `json:"record"`
}

// CallSummary is the flushed artifact of a terminated session.
type CallSummary struct {
	EventType         string       `json:"eventType"`
	SessionID         string       `json:"sessionId"`
	CallSID           string       `json:"callSid,omitempty"`
	Outcome           Outcome      `json:"outcome"`
	QuestionsAnswered int          `json:"questionsAnswered"`
	ScriptLength      int          `json:"scriptLength"`
	History           []TurnRecord `json:"history"`
	StartedAt         int64        `json:"startedAt"`
	EndedAt           int64        `json:"endedAt"`
}
