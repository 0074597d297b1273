package schema

import (
	"errors"
	"testing"

	"ai-screening-call-service/internal/models"
)

func validRecord() models.TurnRecord {
	return models.TurnRecord{
		StateID:    1,
		Question:   "Do you have other offers?",
		Transcript: "no",
		Category:   "no",
		Attempt:    0,
		Boundary:   "SHORT_PAUSE",
		Timestamp:  1700000000000,
	}
}

func validSummary() models.CallSummary {
	return models.CallSummary{
		EventType:         models.EventTypeSummary,
		SessionID:         "sess-1",
		Outcome:           models.OutcomeCompleted,
		QuestionsAnswered: 1,
		ScriptLength:      1,
		History:           []models.TurnRecord{validRecord()},
		StartedAt:         1700000000000,
		EndedAt:           1700000060000,
	}
}

func TestValidate_Summary(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		mutate  func(*models.CallSummary)
		wantErr bool
	}{
		{"valid", func(*models.CallSummary) {}, false},
		{"empty history", func(s *models.CallSummary) { s.History = []models.TurnRecord{} }, false},
		{"nil history", func(s *models.CallSummary) { s.History = nil }, true},
		{"unknown outcome", func(s *models.CallSummary) { s.Outcome = "hung_up" }, true},
		{"missing session", func(s *models.CallSummary) { s.SessionID = "" }, true},
		{"wrong event type", func(s *models.CallSummary) { s.EventType = models.EventTypeTurn }, true},
		{"not ended", func(s *models.CallSummary) { s.EndedAt = 0 }, true},
		{"bad boundary", func(s *models.CallSummary) { s.History[0].Boundary = "PAUSE" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSummary()
			tt.mutate(&s)
			err := v.Validate(s)
			if tt.wantErr && !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_Turn(t *testing.T) {
	v := New()
	ev := models.TurnEvent{
		EventType:  models.EventTypeTurn,
		SessionID:  "sess-1",
		Sequence:   1,
		NextPrompt: "How many years of experience do you have?",
		Record:     validRecord(),
	}

	if err := v.Validate(ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := v.Validate(&ev); err != nil {
		t.Fatalf("unexpected error for pointer: %v", err)
	}

	ev.Sequence = 0
	if err := v.Validate(ev); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent for sequence 0, got %v", err)
	}
}

func TestValidate_UnknownType(t *testing.T) {
	v := New()
	if err := v.Validate(map[string]string{"a": "b"}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}
