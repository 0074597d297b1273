package main

import (
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-screening-call-service/internal/models"
)

func TestDecode(t *testing.T) {
	turn, err := json.Marshal(models.TurnEvent{
		EventType: models.EventTypeTurn,
		SessionID: "sess-1",
		Sequence:  2,
		Record:    models.TurnRecord{Category: "yes", Transcript: "yes I do"},
	})
	require.NoError(t, err)

	ev, err := decode(kafka.Message{
		Key:     []byte("sess-1"),
		Value:   turn,
		Headers: []kafka.Header{{Key: "eventType", Value: []byte(models.EventTypeTurn)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", ev.SessionID)
	require.NotNil(t, ev.Turn)
	assert.Equal(t, 2, ev.Turn.Sequence)
	assert.Nil(t, ev.Summary)

	summary, err := json.Marshal(models.CallSummary{
		EventType: models.EventTypeSummary,
		SessionID: "sess-2",
		Outcome:   models.OutcomeCompleted,
	})
	require.NoError(t, err)

	// No header: the payload field decides
	ev, err = decode(kafka.Message{Value: summary})
	require.NoError(t, err)
	require.NotNil(t, ev.Summary)
	assert.Equal(t, models.OutcomeCompleted, ev.Summary.Outcome)
	assert.Equal(t, "sess-2", ev.SessionID)
}

func TestDecode_UnknownAndInvalid(t *testing.T) {
	ev, err := decode(kafka.Message{Key: []byte("k"), Value: []byte(`{"eventType":"other"}`)})
	require.NoError(t, err)
	assert.Equal(t, "k", ev.SessionID)
	assert.Nil(t, ev.Turn)

	_, err = decode(kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
