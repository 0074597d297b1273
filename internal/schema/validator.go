// Package schema validates outbound events against their JSON schemas
// before they are published.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"ai-screening-call-service/internal/models"
	"ai-screening-call-service/internal/observability/logging"
)

var (
	ErrInvalidEvent = errors.New("event does not match schema")
	ErrUnknownEvent = errors.New("no schema for event")
)

const turnRecordSchema = `{
	"type": "object",
	"required": ["stateId", "question", "transcript", "category", "attempt", "boundary", "timestamp"],
	"properties": {
		"stateId": {"type": "integer"},
		"question": {"type": "string"},
		"transcript": {"type": "string"},
		"category": {"type": "string", "minLength": 1},
		"extractedValue": {"type": "string"},
		"attempt": {"type": "integer", "minimum": 0},
		"boundary": {"enum": ["SHORT_PAUSE", "LONG_PAUSE", "BARGE_IN"]},
		"classificationUnavailable": {"type": "boolean"},
		"timestamp": {"type": "integer"}
	}
}`

var turnSchema = `{
	"type": "object",
	"required": ["eventType", "sessionId", "sequence", "record"],
	"properties": {
		"eventType": {"const": "` + models.EventTypeTurn + `"},
		"sessionId": {"type": "string", "minLength": 1},
		"callSid": {"type": "string"},
		"sequence": {"type": "integer", "minimum": 1},
		"nextPrompt": {"type": "string"},
		"record": ` + turnRecordSchema + `
	}
}`

var summarySchema = `{
	"type": "object",
	"required": ["eventType", "sessionId", "outcome", "questionsAnswered", "scriptLength", "history", "startedAt", "endedAt"],
	"properties": {
		"eventType": {"const": "` + models.EventTypeSummary + `"},
		"sessionId": {"type": "string", "minLength": 1},
		"callSid": {"type": "string"},
		"outcome": {"enum": ["completed", "disconnected", "busy_disconnect", "failed"]},
		"questionsAnswered": {"type": "integer", "minimum": 0},
		"scriptLength": {"type": "integer", "minimum": 0},
		"history": {"type": "array", "items": ` + turnRecordSchema + `},
		"startedAt": {"type": "integer"},
		"endedAt": {"type": "integer", "minimum": 1}
	}
}`

// Validator checks turn events and call summaries.
type Validator struct {
	turn    *gojsonschema.Schema
	summary *gojsonschema.Schema
	logger  zerolog.Logger
}

// New compiles the event schemas.
func New() *Validator {
	return &Validator{
		turn:    mustCompile(turnSchema),
		summary: mustCompile(summarySchema),
		logger:  logging.WithComponent("schema"),
	}
}

func mustCompile(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("schema: compile: %v", err))
	}
	return schema
}

// Validate checks a models.TurnEvent or models.CallSummary (or pointers to
// them). Other types return ErrUnknownEvent.
func (v *Validator) Validate(event any) error {
	var (
		schema *gojsonschema.Schema
		kind   string
	)
	switch event.(type) {
	case models.TurnEvent, *models.TurnEvent:
		schema, kind = v.turn, models.EventTypeTurn
	case models.CallSummary, *models.CallSummary:
		schema, kind = v.summary, models.EventTypeSummary
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("validate %s: %w", kind, err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		problems[i] = desc.String()
	}
	v.logger.Warn().Str("eventType", kind).Strs("errors", problems).Msg("Schema validation failed")
	return fmt.Errorf("%w: %s: %s", ErrInvalidEvent, kind, strings.Join(problems, "; "))
}
