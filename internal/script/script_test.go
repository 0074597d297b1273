package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScript = `
greeting: "Hello."
closing: "Goodbye."
questions:
  - state: 1
    question: "How many years of experience do you have?"
    max_followups: 2
    response_categories:
      years: "Has years"
      fresher: "Is a fresher"
      Years: "Duplicate, ignored"
    follow_up_instructions:
      years: "Out of {extracted_value} years, how many are relevant?"
      years: "second mapping, ignored"
      fresher: ""
      default: "Could you clarify?"
  - state: 2
    question: "What is your notice period?"
    response_categories:
      short_notice: "Less than 60 days"
      long_notice: "60 days or more"
    follow_up_instructions:
      long_notice: "Can you reduce it?"
      short_notice: ""
      irrelevant: "Please say it in days or months."
      default: "Please specify."
    threshold:
      value: 2
      unit: Months
      below: short_notice
      above: long_notice
  - state: 5
    question: "Anything else?"
    skip_classification: true
`

func TestParse_Valid(t *testing.T) {
	s, err := Parse([]byte(validScript))
	require.NoError(t, err)

	assert.Equal(t, "Hello.", s.Greeting)
	assert.Equal(t, "Goodbye.", s.Closing)
	require.Equal(t, 3, s.Len())
	assert.Nil(t, s.Question(3))
	assert.Nil(t, s.Question(-1))

	q := s.Question(0)
	assert.Equal(t, 1, q.StateID)
	assert.Equal(t, 2, q.MaxFollowUps)
	require.Len(t, q.Categories, 2, "duplicate labels collapse onto the first declaration")
	assert.Equal(t, "Has years", q.Categories[0].Description)

	assert.Equal(t, "Out of {extracted_value} years, how many are relevant?", q.FollowUp("years"))
	assert.Equal(t, "", q.FollowUp("fresher"))
	assert.Equal(t, "Could you clarify?", q.FollowUp(Irrelevant))

	notice := s.Question(1)
	assert.Equal(t, defaultMaxFollowUps, notice.MaxFollowUps)
	require.NotNil(t, notice.Threshold)
	assert.Equal(t, "month", notice.Threshold.Unit)
	assert.Equal(t, "Please say it in days or months.", notice.FollowUp(Irrelevant))

	assert.True(t, s.Question(2).SkipClassification)
}

func TestParse_BareList(t *testing.T) {
	doc := `[{"state": 1, "question": "Q?", "max_followups": 0,
	  "response_categories": {"yes": "y", "no": "n"},
	  "follow_up_instructions": {"default": ""}}]`

	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "", s.Greeting)
}

func TestQuestion_Resolve(t *testing.T) {
	s, err := Parse([]byte(validScript))
	require.NoError(t, err)
	q := s.Question(0)

	tests := []struct {
		raw  string
		want Label
	}{
		{"years", "years"},
		{"  YEARS ", "years"},
		{"fresher", "fresher"},
		{"intern", Irrelevant},
		{"", Irrelevant},
		{"irrelevant", Irrelevant},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, q.Resolve(tt.raw))
		})
	}
}

func TestThreshold_Classify(t *testing.T) {
	th := Threshold{Value: 60, Unit: "day", Below: "short", Above: "long"}

	assert.Equal(t, Label("short"), th.Classify(59.9))
	assert.Equal(t, Label("long"), th.Classify(60))
	assert.Equal(t, Label("long"), th.Classify(61))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ``},
		{"no questions", `questions: []`},
		{"scalar document", `hello`},
		{"empty prompt", `
- state: 1
  question: ""
  response_categories: {a: x}
  follow_up_instructions: {default: ""}`},
		{"negative followups", `
- state: 1
  question: "Q"
  max_followups: -1
  response_categories: {a: x}
  follow_up_instructions: {default: ""}`},
		{"missing follow-up and default", `
- state: 1
  question: "Q"
  response_categories: {a: x, b: y}
  follow_up_instructions: {a: "A?"}`},
		{"irrelevant has no follow-up and no default", `
- state: 1
  question: "Q"
  response_categories: {a: x}
  follow_up_instructions: {a: "A?"}`},
		{"follow-up for undeclared category", `
- state: 1
  question: "Q"
  response_categories: {a: x}
  follow_up_instructions: {b: "B?", default: ""}`},
		{"no categories", `
- state: 1
  question: "Q"
  follow_up_instructions: {default: ""}`},
		{"non-increasing state", `
- state: 2
  question: "Q1"
  skip_classification: true
- state: 2
  question: "Q2"
  skip_classification: true`},
		{"threshold label undeclared", `
- state: 1
  question: "Q"
  response_categories: {short: x, long: y}
  follow_up_instructions: {default: ""}
  threshold: {value: 60, unit: days, below: short, above: other}`},
		{"threshold unit unknown", `
- state: 1
  question: "Q"
  response_categories: {short: x, long: y}
  follow_up_instructions: {default: ""}
  threshold: {value: 60, unit: fortnights, below: short, above: long}`},
		{"threshold not positive", `
- state: 1
  question: "Q"
  response_categories: {short: x, long: y}
  follow_up_instructions: {default: ""}
  threshold: {value: 0, below: short, above: long}`},
		{"threshold on skip question", `
- state: 1
  question: "Q"
  skip_classification: true
  threshold: {value: 60, below: short, above: long}`},
		{"reserved default category", `
- state: 1
  question: "Q"
  response_categories: {default: x}
  follow_up_instructions: {default: ""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidScript)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScript), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_BundledScript(t *testing.T) {
	s, err := Load(filepath.Join("..", "..", "configs", "screening.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 6, s.Len())
	require.NotNil(t, s.Question(4).Threshold)
	assert.Equal(t, 60.0, s.Question(4).Threshold.Value)
}

func TestCanonicalUnit(t *testing.T) {
	assert.Equal(t, "day", CanonicalUnit(""))
	assert.Equal(t, "week", CanonicalUnit("Weeks"))
	assert.Equal(t, "month", CanonicalUnit("months"))
	assert.Equal(t, "year", CanonicalUnit("yrs"))
	assert.Equal(t, "", CanonicalUnit("decade"))
	assert.Equal(t, 30.0, UnitDays("month"))
}
