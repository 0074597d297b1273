package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-screening-call-service/internal/script"
	"ai-screening-call-service/internal/service/classifier"
)

func req(text string, labels ...script.Label) classifier.Request {
	r := classifier.Request{Text: text}
	for _, l := range labels {
		r.Categories = append(r.Categories, script.Category{Label: l})
	}
	return r
}

func TestClient_KeywordRules(t *testing.T) {
	c := New()
	tests := []struct {
		name  string
		req   classifier.Request
		label string
		value string
	}{
		{"years with number", req("I have 5 years of experience", "years", "fresher"), "years", "5"},
		{"singular year", req("just one year", "years", "fresher"), "years", ""},
		{"multi-word label", req("I am not comfortable sharing that", "amount", "not_comfortable"), "not_comfortable", ""},
		{"prefix match", req("I can join immediately", "short_notice", "immediate"), "immediate", ""},
		{"no match", req("what is the weather", "yes", "no"), "irrelevant", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Classify(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.label, resp.Label)
			assert.Equal(t, tt.value, resp.ExtractedValue)
		})
	}
	assert.Equal(t, len(tests), c.Calls())
}

func TestClient_FixedResponse(t *testing.T) {
	c := New()
	c.Respond("Maybe", classifier.Response{Label: "no"})

	resp, err := c.Classify(context.Background(), req(" maybe ", "yes", "no"))
	require.NoError(t, err)
	assert.Equal(t, "no", resp.Label)
}

func TestClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Classify(ctx, req("yes", "yes"))
	assert.Error(t, err)
}
