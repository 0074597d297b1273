// Package mock provides a deterministic, rule-based classification client
// for running calls without an LLM.
package mock

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"ai-screening-call-service/internal/service/classifier"
)

var (
	firstNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)
	punctuation = regexp.MustCompile(`[^a-z0-9 ]+`)
)

// Client labels an answer by matching category label words against the text.
// Fixed responses keyed by exact (case-insensitive) text take priority.
type Client struct {
	mu        sync.Mutex
	responses map[string]classifier.Response
	calls     int
}

// New creates a mock client.
func New() *Client {
	return &Client{responses: make(map[string]classifier.Response)}
}

// Respond fixes the response for an exact answer text.
func (c *Client) Respond(text string, resp classifier.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[strings.ToLower(strings.TrimSpace(text))] = resp
}

// Calls returns how many classifications were requested.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Classify implements classifier.Client.
func (c *Client) Classify(ctx context.Context, req classifier.Request) (classifier.Response, error) {
	if err := ctx.Err(); err != nil {
		return classifier.Response{}, err
	}

	text := strings.ToLower(strings.TrimSpace(req.Text))

	c.mu.Lock()
	c.calls++
	fixed, ok := c.responses[text]
	c.mu.Unlock()
	if ok {
		return fixed, nil
	}

	words := strings.Fields(punctuation.ReplaceAllString(text, " "))
	for _, cat := range req.Categories {
		if matches(words, string(cat.Label)) {
			return classifier.Response{
				Label:          string(cat.Label),
				ExtractedValue: firstNumber.FindString(text),
				Confidence:     0.9,
			}, nil
		}
	}
	return classifier.Response{Label: "irrelevant", Confidence: 0.5}, nil
}

// matches reports whether every word of the label appears as a word prefix
// in the text, ignoring a plural "s" on the label.
func matches(words []string, label string) bool {
	parts := strings.Split(label, "_")
	for _, p := range parts {
		stem := strings.TrimSuffix(p, "s")
		if stem == "" {
			return false
		}
		found := false
		for _, w := range words {
			if strings.HasPrefix(w, stem) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
