// Package classifier resolves a candidate's answer into one declared category.
//
// The Adapter wraps an external Client (an LLM behind an HTTP API in
// production) with a bounded per-attempt timeout, a retry budget, a magnitude
// check for threshold questions and a memo that keeps repeated inputs stable.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ai-screening-call-service/internal/observability/metrics"
	"ai-screening-call-service/internal/script"
)

// ErrUnavailable is returned once the retry budget is spent without an answer.
var ErrUnavailable = errors.New("classification unavailable")

// Request is what the external classification collaborator receives.
// Categories carry the question's descriptions verbatim.
type Request struct {
	StateID    int
	Question   string
	Text       string
	Categories []script.Category
}

// Response is the collaborator's raw answer. Label may be anything; the
// Adapter resolves it against the question.
type Response struct {
	Label          string
	ExtractedValue string
	Confidence     float64
}

// Client is the external classification collaborator.
type Client interface {
	Classify(ctx context.Context, req Request) (Response, error)
}

// Source tells which signal produced a Result.
type Source string

const (
	SourceSemantic  Source = "semantic"
	SourceMagnitude Source = "magnitude"
	SourceEmpty     Source = "empty"
)

// Result is the resolved classification of one turn.
type Result struct {
	Category       script.Label
	ExtractedValue string
	Confidence     float64
	Source         Source
}

// Decisive reports whether the result names a declared category.
func (r Result) Decisive() bool {
	return r.Category != "" && r.Category != script.Irrelevant
}

// Config holds the adapter's retry and timeout policy.
type Config struct {
	Timeout        time.Duration // per attempt
	MaxRetries     int           // attempts after the first
	InitialBackoff time.Duration
	MemoSize       int // 0 disables memoization
}

// DefaultConfig returns the default policy.
func DefaultConfig() Config {
	return Config{
		Timeout:        3 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 100 * time.Millisecond,
		MemoSize:       1024,
	}
}

// Adapter implements the classification contract over a Client.
// Safe for concurrent use by many sessions.
type Adapter struct {
	client   Client
	cfg      Config
	provider string
	memo     *memo
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewAdapter creates an adapter. provider labels metrics and logs.
func NewAdapter(client Client, provider string, cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	a := &Adapter{
		client:   client,
		cfg:      cfg,
		provider: provider,
		metrics:  metrics.DefaultMetrics,
		logger:   log.With().Str("component", "classifier").Str("provider", provider).Logger(),
	}
	if cfg.MemoSize > 0 {
		a.memo = newMemo(cfg.MemoSize)
	}
	return a
}

// Classify resolves text against q.
//
// Empty text resolves to Irrelevant without an outbound call. On threshold
// questions a parsed duration decides the category by magnitude and wins
// over the semantic label. Errors always wrap ErrUnavailable.
func (a *Adapter) Classify(ctx context.Context, text string, q *script.Question) (Result, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return Result{Category: script.Irrelevant, Source: SourceEmpty}, nil
	}

	if q.Threshold != nil {
		if d, ok := ParseDuration(text); ok {
			days := d.Days / script.UnitDays(q.Threshold.Unit)
			return Result{
				Category:       q.Threshold.Classify(days),
				ExtractedValue: d.Phrase,
				Confidence:     1,
				Source:         SourceMagnitude,
			}, nil
		}
	}

	key := memoKey(q.StateID, text)
	if r, ok := a.memo.get(key); ok {
		return r, nil
	}

	start := time.Now()
	resp, err := a.call(ctx, Request{
		StateID:    q.StateID,
		Question:   q.Prompt,
		Text:       text,
		Categories: q.Descriptions(),
	})
	a.metrics.RecordClassification(a.provider, err, time.Since(start).Seconds())
	if err != nil {
		a.logger.Warn().Err(err).Int("stateId", q.StateID).Msg("Classification unavailable")
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	r := Result{
		Category:       q.Resolve(resp.Label),
		ExtractedValue: strings.TrimSpace(resp.ExtractedValue),
		Confidence:     resp.Confidence,
		Source:         SourceSemantic,
	}
	if r.Category == script.Irrelevant && !strings.EqualFold(strings.TrimSpace(resp.Label), string(script.Irrelevant)) {
		a.logger.Debug().Str("label", resp.Label).Int("stateId", q.StateID).Msg("Undeclared label resolved to irrelevant")
	}
	a.memo.put(key, r)
	return r, nil
}

func (a *Adapter) call(ctx context.Context, req Request) (Response, error) {
	b := backoff.NewExponentialBackOff()
	if a.cfg.InitialBackoff > 0 {
		b.InitialInterval = a.cfg.InitialBackoff
	}

	attempt := 0
	op := func() (Response, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()

		resp, err := a.client.Classify(actx, req)
		if err != nil {
			a.logger.Debug().Err(err).Int("attempt", attempt).Msg("Classification attempt failed")
			if ctx.Err() != nil {
				return Response{}, backoff.Permanent(ctx.Err())
			}
			return Response{}, err
		}
		return resp, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(a.cfg.MaxRetries+1)),
	)
}
