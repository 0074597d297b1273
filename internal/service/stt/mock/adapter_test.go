package mock

import (
	"context"
	"sync"
	"testing"
	"time"
)

// testCallback implements stt.Callback for testing
type testCallback struct {
	mu       sync.Mutex
	partials []string
	finals   []finalResult
	errors   []error
}

type finalResult struct {
	text       string
	confidence float64
}

func (c *testCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *testCallback) OnFinal(text string, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, finalResult{text, confidence})
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *testCallback) getPartials() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.partials...)
}

func (c *testCallback) getFinals() []finalResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]finalResult{}, c.finals...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

var twoUtterances = []SimulatedUtterance{
	{Partials: []string{"I have", "I have five"}, Final: "I have five years", Confidence: 0.9},
	{Partials: []string{"No"}, Final: "No offers", Confidence: 0.95},
}

func TestAdapter_Start(t *testing.T) {
	adapter := New()
	cb := &testCallback{}

	if err := adapter.Start(context.Background(), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.cb != cb {
		t.Error("expected callback to be set")
	}
}

func TestAdapter_ReplaysUtterancesInOrder(t *testing.T) {
	adapter := NewWithUtterances(twoUtterances, 0)
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)

	// 2 partials + final, then 1 partial + final
	for i := 0; i < 5; i++ {
		if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Callbacks are asynchronous; keep them ordered
		n := i + 1
		waitFor(t, func() bool { return len(cb.getPartials())+len(cb.getFinals()) == n })
	}

	partials := cb.getPartials()
	if len(partials) != 3 || partials[0] != "I have" || partials[2] != "No" {
		t.Errorf("unexpected partials %v", partials)
	}
	finals := cb.getFinals()
	if len(finals) != 2 {
		t.Fatalf("expected 2 finals, got %d", len(finals))
	}
	if finals[0].text != "I have five years" || finals[1].text != "No offers" {
		t.Errorf("unexpected finals %v", finals)
	}
	if finals[1].confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", finals[1].confidence)
	}
}

func TestAdapter_StopsAfterLastUtterance(t *testing.T) {
	adapter := NewWithUtterances(twoUtterances[1:], 0)
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)

	for i := 0; i < 6; i++ {
		adapter.SendAudio(context.Background(), []byte("audio"))
	}
	waitFor(t, func() bool { return len(cb.getFinals()) == 1 })
	time.Sleep(20 * time.Millisecond)

	if got := len(cb.getFinals()); got != 1 {
		t.Errorf("expected exactly 1 final, got %d", got)
	}
	if adapter.Frames() != 2 {
		t.Errorf("expected 2 frames counted, got %d", adapter.Frames())
	}
}

func TestAdapter_Close_Idempotent(t *testing.T) {
	adapter := New()
	adapter.Start(context.Background(), &testCallback{})

	adapter.Close()
	if err := adapter.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
	if !adapter.closed {
		t.Error("expected adapter to be closed")
	}
}

func TestAdapter_NoCallbacksAfterClose(t *testing.T) {
	adapter := NewWithUtterances(twoUtterances, 20*time.Millisecond)
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)

	adapter.SendAudio(context.Background(), []byte("audio"))
	adapter.Close()
	time.Sleep(50 * time.Millisecond)

	if len(cb.getPartials()) != 0 {
		t.Error("expected pending callbacks to be suppressed after close")
	}
	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdapter_NoCallbackSet(t *testing.T) {
	adapter := New()

	// Should not panic
	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDefaultUtterances(t *testing.T) {
	if len(DefaultUtterances) != 6 {
		t.Errorf("expected 6 default utterances, got %d", len(DefaultUtterances))
	}

	for i, utt := range DefaultUtterances {
		if len(utt.Partials) == 0 {
			t.Errorf("utterance %d has no partials", i)
		}
		if utt.Final == "" {
			t.Errorf("utterance %d has empty final", i)
		}
		if utt.Confidence <= 0 || utt.Confidence > 1 {
			t.Errorf("utterance %d has invalid confidence %f", i, utt.Confidence)
		}
	}
}

func TestAdapter_ThreadSafety(t *testing.T) {
	adapter := New()
	adapter.Start(context.Background(), &testCallback{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				adapter.SendAudio(context.Background(), []byte("audio"))
				time.Sleep(time.Millisecond)
			}
		}()
	}

	wg.Wait()
	adapter.Close()
}
