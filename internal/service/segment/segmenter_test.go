package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-screening-call-service/internal/models"
)

func testConfig() Config {
	return Config{ShortSilence: 200 * time.Millisecond, LongSilence: 8 * time.Second}
}

func frag(text string, at time.Time) models.TranscriptFragment {
	return models.TranscriptFragment{Text: text, ArrivalTime: at}
}

func TestSegmenter_ShortPauseOncePerGap(t *testing.T) {
	t0 := time.Now()
	s := NewSegmenter("sess-1", testConfig(), nil, t0)

	assert.Nil(t, s.Feed(frag("four years", t0)))
	assert.Nil(t, s.Tick(t0.Add(150*time.Millisecond)))

	b := s.Tick(t0.Add(200 * time.Millisecond))
	require.NotNil(t, b)
	assert.Equal(t, models.ShortPause, b.Kind)
	assert.Equal(t, "four years", b.AccumulatedText)
	assert.Equal(t, "sess-1", b.SessionID)
	assert.Equal(t, uint64(1), b.Seq)
	assert.Equal(t, 0, b.Turn)

	assert.Nil(t, s.Tick(t0.Add(400*time.Millisecond)), "short pause fires once per silence gap")
	assert.Equal(t, "four years", s.Text(), "short pause does not clear the buffer")

	s.Feed(frag("of experience", t0.Add(500*time.Millisecond)))
	b = s.Tick(t0.Add(700 * time.Millisecond))
	require.NotNil(t, b)
	assert.Equal(t, "four years of experience", b.AccumulatedText)
	assert.Equal(t, uint64(2), b.Seq)
}

func TestSegmenter_NoShortPauseWithoutText(t *testing.T) {
	t0 := time.Now()
	s := NewSegmenter("sess-1", testConfig(), nil, t0)

	assert.Nil(t, s.Feed(frag("   ", t0)))
	assert.Nil(t, s.Tick(t0.Add(time.Second)))
	assert.Equal(t, uint64(0), s.Seq(), "empty fragments are not speech")
}

func TestSegmenter_LongPauseOnEmptyBuffer(t *testing.T) {
	t0 := time.Now()
	s := NewSegmenter("sess-1", testConfig(), nil, t0)

	assert.Nil(t, s.Tick(t0.Add(7999*time.Millisecond)))
	b := s.Tick(t0.Add(8 * time.Second))
	require.NotNil(t, b)
	assert.Equal(t, models.LongPause, b.Kind)
	assert.Equal(t, "", b.AccumulatedText)

	assert.Nil(t, s.Tick(t0.Add(20*time.Second)), "long pause fires once per silence gap")
}

func TestSegmenter_LongWinsWhenBothDue(t *testing.T) {
	t0 := time.Now()
	s := NewSegmenter("sess-1", testConfig(), nil, t0)
	s.Feed(frag("hello", t0))

	b := s.Tick(t0.Add(9 * time.Second))
	require.NotNil(t, b)
	assert.Equal(t, models.LongPause, b.Kind)
	assert.Nil(t, s.Tick(t0.Add(9*time.Second+20*time.Millisecond)))
}

func TestSegmenter_CommitCarriesLaterFragments(t *testing.T) {
	t0 := time.Now()
	s := NewSegmenter("sess-1", testConfig(), nil, t0)
	firstTurnId := s.TurnId()

	s.Feed(frag("two months", t0))
	b := s.Tick(t0.Add(250 * time.Millisecond))
	require.NotNil(t, b)

	s.Feed(frag("maybe less", t0.Add(300*time.Millisecond)))
	s.Commit(b)

	assert.Equal(t, 1, s.Turn())
	assert.NotEqual(t, firstTurnId, s.TurnId())
	assert.Equal(t, "maybe less", s.Text(), "fragments after the boundary start the next turn")

	s.Commit(b)
	assert.Equal(t, 1, s.Turn(), "stale commit is a no-op")
}

func TestSegmenter_BargeIn(t *testing.T) {
	t0 := time.Now()
	s := NewSegmenter("sess-1", testConfig(), nil, t0)
	s.SetOutputActive()
	require.True(t, s.OutputActive())

	assert.Nil(t, s.Tick(t0.Add(30*time.Second)), "timers are suspended during output")
	assert.Nil(t, s.Feed(frag("", t0.Add(time.Second))), "empty fragment is not a barge-in")

	b := s.Feed(frag("actually I have three offers", t0.Add(2*time.Second)))
	require.NotNil(t, b)
	assert.Equal(t, models.BargeIn, b.Kind)
	assert.Equal(t, "actually I have three offers", b.AccumulatedText)
	assert.False(t, s.OutputActive())

	b = s.Tick(t0.Add(2*time.Second + 200*time.Millisecond))
	require.NotNil(t, b)
	assert.Equal(t, models.ShortPause, b.Kind)
	assert.Equal(t, "actually I have three offers", b.AccumulatedText, "barge-in fragment opens the new turn")
}

func TestSegmenter_ResumeRestartsClock(t *testing.T) {
	t0 := time.Now()
	s := NewSegmenter("sess-1", testConfig(), nil, t0)
	s.SetOutputActive()

	resumed := t0.Add(5 * time.Second)
	s.Resume(resumed)

	assert.Nil(t, s.Tick(resumed.Add(7*time.Second)))
	b := s.Tick(resumed.Add(8 * time.Second))
	require.NotNil(t, b)
	assert.Equal(t, models.LongPause, b.Kind)
}

func TestSegmenter_ArrivalOrderPreserved(t *testing.T) {
	t0 := time.Now()
	s := NewSegmenter("sess-1", testConfig(), nil, t0)

	words := []string{"one", "two", "three", "four"}
	for i, w := range words {
		s.Feed(frag(w, t0.Add(time.Duration(i)*10*time.Millisecond)))
	}
	assert.Equal(t, "one two three four", s.Text())
	assert.Equal(t, uint64(4), s.Seq())
}

func TestSegmenter_MergeOverlap(t *testing.T) {
	cfg := testConfig()
	cfg.MergeOverlap = true
	t0 := time.Now()
	s := NewSegmenter("sess-1", cfg, nil, t0)

	s.Feed(frag("I want", t0))
	s.Feed(frag("I want to", t0))
	s.Feed(frag("I want to join", t0))
	s.Feed(frag("want to join", t0))
	s.Feed(frag("I want to join in two months", t0))

	assert.Equal(t, "I want to join in two months", s.Text())
}

func TestMergeAddition(t *testing.T) {
	tests := []struct {
		name     string
		buffered string
		next     string
		want     string
	}{
		{"empty buffer", "", "hello there", "hello there"},
		{"empty fragment", "hello", "  ", ""},
		{"contained", "I have two offers", "two offers", ""},
		{"contained case-insensitive", "I have Two Offers", "two offers", ""},
		{"overlap trimmed", "I have two", "two offers now", "offers now"},
		{"no overlap", "yes", "about sixty days", "about sixty days"},
		{"partial word is not contained", "sixty", "six", "six"},
		{"whitespace normalized", "a  b", " b   c ", "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeAddition(tt.buffered, tt.next))
		})
	}
}
