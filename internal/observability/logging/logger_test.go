package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestWithTurn(t *testing.T) {
	buf := capture(t)

	l := WithTurn("sess-1", 3, 7)
	l.Info().Msg("Turn applied")

	got := decode(t, buf)
	assert.Equal(t, "sess-1", got["sessionId"])
	assert.Equal(t, float64(3), got["stateId"])
	assert.Equal(t, float64(7), got["turn"])
}

func TestWithCall_OmitsEmptyIDs(t *testing.T) {
	buf := capture(t)

	l := WithCall("sess-1", "CA1", "")
	l.Info().Msg("Call started")

	got := decode(t, buf)
	assert.Equal(t, "CA1", got["callSid"])
	_, ok := got["streamSid"]
	assert.False(t, ok)
}
