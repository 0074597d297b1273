package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizer_Stream(t *testing.T) {
	audio := make([]byte, chunkSize*2+100)
	for i := range audio {
		audio[i] = byte(i)
	}

	var gotPath, gotKey, gotFormat string
	var gotBody request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotFormat = r.URL.Query().Get("output_format")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	s := New(Config{APIKey: "key", VoiceID: "voice-1", BaseURL: srv.URL}, srv.Client())

	var chunks [][]byte
	err := s.Stream(context.Background(), "Hello there", func(b []byte) error {
		chunks = append(chunks, b)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "/text-to-speech/voice-1/stream", gotPath)
	assert.Equal(t, "key", gotKey)
	assert.Equal(t, "ulaw_8000", gotFormat)
	assert.Equal(t, "Hello there", gotBody.Text)
	assert.Equal(t, defaultModel, gotBody.ModelID)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], chunkSize)
	assert.Len(t, chunks[2], 100)

	var joined []byte
	for _, c := range chunks {
		joined = append(joined, c...)
	}
	assert.Equal(t, audio, joined)
}

func TestSynthesizer_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":{"status":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL}, srv.Client())
	err := s.Stream(context.Background(), "Hello", func([]byte) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSynthesizer_ChunkErrorStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, chunkSize*4))
	}))
	defer srv.Close()

	sinkErr := errors.New("socket closed")
	calls := 0
	s := New(Config{BaseURL: srv.URL}, srv.Client())
	err := s.Stream(context.Background(), "Hello", func([]byte) error {
		calls++
		return sinkErr
	})
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 1, calls)
}

func TestSynthesizer_EmptyText(t *testing.T) {
	s := New(Config{}, nil)
	err := s.Stream(context.Background(), "", func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrEmptyText)
}
