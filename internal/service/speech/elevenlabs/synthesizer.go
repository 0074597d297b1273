// Package elevenlabs streams text-to-speech audio from ElevenLabs in the
// 8kHz mu-law format Twilio media streams expect.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultVoice   = "21m00Tcm4TlvDq8ikWAM"
	defaultModel   = "eleven_flash_v2"
	defaultFormat  = "ulaw_8000"

	// 160 bytes is 20ms of 8kHz mu-law audio.
	chunkSize = 160 * 8
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("empty text")

// Config holds ElevenLabs synthesis settings.
type Config struct {
	APIKey       string
	VoiceID      string
	Model        string
	OutputFormat string
	BaseURL      string
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type request struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesizer implements speech.Synthesizer with the streaming endpoint.
type Synthesizer struct {
	cfg    Config
	client *http.Client
}

// New creates a synthesizer. A nil client gets a 60s timeout client.
func New(cfg Config, client *http.Client) *Synthesizer {
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultVoice
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = defaultFormat
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Synthesizer{cfg: cfg, client: client}
}

// Stream synthesizes text and hands audio to chunk as it arrives.
func (s *Synthesizer) Stream(ctx context.Context, text string, chunk func([]byte) error) error {
	if text == "" {
		return ErrEmptyText
	}

	body, err := json.Marshal(request{
		Text:    text,
		ModelID: s.cfg.Model,
		VoiceSettings: voiceSettings{
			Stability:       0.6,
			SimilarityBoost: 1.0,
			Style:           0.1,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	q := url.Values{}
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("optimize_streaming_latency", "4")
	endpoint := fmt.Sprintf("%s/text-to-speech/%s/stream?%s", s.cfg.BaseURL, url.PathEscape(s.cfg.VoiceID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/basic")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	buf := make([]byte, chunkSize)
	for {
		n, rerr := io.ReadFull(resp.Body, buf)
		if n > 0 {
			out := make([]byte, n)
			copy(out, buf[:n])
			if err := chunk(out); err != nil {
				return err
			}
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			return nil
		default:
			return fmt.Errorf("read audio: %w", rerr)
		}
	}
}
