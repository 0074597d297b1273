// Command callsim dials the media stream endpoint the way a telephony
// provider would and plays the candidate side of a screening call.
//
// After every prompt finishes playing (its mark is echoed) the simulator
// sends one answer burst of caller audio, then stays silent so the service
// can detect the end of the turn.
package main

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-screening-call-service/internal/transport/twilio"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// 20ms of 8kHz mu-law, the frame size telephony providers send
const frameSize = 160
const frameInterval = 20 * time.Millisecond

const (
	wavFormatPCM   = 1
	wavFormatMuLaw = 7
)

func main() {
	audioFile := flag.String("audio", "", "Optional WAV file (8kHz mono, 16-bit PCM or mu-law) replayed as caller audio")
	serverURL := flag.String("server", "ws://localhost:8080/v1/media", "Media stream websocket URL")
	sessionID := flag.String("session", "", "Session ID passed as a custom parameter")
	burst := flag.Int("burst", 12, "Audio frames sent per answer")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	audio := silence(frameSize * 50)
	if *audioFile != "" {
		var err error
		if audio, err = loadMuLaw(*audioFile); err != nil {
			logger.Fatal().Err(err).Str("file", *audioFile).Msg("Failed to load audio")
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		logger.Fatal().Err(err).Str("server", *serverURL).Msg("Failed to connect")
	}
	defer conn.Close()

	streamSid := "MZ" + uuid.NewString()
	callSid := "CA" + uuid.NewString()
	params := map[string]string{}
	if *sessionID != "" {
		params["sessionId"] = *sessionID
	}

	send := func(m twilio.Message) {
		if err := conn.WriteJSON(m); err != nil {
			logger.Fatal().Err(err).Str("event", m.Event).Msg("Failed to send")
		}
	}
	send(twilio.Message{Event: twilio.EventConnected, Protocol: "Call", Version: "1.0.0"})
	send(twilio.Message{
		Event:     twilio.EventStart,
		StreamSid: streamSid,
		Start: &twilio.Start{
			StreamSid:        streamSid,
			CallSid:          callSid,
			Tracks:           []string{"inbound"},
			CustomParameters: params,
			MediaFormat:      twilio.MediaFormat{Encoding: "audio/x-mulaw", SampleRate: 8000, Channels: 1},
		},
	})
	logger.Info().Str("callSid", callSid).Str("server", *serverURL).Msg("Call started")

	var (
		offset  int
		seq     int
		prompts int
		bytesIn int
	)
	start := time.Now()

	for {
		var msg twilio.Message
		if err := conn.ReadJSON(&msg); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				logger.Info().Str("reason", ce.Text).Int("prompts", prompts).Int("audioBytesReceived", bytesIn).
					Dur("duration", time.Since(start)).Msg("Call ended by service")
				return
			}
			logger.Fatal().Err(err).Msg("Stream failed")
		}

		switch msg.Event {
		case twilio.EventMedia:
			if msg.Media != nil {
				bytesIn += base64.StdEncoding.DecodedLen(len(msg.Media.Payload))
			}
		case twilio.EventClear:
			logger.Info().Msg("Playback cleared")
		case twilio.EventMark:
			if msg.Mark == nil {
				continue
			}
			prompts++
			// Acknowledge playback, then answer
			send(twilio.Message{Event: twilio.EventMark, StreamSid: streamSid, Mark: &twilio.Mark{Name: msg.Mark.Name}})
			logger.Info().Str("mark", msg.Mark.Name).Msg("Prompt played")

			for i := 0; i < *burst; i++ {
				chunk := audio[offset : offset+frameSize]
				offset = (offset + frameSize) % (len(audio) - len(audio)%frameSize)
				seq++
				send(twilio.Message{
					Event:          twilio.EventMedia,
					StreamSid:      streamSid,
					SequenceNumber: fmt.Sprint(seq),
					Media: &twilio.Media{
						Track:     "inbound",
						Chunk:     fmt.Sprint(seq),
						Timestamp: fmt.Sprint(int(time.Since(start).Milliseconds())),
						Payload:   base64.StdEncoding.EncodeToString(chunk),
					},
				})
				time.Sleep(frameInterval)
			}
		}
	}
}

func silence(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

// loadMuLaw reads an 8kHz mono WAV file and returns its samples as mu-law.
func loadMuLaw(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	format := binary.LittleEndian.Uint16(header[20:22])
	channels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bits := binary.LittleEndian.Uint16(header[34:36])
	if channels != 1 || sampleRate != 8000 {
		return nil, fmt.Errorf("want 8000 Hz mono, got %d Hz with %d channels", sampleRate, channels)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var out []byte
	switch {
	case format == wavFormatMuLaw:
		out = data
	case format == wavFormatPCM && bits == 16:
		out = make([]byte, len(data)/2)
		for i := range out {
			out[i] = linearToMuLaw(int16(binary.LittleEndian.Uint16(data[2*i:])))
		}
	default:
		return nil, fmt.Errorf("unsupported WAV format %d with %d bits per sample", format, bits)
	}
	if len(out) < frameSize {
		return nil, errors.New("audio shorter than one frame")
	}
	return out, nil
}

// linearToMuLaw is the G.711 mu-law encoder.
func linearToMuLaw(sample int16) byte {
	const bias = 0x84
	const clip = 32635

	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > clip {
		s = clip
	}
	s += bias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}
