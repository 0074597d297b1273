package twilio

import (
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrStreamClosed is returned by writes after the stream has ended.
var ErrStreamClosed = errors.New("media stream closed")

// Stream is the outbound half of a Media Streams connection.
// It implements speech.MediaSink. Writes are serialized.
type Stream struct {
	conn         *websocket.Conn
	streamSid    string
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	hungUp bool
}

func newStream(conn *websocket.Conn, streamSid string, writeTimeout time.Duration) *Stream {
	return &Stream{conn: conn, streamSid: streamSid, writeTimeout: writeTimeout}
}

// StreamSid returns the Twilio stream identifier.
func (s *Stream) StreamSid() string { return s.streamSid }

// SendMedia sends one chunk of mu-law audio for playback.
func (s *Stream) SendMedia(audio []byte) error {
	return s.write(Message{
		Event:     EventMedia,
		StreamSid: s.streamSid,
		Media:     &Media{Payload: base64.StdEncoding.EncodeToString(audio)},
	})
}

// SendMark queues a mark after the audio sent so far.
func (s *Stream) SendMark(name string) error {
	return s.write(Message{
		Event:     EventMark,
		StreamSid: s.streamSid,
		Mark:      &Mark{Name: name},
	})
}

// Clear discards any buffered audio that has not been played yet.
func (s *Stream) Clear() error {
	return s.write(Message{Event: EventClear, StreamSid: s.streamSid})
}

func (s *Stream) write(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteJSON(msg)
}

func (s *Stream) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// Close ends the media stream from the server side. Twilio moves on to the
// next TwiML verb, which hangs up the call when there is none.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.hungUp = true
	deadline := time.Now().Add(5 * time.Second)
	// Bounds the wait for the peer's close reply
	_ = s.conn.SetReadDeadline(deadline)
	return s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call finished"), deadline)
}

func (s *Stream) isHungUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hungUp
}

// close marks the stream closed; later writes fail fast.
func (s *Stream) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
