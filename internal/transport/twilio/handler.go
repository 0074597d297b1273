package twilio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-screening-call-service/internal/observability/logging"
	"ai-screening-call-service/internal/observability/metrics"
)

// Call describes a stream that has sent its start event.
type Call struct {
	StreamSid        string
	CallSid          string
	AccountSid       string
	CustomParameters map[string]string
	MediaFormat      MediaFormat
	Stream           *Stream
}

// SessionID returns the session identifier passed by the TwiML
// <Parameter name="sessionId">, or empty.
func (c *Call) SessionID() string {
	return c.CustomParameters["sessionId"]
}

// Listener receives the inbound events of one call.
// Callbacks are invoked from the connection's read goroutine, in order.
type Listener interface {
	OnAudio(audio []byte)
	OnMark(name string)
	// OnStop is called exactly once. err is nil on a stop event.
	OnStop(err error)
}

// CallHandler accepts new calls.
type CallHandler interface {
	Accept(ctx context.Context, call *Call) (Listener, error)
}

// Options tunes the websocket connection.
type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	StartTimeout time.Duration
}

// DefaultOptions returns the default websocket options.
func DefaultOptions() Options {
	return Options{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		StartTimeout: 10 * time.Second,
	}
}

// Handler upgrades Media Streams connections and drives the read loop.
type Handler struct {
	calls    CallHandler
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewHandler creates a websocket handler dispatching calls to calls.
func NewHandler(calls CallHandler, opts Options) *Handler {
	return &Handler{
		calls: calls,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Twilio does not send an Origin header
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logging.WithComponent("twilio"),
		metrics: metrics.DefaultMetrics,
	}
}

// ServeHTTP upgrades the request and blocks until the stream ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade websocket")
		return
	}
	defer conn.Close()

	h.metrics.RecordMediaStream(1)
	defer h.metrics.RecordMediaStream(-1)

	// The call outlives the upgrade request's context on server shutdown;
	// the read loop ends it instead.
	h.serve(context.WithoutCancel(r.Context()), conn)
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn) {
	var (
		call     *Call
		listener Listener
	)
	done := make(chan struct{})
	defer close(done)

	stop := func(err error) {
		if call != nil {
			call.Stream.close()
		}
		if listener != nil {
			listener.OnStop(err)
			listener = nil
		}
	}

	if h.opts.StartTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.opts.StartTimeout))
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			hungUp := call != nil && call.Stream.isHungUp()
			if !hungUp && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn().Err(err).Msg("Media stream read error")
				stop(err)
			} else {
				stop(nil)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn().Err(err).Msg("Ignoring malformed media stream message")
			continue
		}

		switch msg.Event {
		case EventConnected:
			h.logger.Debug().Str("protocol", msg.Protocol).Msg("Media stream connected")

		case EventStart:
			if call != nil || msg.Start == nil {
				continue
			}
			_ = conn.SetReadDeadline(time.Time{})
			call = &Call{
				StreamSid:        firstNonEmpty(msg.Start.StreamSid, msg.StreamSid),
				CallSid:          msg.Start.CallSid,
				AccountSid:       msg.Start.AccountSid,
				CustomParameters: msg.Start.CustomParameters,
				MediaFormat:      msg.Start.MediaFormat,
			}
			call.Stream = newStream(conn, call.StreamSid, h.opts.WriteTimeout)

			l, err := h.calls.Accept(ctx, call)
			if err != nil {
				h.logger.Error().Err(err).Str("callSid", call.CallSid).Msg("Call rejected")
				call.Stream.close()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "call rejected"),
					time.Now().Add(time.Second))
				return
			}
			listener = l
			callLog := logging.WithCall(call.SessionID(), call.CallSid, call.StreamSid)
			callLog.Info().
				Str("encoding", call.MediaFormat.Encoding).
				Int("sampleRate", call.MediaFormat.SampleRate).
				Msg("Media stream started")
			if h.opts.PingInterval > 0 {
				go h.pingLoop(call.Stream, done)
			}

		case EventMedia:
			if listener == nil || msg.Media == nil {
				continue
			}
			if msg.Media.Track != "" && msg.Media.Track != "inbound" {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				h.logger.Warn().Err(err).Msg("Ignoring undecodable media payload")
				continue
			}
			listener.OnAudio(audio)

		case EventMark:
			if listener != nil && msg.Mark != nil {
				listener.OnMark(msg.Mark.Name)
			}

		case EventStop:
			h.logger.Info().Str("streamSid", msg.StreamSid).Msg("Media stream stopped")
			stop(nil)
			return

		default:
			h.logger.Debug().Str("event", msg.Event).Msg("Ignoring media stream event")
		}
	}
}

func (h *Handler) pingLoop(s *Stream, done <-chan struct{}) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				if !errors.Is(err, ErrStreamClosed) {
					h.logger.Debug().Err(err).Msg("Ping failed")
				}
				return
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
