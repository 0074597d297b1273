// Package media connects Twilio media streams to screening sessions. Each
// accepted call gets a speech player on the outbound stream, an STT session
// for the inbound audio and an orchestrator driving the script.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"ai-screening-call-service/internal/observability/logging"
	"ai-screening-call-service/internal/service/audio"
	"ai-screening-call-service/internal/service/orchestrator"
	"ai-screening-call-service/internal/service/speech"
	"ai-screening-call-service/internal/service/stt"
	"ai-screening-call-service/internal/transport/twilio"
)

// STTFactory opens a new STT adapter for one call.
type STTFactory func(ctx context.Context) (stt.Adapter, error)

// Server implements twilio.CallHandler.
type Server struct {
	manager  *orchestrator.Manager
	synth    speech.Synthesizer
	newSTT   STTFactory
	provider string
	limits   audio.Limits
	logger   zerolog.Logger
}

// NewServer creates a call handler starting sessions on manager.
func NewServer(manager *orchestrator.Manager, synth speech.Synthesizer, newSTT STTFactory, provider string, limits audio.Limits) *Server {
	return &Server{
		manager:  manager,
		synth:    synth,
		newSTT:   newSTT,
		provider: provider,
		limits:   limits,
		logger:   logging.WithComponent("media"),
	}
}

// Accept starts a screening session for call.
func (s *Server) Accept(ctx context.Context, call *twilio.Call) (twilio.Listener, error) {
	adapter, err := s.newSTT(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stt session: %w", err)
	}

	player := speech.NewPlayer(s.synth, call.Stream)
	orch, err := s.manager.Start(ctx, call.SessionID(), call.CallSid, player)
	if err != nil {
		player.Close()
		_ = adapter.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}

	handler := audio.NewHandler(adapter, orch, s.provider, orch.SessionID(), s.limits)
	if err := handler.Start(ctx); err != nil {
		orch.TransportLost(err)
		player.Close()
		return nil, fmt.Errorf("start stt: %w", err)
	}

	l := &callListener{
		ctx:     ctx,
		orch:    orch,
		player:  player,
		handler: handler,
		logger:  logging.WithCall(orch.SessionID(), call.CallSid, call.StreamSid).With().Str("component", "media").Logger(),
	}

	// Hang up once the session has finished, closing prompt included
	go func() {
		<-orch.Done()
		if err := call.Stream.Close(); err != nil {
			l.logger.Debug().Err(err).Msg("Failed to close media stream")
		}
	}()

	l.logger.Info().Msg("Screening call accepted")
	return l, nil
}

// callListener feeds one call's inbound events to its session.
type callListener struct {
	ctx     context.Context
	orch    *orchestrator.Orchestrator
	player  *speech.Player
	handler *audio.Handler
	logger  zerolog.Logger

	lostOnce sync.Once
}

func (l *callListener) OnAudio(chunk []byte) {
	err := l.handler.SendAudio(l.ctx, chunk)
	if err == nil {
		return
	}
	if errors.Is(err, audio.ErrLimitExceeded) {
		l.lost(err)
		return
	}
	l.logger.Debug().Err(err).Msg("Failed to forward audio")
}

func (l *callListener) OnMark(name string) {
	l.player.OnMark(name)
}

func (l *callListener) OnStop(err error) {
	if cerr := l.handler.Close(); cerr != nil {
		l.logger.Debug().Err(cerr).Msg("Failed to close stt session")
	}
	l.lost(err)
	l.player.Close()

	stats := l.handler.Stats()
	l.logger.Info().
		Int64("audioBytes", stats.AudioBytes).
		Int("partials", stats.Partials).
		Int("finals", stats.Finals).
		Int("sttErrors", stats.Errors).
		Msg("Media stream ended")
}

func (l *callListener) lost(err error) {
	l.lostOnce.Do(func() { l.orch.TransportLost(err) })
}
