package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-screening-call-service/internal/observability/logging"
	"ai-screening-call-service/internal/observability/metrics"
)

var (
	// ErrPlayerClosed is returned by Speak after Close.
	ErrPlayerClosed = errors.New("speech player closed")
	// ErrMarkTimeout fails a job whose end-of-audio mark was never echoed.
	ErrMarkTimeout = errors.New("playback mark not echoed")
)

const (
	// 8kHz mu-law, one byte per sample
	defaultBytesPerSecond = 8000
	defaultMarkGrace      = 5 * time.Second
)

// Speaker turns prompt text into audio on the call.
type Speaker interface {
	// Speak starts playing text and returns immediately. The job's Done
	// channel closes when playback completes, is cancelled, or fails.
	Speak(ctx context.Context, text string) (*Job, error)

	// Cancel stops a job that is still playing. No-op for finished jobs.
	Cancel(job *Job)
}

// Synthesizer streams synthesized audio for text, chunk by chunk.
type Synthesizer interface {
	Stream(ctx context.Context, text string, chunk func([]byte) error) error
}

// MediaSink is the outbound side of the call media stream.
type MediaSink interface {
	SendMedia(payload []byte) error
	SendMark(name string) error
	Clear() error
}

type playback struct {
	job    *Job
	cancel context.CancelFunc
}

// Player implements Speaker over a Synthesizer and a MediaSink.
// A job completes when the sink echoes back the mark sent after its audio.
type Player struct {
	synth   Synthesizer
	sink    MediaSink
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// A job fails with ErrMarkTimeout when its mark is not echoed within
	// the audio's play time (at BytesPerSecond) plus MarkGrace.
	BytesPerSecond int
	MarkGrace      time.Duration

	mu     sync.Mutex
	active map[string]*playback
	closed bool
}

// NewPlayer creates a player writing to sink.
func NewPlayer(synth Synthesizer, sink MediaSink) *Player {
	return &Player{
		synth:          synth,
		sink:           sink,
		logger:         logging.WithComponent("speech-player"),
		metrics:        metrics.DefaultMetrics,
		BytesPerSecond: defaultBytesPerSecond,
		MarkGrace:      defaultMarkGrace,
		active:         make(map[string]*playback),
	}
}

// Speak starts streaming text to the sink.
func (p *Player) Speak(ctx context.Context, text string) (*Job, error) {
	job := NewJob(text)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPlayerClosed
	}
	pctx, cancel := context.WithCancel(ctx)
	p.active[job.ID()] = &playback{job: job, cancel: cancel}
	p.mu.Unlock()

	if err := job.Start(); err != nil {
		p.forget(job.ID())
		return nil, err
	}

	go p.run(pctx, job)
	return job, nil
}

func (p *Player) run(ctx context.Context, job *Job) {
	start := time.Now()
	first := true
	sent := 0

	err := p.synth.Stream(ctx, job.Text(), func(b []byte) error {
		if first {
			p.metrics.RecordFirstAudio(time.Since(start).Seconds())
			first = false
		}
		sent += len(b)
		return p.sink.SendMedia(b)
	})
	if ctx.Err() != nil {
		// Cancelled by Cancel or Close; they own the terminal transition.
		return
	}
	if err == nil {
		err = p.sink.SendMark(job.ID())
	}
	if err == nil {
		err = p.awaitMark(ctx, start, sent)
	}
	if err != nil {
		p.logger.Warn().Err(err).Str("jobId", job.ID()).Msg("Speech playback failed")
		p.finish(job.ID(), func(j *Job) bool { return j.Fail(err) })
	}
}

// awaitMark waits until the job is finished elsewhere (mark echo, Cancel,
// Close) or the audio should long have played out.
func (p *Player) awaitMark(ctx context.Context, start time.Time, sent int) error {
	var playTime time.Duration
	if p.BytesPerSecond > 0 {
		playTime = time.Duration(sent) * time.Second / time.Duration(p.BytesPerSecond)
	}
	// Audio plays from the first chunk; synthesis time already counts
	wait := time.Until(start.Add(playTime)) + p.MarkGrace
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrMarkTimeout, time.Since(start).Round(time.Millisecond))
	}
}

// OnMark completes the job named by a mark echoed back by the call.
func (p *Player) OnMark(name string) {
	p.finish(name, (*Job).Complete)
}

// Cancel stops job and clears any audio already buffered on the call.
func (p *Player) Cancel(job *Job) {
	if job == nil {
		return
	}
	if p.finish(job.ID(), (*Job).Cancel) {
		if err := p.sink.Clear(); err != nil {
			p.logger.Warn().Err(err).Str("jobId", job.ID()).Msg("Failed to clear call audio")
		}
	}
}

// Close cancels every active job. Speak fails afterwards.
func (p *Player) Close() {
	p.mu.Lock()
	p.closed = true
	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.finish(id, (*Job).Cancel)
	}
}

// Active returns the number of jobs still playing.
func (p *Player) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Player) finish(id string, transition func(*Job) bool) bool {
	pb := p.forget(id)
	if pb == nil {
		return false
	}
	pb.cancel()
	if !transition(pb.job) {
		return false
	}
	p.metrics.RecordSpeechJob(pb.job.State().String())
	return true
}

func (p *Player) forget(id string) *playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	pb, ok := p.active[id]
	if !ok {
		return nil
	}
	delete(p.active, id)
	return pb
}
