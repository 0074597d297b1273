// Package orchestrator runs one screening call: it turns transcript fragments
// into turn boundaries, classifies them, advances the dialogue and speaks the
// next prompt.
//
// Each session is an actor. A single goroutine owns the session, the
// segmenter and the pending speech job; everything else (fragments,
// classification results, playback completions, transport loss, snapshot
// queries) reaches it as an event on a buffered channel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-screening-call-service/internal/models"
	"ai-screening-call-service/internal/observability/logging"
	"ai-screening-call-service/internal/observability/metrics"
	"ai-screening-call-service/internal/script"
	"ai-screening-call-service/internal/service/classifier"
	"ai-screening-call-service/internal/service/dialogue"
	"ai-screening-call-service/internal/service/segment"
	"ai-screening-call-service/internal/service/speech"
	"ai-screening-call-service/internal/session"
)

var (
	// ErrTransportLost is reported when the call media stream goes away.
	ErrTransportLost = errors.New("transport lost")
	// ErrStopped is returned when posting to a session that has finished.
	ErrStopped = errors.New("orchestrator stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("orchestrator already started")
)

// Classifier resolves a turn's text against a question.
type Classifier interface {
	Classify(ctx context.Context, text string, q *script.Question) (classifier.Result, error)
}

// Notifier receives the flushed summary of a terminated session.
type Notifier interface {
	Notify(ctx context.Context, summary models.CallSummary) error
}

// TurnSink receives one event per recorded turn. Optional.
type TurnSink interface {
	PublishTurn(ctx context.Context, key string, ev models.TurnEvent) error
}

// Config holds per-session timing.
type Config struct {
	Segment      segment.Config
	TickInterval time.Duration
	QueueSize    int
	FlushTimeout time.Duration

	// PlaybackTimeout is the grace allowed on top of a prompt's estimated
	// spoken length before its job is abandoned and the turn timers resume.
	PlaybackTimeout time.Duration
}

// Rough spoken length of one prompt character at phone speaking rate.
const speechPerChar = 80 * time.Millisecond

// DefaultConfig returns the default session timing.
func DefaultConfig() Config {
	return Config{
		Segment:         segment.DefaultConfig(),
		TickInterval:    20 * time.Millisecond,
		QueueSize:       256,
		FlushTimeout:    10 * time.Second,
		PlaybackTimeout: 5 * time.Second,
	}
}

// Options wires a session's collaborators.
type Options struct {
	Machine    *dialogue.Machine
	Classifier Classifier
	Speaker    speech.Speaker
	Notifier   Notifier
	Turns      TurnSink
	Generator  *segment.Generator
	Config     Config
}

// Orchestrator drives one call session.
type Orchestrator struct {
	sessionID string
	callSID   string
	opts      Options
	cfg       Config
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	events chan event
	turns  chan models.TurnEvent
	done   chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool

	startOnce sync.Once
	helpers   sync.WaitGroup

	// Owned by the run goroutine.
	sess     *session.CallSession
	seg      *segment.Segmenter
	pending  *speech.Job
	closing  *speech.Job
	inflight *models.TurnBoundary
	queue    []*models.TurnBoundary
	lost     bool

	// Written by the run goroutine before done is closed.
	final models.CallSummary
}

// New creates an orchestrator for one call. Call Start to begin.
func New(sessionID, callSID string, opts Options) *Orchestrator {
	cfg := opts.Config
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}
	if cfg.PlaybackTimeout <= 0 {
		cfg.PlaybackTimeout = def.PlaybackTimeout
	}
	if cfg.Segment.ShortSilence <= 0 {
		cfg.Segment.ShortSilence = def.Segment.ShortSilence
	}
	if cfg.Segment.LongSilence <= 0 {
		cfg.Segment.LongSilence = def.Segment.LongSilence
	}

	o := &Orchestrator{
		sessionID: sessionID,
		callSID:   callSID,
		opts:      opts,
		cfg:       cfg,
		logger:    logging.WithCall(sessionID, callSID, "").With().Str("component", "orchestrator").Logger(),
		metrics:   metrics.DefaultMetrics,
		events:    make(chan event, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	if opts.Turns != nil {
		o.turns = make(chan models.TurnEvent, cfg.QueueSize)
	}
	return o
}

// SessionID returns the session this orchestrator drives.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Start speaks the opening prompt and begins processing events.
func (o *Orchestrator) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	o.startOnce.Do(func() {
		err = nil
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		o.mu.Lock()
		o.cancel = cancel
		if o.stopped {
			cancel()
		}
		o.mu.Unlock()
		now := time.Now()
		o.sess = session.New(o.sessionID, o.callSID, o.opts.Machine.Script().Len(), now)
		o.seg = segment.NewSegmenter(o.sessionID, o.cfg.Segment, o.opts.Generator, now)
		if o.turns != nil {
			o.helpers.Add(1)
			go o.publishTurns(ctx)
		}
		go o.run(ctx)
	})
	return err
}

// Fragment delivers a transcript fragment. It blocks while the session's
// queue is full, so fragments are never dropped.
func (o *Orchestrator) Fragment(f models.TranscriptFragment) error {
	if f.ArrivalTime.IsZero() {
		f.ArrivalTime = time.Now()
	}
	return o.post(fragmentEvent{fragment: f})
}

// TransportLost reports that the call's media stream is gone.
func (o *Orchestrator) TransportLost(err error) {
	if err == nil {
		err = ErrTransportLost
	}
	_ = o.post(transportLostEvent{err: err})
}

// Snapshot returns the session's current summary. After the session has
// finished it returns the flushed summary.
func (o *Orchestrator) Snapshot(ctx context.Context) (models.CallSummary, error) {
	reply := make(chan models.CallSummary, 1)
	if err := o.post(snapshotEvent{reply: reply}); err != nil {
		return o.final, nil
	}
	select {
	case s := <-reply:
		return s, nil
	case <-o.done:
		return o.final, nil
	case <-ctx.Done():
		return models.CallSummary{}, ctx.Err()
	}
}

// Stop ends the session as if the transport had been lost. A session stopped
// before Start ends as soon as it starts.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	if o.cancel != nil {
		o.cancel()
	}
}

// Done is closed when the session has finished.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the session and its helper goroutines have finished,
// including delivery of the summary.
func (o *Orchestrator) Wait() {
	<-o.done
	o.helpers.Wait()
}

// Summary returns the flushed summary. Only valid after Done is closed.
func (o *Orchestrator) Summary() models.CallSummary {
	<-o.done
	return o.final
}

func (o *Orchestrator) post(e event) error {
	select {
	case <-o.done:
		return ErrStopped
	default:
	}
	select {
	case o.events <- e:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

func (o *Orchestrator) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Msg("Session loop panicked")
			o.terminate(ctx, models.OutcomeFailed)
		}
		o.final = o.sess.Summary()
		if o.turns != nil {
			close(o.turns)
		}
		close(o.done)
	}()

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	o.metrics.RecordSessionStart()
	o.logger.Info().Int("questions", o.opts.Machine.Script().Len()).Msg("Session started")
	o.begin(ctx)

	for !o.finished() {
		select {
		case <-ctx.Done():
			o.onTransportLost(ctx, ctx.Err())
			return
		case ev := <-o.events:
			o.handle(ctx, ev)
		case now := <-ticker.C:
			if o.sess.Terminated() {
				continue
			}
			if b := o.seg.Tick(now); b != nil {
				o.onBoundary(ctx, b)
			}
		}
	}
	o.logger.Info().
		Str("outcome", string(o.sess.Outcome)).
		Int("turns", o.sess.HistoryLen()).
		Msg("Session finished")
}

// finished reports whether the loop can exit: the session is terminated,
// the summary is on its way and no closing prompt is still playing.
func (o *Orchestrator) finished() bool {
	return o.sess.Terminated() && o.closing == nil
}

func (o *Orchestrator) handle(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case fragmentEvent:
		o.onFragment(ctx, e.fragment)
	case classifiedEvent:
		o.onClassified(ctx, e)
	case playbackEvent:
		o.onPlayback(e.job)
	case playbackTimeoutEvent:
		o.onPlaybackTimeout(e.job)
	case transportLostEvent:
		o.onTransportLost(ctx, e.err)
	case snapshotEvent:
		e.reply <- o.sess.Summary()
	}
}

func (o *Orchestrator) begin(ctx context.Context) {
	prompt := o.opts.Machine.Opening(o.sess)
	if prompt == "" {
		o.terminate(ctx, models.OutcomeCompleted)
		return
	}
	if g := o.opts.Machine.Script().Greeting; g != "" {
		prompt = g + " " + prompt
	}
	o.speak(ctx, prompt)
}

func (o *Orchestrator) onFragment(ctx context.Context, f models.TranscriptFragment) {
	if o.sess.Terminated() {
		return
	}
	if b := o.seg.Feed(f); b != nil {
		o.onBoundary(ctx, b)
	}
}

func (o *Orchestrator) onBoundary(ctx context.Context, b *models.TurnBoundary) {
	o.metrics.RecordBoundary(b.Kind.String())
	o.logger.Debug().
		Str("kind", b.Kind.String()).
		Str("turnId", b.TurnID).
		Uint64("seq", b.Seq).
		Msg("Turn boundary")

	if b.Kind == models.BargeIn {
		o.metrics.RecordBargeIn()
		if o.pending != nil {
			o.opts.Speaker.Cancel(o.pending)
			o.pending = nil
		}
		return
	}
	o.queue = append(o.queue, b)
	o.dispatch(ctx)
}

// dispatch starts the next queued classification if none is in flight.
func (o *Orchestrator) dispatch(ctx context.Context) {
	for o.inflight == nil && len(o.queue) > 0 && !o.sess.Terminated() {
		b := o.queue[0]
		o.queue = o.queue[1:]
		if o.stale(b) {
			continue
		}
		q := o.opts.Machine.Current(o.sess)
		if q == nil {
			continue
		}
		if q.SkipClassification {
			o.resolve(ctx, b, classifier.Result{}, nil)
			continue
		}
		o.inflight = b
		o.helpers.Add(1)
		go o.classify(ctx, b, q)
	}
}

// stale reports whether a boundary no longer describes the current turn.
// A short pause is also stale once newer speech has arrived.
func (o *Orchestrator) stale(b *models.TurnBoundary) bool {
	if b.Turn != o.seg.Turn() {
		return true
	}
	return b.Kind == models.ShortPause && b.Seq != o.seg.Seq()
}

func (o *Orchestrator) classify(ctx context.Context, b *models.TurnBoundary, q *script.Question) {
	defer o.helpers.Done()
	ev := classifiedEvent{boundary: b}
	func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error().Interface("panic", r).Int("stateId", q.StateID).Msg("Classifier panicked")
				ev.err = fmt.Errorf("%w: panic: %v", classifier.ErrUnavailable, r)
			}
		}()
		ev.result, ev.err = o.opts.Classifier.Classify(ctx, b.AccumulatedText, q)
	}()
	_ = o.post(ev)
}

func (o *Orchestrator) onClassified(ctx context.Context, ev classifiedEvent) {
	if ev.boundary != o.inflight {
		return
	}
	o.inflight = nil
	o.resolve(ctx, ev.boundary, ev.result, ev.err)
	o.dispatch(ctx)
}

// resolve applies a classified boundary. Short pauses are speculative and
// only applied when decisive and no newer speech has arrived; long pauses
// are always applied.
func (o *Orchestrator) resolve(ctx context.Context, b *models.TurnBoundary, res classifier.Result, err error) {
	if o.sess.Terminated() || b.Turn != o.seg.Turn() {
		return
	}
	q := o.opts.Machine.Current(o.sess)
	if q == nil {
		return
	}

	if b.Kind == models.ShortPause {
		applied := err == nil && b.Seq == o.seg.Seq() && (q.SkipClassification || res.Decisive())
		o.metrics.RecordSpeculative(applied)
		if !applied {
			return
		}
	}

	if err != nil {
		o.logger.Warn().Err(err).Int("stateId", q.StateID).Msg("Classification unavailable, treating as irrelevant")
	}

	o.seg.Commit(b)
	d := o.opts.Machine.Apply(o.sess, dialogue.Answer{
		Text:           b.AccumulatedText,
		Category:       res.Category,
		ExtractedValue: res.ExtractedValue,
		Unavailable:    err != nil,
		Boundary:       b.Kind,
	}, time.Now())

	o.metrics.RecordTransition(d.Action.String())
	turnLog := logging.WithTurn(o.sessionID, d.Record.StateID, o.sess.HistoryLen()).With().
		Str("component", "orchestrator").
		Logger()
	turnLog.Info().
		Str("category", d.Record.Category).
		Str("action", d.Action.String()).
		Str("boundary", b.Kind.String()).
		Msg("Turn applied")
	o.emitTurn(d)

	if d.Action == dialogue.Complete {
		o.terminate(ctx, models.OutcomeCompleted)
		return
	}
	o.speak(ctx, d.Prompt)
}

// speak replaces any pending output with text.
func (o *Orchestrator) speak(ctx context.Context, text string) {
	if o.pending != nil {
		o.opts.Speaker.Cancel(o.pending)
		o.pending = nil
	}
	job, err := o.opts.Speaker.Speak(ctx, text)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to start prompt playback")
		o.seg.Resume(time.Now())
		return
	}
	o.pending = job
	o.seg.SetOutputActive()
	o.watch(job)
}

// watch reports the job's completion to the loop, or its timeout when the
// speaker never signals one.
func (o *Orchestrator) watch(job *speech.Job) {
	deadline := o.cfg.PlaybackTimeout + time.Duration(len(job.Text()))*speechPerChar
	go func() {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case <-job.Done():
			_ = o.post(playbackEvent{job: job})
		case <-timer.C:
			_ = o.post(playbackTimeoutEvent{job: job})
		case <-o.done:
		}
	}()
}

func (o *Orchestrator) onPlaybackTimeout(job *speech.Job) {
	if job != o.pending && job != o.closing {
		return
	}
	o.logger.Warn().Str("jobId", job.ID()).Msg("Prompt playback never completed, abandoning it")
	o.opts.Speaker.Cancel(job)
	if job == o.closing {
		o.closing = nil
		return
	}
	o.pending = nil
	o.seg.Resume(time.Now())
}

func (o *Orchestrator) onPlayback(job *speech.Job) {
	if job == o.closing {
		o.closing = nil
		return
	}
	if job != o.pending {
		return
	}
	o.pending = nil
	if job.State() == speech.StateFailed {
		o.logger.Warn().Err(job.Err()).Str("jobId", job.ID()).Msg("Prompt playback failed")
	}
	o.seg.Resume(time.Now())
}

func (o *Orchestrator) onTransportLost(ctx context.Context, err error) {
	o.lost = true
	if o.closing != nil {
		o.opts.Speaker.Cancel(o.closing)
		o.closing = nil
	}
	outcome := models.OutcomeDisconnected
	if o.sess.HistoryLen() == 0 {
		outcome = models.OutcomeBusyDisconnect
	}
	if !o.sess.Terminated() {
		o.logger.Info().Err(err).Str("outcome", string(outcome)).Msg("Transport lost")
	}
	o.terminate(ctx, outcome)
}

// terminate ends the session, flushes its summary exactly once and speaks
// the closing message when the call is still connected.
func (o *Orchestrator) terminate(ctx context.Context, outcome models.Outcome) {
	if !o.sess.Terminate(outcome, time.Now()) {
		return
	}
	o.metrics.RecordSessionEnd(string(outcome), o.sess.EndedAt.Sub(o.sess.StartedAt).Seconds())

	if o.pending != nil {
		o.opts.Speaker.Cancel(o.pending)
		o.pending = nil
	}
	o.queue = nil
	o.flush(ctx)

	closing := o.opts.Machine.Script().Closing
	if o.lost || outcome != models.OutcomeCompleted || closing == "" {
		return
	}
	job, err := o.opts.Speaker.Speak(ctx, closing)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Failed to play closing message")
		return
	}
	o.closing = job
	o.watch(job)
}

func (o *Orchestrator) flush(ctx context.Context) {
	if !o.sess.TakeFlush() {
		return
	}
	summary := o.sess.Summary()
	o.final = summary
	if o.opts.Notifier == nil {
		return
	}

	o.helpers.Add(1)
	go func() {
		defer o.helpers.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error().Interface("panic", r).Msg("Notifier panicked")
			}
		}()
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FlushTimeout)
		defer cancel()
		if err := o.opts.Notifier.Notify(fctx, summary); err != nil {
			o.logger.Error().Err(err).Msg("Failed to deliver call summary")
		}
	}()
}

func (o *Orchestrator) emitTurn(d dialogue.Decision) {
	if o.turns == nil {
		return
	}
	ev := models.TurnEvent{
		EventType:  models.EventTypeTurn,
		SessionID:  o.sessionID,
		CallSID:    o.callSID,
		Sequence:   o.sess.HistoryLen(),
		NextPrompt: d.Prompt,
		Record:     d.Record,
	}
	select {
	case o.turns <- ev:
	default:
		o.logger.Warn().Int("sequence", ev.Sequence).Msg("Turn event queue full, dropping event")
	}
}

// publishTurns delivers turn events in order, off the session loop.
func (o *Orchestrator) publishTurns(ctx context.Context) {
	defer o.helpers.Done()
	pctx := context.WithoutCancel(ctx)
	for ev := range o.turns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error().Interface("panic", r).Msg("Turn sink panicked")
				}
			}()
			if err := o.opts.Turns.PublishTurn(pctx, o.sessionID, ev); err != nil {
				o.logger.Warn().Err(err).Int("sequence", ev.Sequence).Msg("Failed to publish turn")
			}
		}()
	}
}
