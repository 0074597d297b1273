package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-screening-call-service/internal/models"
	"ai-screening-call-service/internal/observability/logging"
	"ai-screening-call-service/internal/service/speech"
)

// ErrSessionExists is returned when a session ID is already running.
var ErrSessionExists = errors.New("session already running")

// Manager keeps the registry of live sessions. At most one orchestrator
// runs per session ID.
type Manager struct {
	base   Options
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Orchestrator
}

// NewManager creates a manager. base supplies every collaborator except the
// per-call Speaker.
func NewManager(base Options) *Manager {
	return &Manager{
		base:     base,
		logger:   logging.WithComponent("session-manager"),
		sessions: make(map[string]*Orchestrator),
	}
}

// Start launches a session. An empty sessionID gets a generated one.
func (m *Manager) Start(ctx context.Context, sessionID, callSID string, speaker speech.Speaker) (*Orchestrator, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	opts := m.base
	opts.Speaker = speaker

	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	o := New(sessionID, callSID, opts)
	m.sessions[sessionID] = o
	m.mu.Unlock()

	if err := o.Start(ctx); err != nil {
		m.remove(sessionID, o)
		return nil, err
	}

	go func() {
		<-o.Done()
		m.remove(sessionID, o)
	}()

	m.logger.Info().Str("sessionId", sessionID).Str("callSid", callSID).Msg("Session registered")
	return o, nil
}

// Get returns the live orchestrator for sessionID.
func (m *Manager) Get(sessionID string) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.sessions[sessionID]
	return o, ok
}

// Snapshot returns the current summary of a live session. ok is false when
// no session with that ID is running.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (sum models.CallSummary, ok bool, err error) {
	o, ok := m.Get(sessionID)
	if !ok {
		return models.CallSummary{}, false, nil
	}
	sum, err = o.Snapshot(ctx)
	return sum, true, err
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops every session and waits for their summaries to be
// delivered, or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Orchestrator, 0, len(m.sessions))
	for _, o := range m.sessions {
		live = append(live, o)
	}
	m.mu.Unlock()

	m.logger.Info().Int("sessions", len(live)).Msg("Stopping sessions")

	done := make(chan struct{})
	go func() {
		for _, o := range live {
			o.Stop()
		}
		for _, o := range live {
			o.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) remove(sessionID string, o *Orchestrator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[sessionID] == o {
		delete(m.sessions, sessionID)
	}
}
